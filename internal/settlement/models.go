package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlatformFee 平台佣金记录
// order_id 上的唯一索引是结算幂等的存储层见证：同一订单至多写入一条
type PlatformFee struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	OrderID  string `json:"orderId" gorm:"size:36;not null;uniqueIndex"`
	SellerID string `json:"sellerId" gorm:"size:64;not null;index"`

	FeePercent   decimal.Decimal `json:"feePercent" gorm:"type:decimal(5,2);not null"`   // 结算时生效的佣金比例
	BaseAmount   decimal.Decimal `json:"baseAmount" gorm:"type:decimal(14,2);not null"`  // 分账基数（订单总额减去已完成退款）
	FeeAmount    decimal.Decimal `json:"feeAmount" gorm:"type:decimal(14,2);not null"`   // 平台佣金
	SellerAmount decimal.Decimal `json:"sellerAmount" gorm:"type:decimal(14,2);not null"` // 卖家应得

	// RefundedFeeAmount 结算后退款按比例回冲的佣金累计
	RefundedFeeAmount decimal.Decimal `json:"refundedFeeAmount" gorm:"type:decimal(14,2);not null;default:0"`

	SettledAt time.Time `json:"settledAt" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// TableName 指定表名
func (PlatformFee) TableName() string {
	return "platform_fees"
}

// ClawbackPolicy 结算后退款的资金回冲策略
type ClawbackPolicy string

const (
	// ClawbackSellerAndPlatform 按原始分账比例由卖家与平台分摊（默认）
	ClawbackSellerAndPlatform ClawbackPolicy = "seller_and_platform"
	// ClawbackPlatformOnly 全部由平台承担，不追回卖家货款
	ClawbackPlatformOnly ClawbackPolicy = "platform_only"
)

// Valid 校验策略取值
func (p ClawbackPolicy) Valid() bool {
	return p == ClawbackSellerAndPlatform || p == ClawbackPlatformOnly
}

// SplitFee 按佣金比例计算基数中的佣金部分，保留两位小数
// 结算与回冲使用同一公式，保证全额退款时佣金恰好对平
func SplitFee(base, percent decimal.Decimal) decimal.Decimal {
	return base.Mul(percent).Div(decimal.NewFromInt(100)).Round(2)
}
