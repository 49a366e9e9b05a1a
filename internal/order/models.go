package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status 订单状态
type Status string

const (
	StatusPending    Status = "pending"    // 待处理
	StatusProcessing Status = "processing" // 处理中（备货）
	StatusShipping   Status = "shipping"   // 已发货
	StatusCompleted  Status = "completed"  // 已完成
	StatusCancelled  Status = "cancelled"  // 已取消
)

// PaymentStatus 支付状态，与订单履约状态互相独立
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)

// Order 订单
type Order struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	BuyerID  string `json:"buyerId" gorm:"size:64;not null;index"`
	ShopID   string `json:"shopId" gorm:"size:64;not null;index"`
	SellerID string `json:"sellerId" gorm:"size:64;not null;index"`

	TotalAmount   decimal.Decimal `json:"totalAmount" gorm:"type:decimal(14,2);not null"`
	Status        Status          `json:"status" gorm:"size:20;not null;default:pending;index:idx_orders_settle"`
	PaymentStatus PaymentStatus   `json:"paymentStatus" gorm:"size:20;not null;default:unpaid;index:idx_orders_settle"`

	// SettledAt 非空表示该订单的结算决定已做出（已分账或因全额退款免结算）
	SettledAt   *time.Time `json:"settledAt" gorm:"index:idx_orders_settle"`
	PaidAt      *time.Time `json:"paidAt"`
	CompletedAt *time.Time `json:"completedAt"`
	CancelledAt *time.Time `json:"cancelledAt"`

	Remark    string    `json:"remark" gorm:"size:500"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime;index"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// transitions 订单履约状态机邻接表
// CANCELLED 可从任何未完成状态进入，COMPLETED 与 CANCELLED 为终态
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipping, StatusCancelled},
	StatusShipping:   {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition 判断履约状态是否允许从 from 流转到 to
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal 判断是否终态
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CreateRequest 创建订单请求
type CreateRequest struct {
	BuyerID     string          `json:"buyerId" binding:"required"`
	ShopID      string          `json:"shopId" binding:"required"`
	SellerID    string          `json:"sellerId" binding:"required"`
	TotalAmount decimal.Decimal `json:"totalAmount" binding:"required"`
	Remark      string          `json:"remark"`
}

// ListQuery 订单查询条件
type ListQuery struct {
	BuyerID  string `json:"buyerId" form:"buyer_id"`
	SellerID string `json:"sellerId" form:"seller_id"`
	Status   Status `json:"status" form:"status"`
	Page     int    `json:"page" form:"page"`
	PageSize int    `json:"pageSize" form:"page_size"`
}
