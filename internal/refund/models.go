package refund

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Status 退款单状态
type Status string

const (
	StatusPending               Status = "pending"                 // 待审核
	StatusApprovedWaitingReturn Status = "approved_waiting_return" // 同意，等待买家退货
	StatusReturning             Status = "returning"               // 买家已寄出，等待卖家验收
	StatusApprovedRefunding     Status = "approved_refunding"      // 同意退款，等待资金结算
	StatusRejected              Status = "rejected"                // 已驳回
	StatusCompleted             Status = "completed"               // 退款完成
)

// transitions 退款状态机邻接表（有向无环）
// completed 只能由退款结算协调器写入
var transitions = map[Status][]Status{
	StatusPending:               {StatusApprovedWaitingReturn, StatusApprovedRefunding, StatusRejected},
	StatusApprovedWaitingReturn: {StatusReturning},
	StatusReturning:             {StatusApprovedRefunding, StatusRejected},
	StatusApprovedRefunding:     {StatusCompleted},
	StatusRejected:              {},
	StatusCompleted:             {},
}

// CanTransition 判断退款状态是否允许从 from 流转到 to
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
	return s == StatusRejected || s == StatusCompleted
}

// CountsAgainstOrder 非驳回的退款单占用订单可退额度
func (s Status) CountsAgainstOrder() bool {
	return s != StatusRejected
}

// Refund 退款单
type Refund struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	OrderID  string `json:"orderId" gorm:"size:36;not null;index"`
	BuyerID  string `json:"buyerId" gorm:"size:64;not null;index"`
	SellerID string `json:"sellerId" gorm:"size:64;not null;index"`

	Amount decimal.Decimal `json:"amount" gorm:"type:decimal(14,2);not null"`
	Status Status          `json:"status" gorm:"size:30;not null;default:pending;index"`

	Reason       string         `json:"reason" gorm:"size:500"`
	Images       datatypes.JSON `json:"images"` // 买家上传的凭证图片URL列表
	RejectReason string         `json:"rejectReason" gorm:"size:500"`

	CompletedAt *time.Time `json:"completedAt"`
	CreatedAt   time.Time  `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt   time.Time  `json:"updatedAt" gorm:"not null;autoUpdateTime"`

	Items []RefundItem `json:"items" gorm:"foreignKey:RefundID"`
}

// TableName 指定表名
func (Refund) TableName() string {
	return "refunds"
}

// RefundItem 退款单商品明细
type RefundItem struct {
	ID        string          `json:"id" gorm:"primaryKey;type:uuid"`
	RefundID  string          `json:"refundId" gorm:"type:uuid;not null;index"`
	ProductID string          `json:"productId" gorm:"size:64;not null"`
	Name      string          `json:"name" gorm:"size:200"`
	Quantity  int             `json:"quantity" gorm:"not null"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:decimal(14,2);not null"` // 该明细行退款金额
	CreatedAt time.Time       `json:"createdAt" gorm:"not null;autoCreateTime"`
}

// TableName 指定表名
func (RefundItem) TableName() string {
	return "refund_items"
}

// RequestItem 退款申请的商品明细
type RequestItem struct {
	ProductID string          `json:"productId" binding:"required"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
}

// Request 退款申请
type Request struct {
	OrderID string          `json:"orderId" binding:"required"`
	Amount  decimal.Decimal `json:"amount" binding:"required"`
	Reason  string          `json:"reason"`
	Images  []string        `json:"images"`
	Items   []RequestItem   `json:"items"`
}
