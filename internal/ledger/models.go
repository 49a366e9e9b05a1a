package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// OwnerType 账户归属类型
type OwnerType string

const (
	OwnerPlatform OwnerType = "platform" // 平台托管（escrow）账户
	OwnerSeller   OwnerType = "seller"   // 卖家账户
	OwnerBuyer    OwnerType = "buyer"    // 买家退款账户
)

// PlatformOwnerID 平台托管账户的固定归属ID，全局唯一一个
const PlatformOwnerID = "platform"

// Account 资金账户
type Account struct {
	ID        string          `json:"id" gorm:"primaryKey;type:uuid"`
	OwnerType OwnerType       `json:"ownerType" gorm:"size:20;not null;uniqueIndex:idx_ledger_account_owner"`
	OwnerID   string          `json:"ownerId" gorm:"size:64;not null;uniqueIndex:idx_ledger_account_owner"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:decimal(14,2);not null;default:0"` // 当前余额
	CreatedAt time.Time       `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time       `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// TableName 指定表名
func (Account) TableName() string {
	return "ledger_accounts"
}

// TransactionType 流水类型
type TransactionType string

const (
	TransactionTypeDeposit      TransactionType = "deposit"       // 充值入账
	TransactionTypeOrderPayment TransactionType = "order_payment" // 订单货款入托管
	TransactionTypeRefund       TransactionType = "refund"        // 退款冲正
	TransactionTypeSellerPayout TransactionType = "seller_payout" // 卖家结算打款
)

// TransactionStatus 流水状态
// 流水为只追加记录，落库后不再原地修改；冲正通过补偿流水表达
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusSuccess  TransactionStatus = "success"
	TransactionStatusFailed   TransactionStatus = "failed"
	TransactionStatusRefunded TransactionStatus = "refunded"
)

// Transaction 资金流水
type Transaction struct {
	ID        string            `json:"id" gorm:"primaryKey;type:uuid"`
	AccountID string            `json:"accountId" gorm:"type:uuid;not null;index"`
	OwnerType OwnerType         `json:"ownerType" gorm:"size:20;not null"`
	OwnerID   string            `json:"ownerId" gorm:"size:64;not null;index:idx_ledger_tx_owner"`
	Type      TransactionType   `json:"type" gorm:"size:20;not null;index:idx_ledger_tx_type"`
	Status    TransactionStatus `json:"status" gorm:"size:20;not null;default:success"`
	Amount    decimal.Decimal   `json:"amount" gorm:"type:decimal(14,2);not null"`        // 变动金额（正为贷记，负为借记）
	BalanceBefore decimal.Decimal `json:"balanceBefore" gorm:"type:decimal(14,2);not null"` // 变动前余额
	BalanceAfter  decimal.Decimal `json:"balanceAfter" gorm:"type:decimal(14,2);not null"`  // 变动后余额

	// 关联信息
	OrderID  string `json:"orderId" gorm:"size:36;index:idx_ledger_tx_order"`
	RefundID string `json:"refundId" gorm:"size:36;index"`

	Description string    `json:"description" gorm:"size:500"`
	CreatedAt   time.Time `json:"createdAt" gorm:"not null;autoCreateTime;index:idx_ledger_tx_time"`
}

// TableName 指定表名
func (Transaction) TableName() string {
	return "ledger_transactions"
}

// TransferRequest 账户间划转请求（同一事务内借记+贷记成对落账）
type TransferRequest struct {
	FromOwnerType OwnerType
	FromOwnerID   string
	ToOwnerType   OwnerType
	ToOwnerID     string
	Amount        decimal.Decimal
	Type          TransactionType
	OrderID       string
	RefundID      string
	Description   string
}

// TransactionQuery 流水查询条件
type TransactionQuery struct {
	OwnerType OwnerType       `json:"ownerType" form:"owner_type"`
	OwnerID   string          `json:"ownerId" form:"owner_id"`
	OrderID   string          `json:"orderId" form:"order_id"`
	Type      TransactionType `json:"type" form:"type"`
	Page      int             `json:"page" form:"page"`
	PageSize  int             `json:"pageSize" form:"page_size"`
}

// OrderSummary 单笔订单的对账汇总
// NetRetained 为平台与卖家账户上该订单流水之和：
// 全额退款后应为零，正常结算后应等于订单总额（货款全部沉淀在平台与卖家侧）
type OrderSummary struct {
	OrderID         string                              `json:"orderId"`
	ByType          map[TransactionType]decimal.Decimal `json:"byType"`
	NetRetained     decimal.Decimal                     `json:"netRetained"`
	RefundedToBuyer decimal.Decimal                     `json:"refundedToBuyer"`
	Count           int                                 `json:"count"`
}
