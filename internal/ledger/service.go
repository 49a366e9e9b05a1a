package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mallpay/internal/common"
	"mallpay/internal/logger"
)

// ============ 错误定义 ============

var (
	ErrAccountNotFound     = errors.New("账户不存在")
	ErrInsufficientBalance = errors.New("账户余额不足")
	ErrInvalidAmount       = errors.New("金额必须为正数")
	ErrSameAccount         = errors.New("不能向同一账户划转")
)

// ============ 账本服务 ============

// Service 资金账本服务：账户余额与只追加流水
type Service struct {
	db *gorm.DB
}

// NewService 创建账本服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetOrCreateAccount 获取账户，不存在则创建（余额为零）
func (s *Service) GetOrCreateAccount(ctx context.Context, ownerType OwnerType, ownerID string) (*Account, error) {
	return s.getOrCreateAccountTx(s.db.WithContext(ctx), ownerType, ownerID)
}

func (s *Service) getOrCreateAccountTx(tx *gorm.DB, ownerType OwnerType, ownerID string) (*Account, error) {
	var account Account
	err := tx.Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).First(&account).Error
	if err == nil {
		return &account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询账户失败: %w", err)
	}

	account = Account{
		ID:        uuid.New().String(),
		OwnerType: ownerType,
		OwnerID:   ownerID,
		Balance:   decimal.Zero,
	}
	if err := tx.Create(&account).Error; err != nil {
		// 并发创建时命中唯一索引，回读即可
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if rerr := tx.Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).First(&account).Error; rerr == nil {
				return &account, nil
			}
		}
		return nil, fmt.Errorf("创建账户失败: %w", err)
	}
	return &account, nil
}

// GetBalance 查询账户余额
func (s *Service) GetBalance(ctx context.Context, ownerType OwnerType, ownerID string) (decimal.Decimal, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("查询账户失败: %w", err)
	}
	return account.Balance, nil
}

// Deposit 充值入账（买家钱包充值等外部资金流入）
func (s *Service) Deposit(ctx context.Context, ownerType OwnerType, ownerID string, amount decimal.Decimal, description string) (*Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	var txn *Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.CreditTx(tx, ownerType, ownerID, amount, TransactionTypeDeposit, "", "", description)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("充值入账成功",
		zap.String("owner_type", string(ownerType)),
		zap.String("owner_id", ownerID),
		zap.String("amount", amount.String()),
	)
	return txn, nil
}

// ============ 事务内记账原语 ============
// 供结算引擎/退款协调器在自己的数据库事务内调用，保证状态流转与资金变动同时提交

// CreditTx 在给定事务内为账户贷记（余额增加），账户不存在则创建
func (s *Service) CreditTx(tx *gorm.DB, ownerType OwnerType, ownerID string, amount decimal.Decimal, txType TransactionType, orderID, refundID, description string) (*Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if _, err := s.getOrCreateAccountTx(tx, ownerType, ownerID); err != nil {
		return nil, err
	}
	return s.applyTx(tx, ownerType, ownerID, amount, txType, orderID, refundID, description)
}

// DebitTx 在给定事务内为账户借记（余额减少），余额不足返回 ErrInsufficientBalance
func (s *Service) DebitTx(tx *gorm.DB, ownerType OwnerType, ownerID string, amount decimal.Decimal, txType TransactionType, orderID, refundID, description string) (*Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	return s.applyTx(tx, ownerType, ownerID, amount.Neg(), txType, orderID, refundID, description)
}

// applyTx 对账户施加一次带符号的余额变动并落一条流水
// 行锁住账户行，BalanceBefore/BalanceAfter 以锁内读数为准
func (s *Service) applyTx(tx *gorm.DB, ownerType OwnerType, ownerID string, delta decimal.Decimal, txType TransactionType, orderID, refundID, description string) (*Transaction, error) {
	var account Account
	err := tx.Scopes(common.ForUpdate()).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("锁定账户失败: %w", err)
	}

	balanceAfter := account.Balance.Add(delta)
	if balanceAfter.IsNegative() {
		return nil, fmt.Errorf("%w: 账户 %s/%s 余额 %s，需扣减 %s",
			ErrInsufficientBalance, ownerType, ownerID, account.Balance.String(), delta.Neg().String())
	}

	txn := &Transaction{
		ID:            uuid.New().String(),
		AccountID:     account.ID,
		OwnerType:     ownerType,
		OwnerID:       ownerID,
		Type:          txType,
		Status:        TransactionStatusSuccess,
		Amount:        delta,
		BalanceBefore: account.Balance,
		BalanceAfter:  balanceAfter,
		OrderID:       orderID,
		RefundID:      refundID,
		Description:   description,
	}
	if err := tx.Create(txn).Error; err != nil {
		return nil, fmt.Errorf("写入流水失败: %w", err)
	}

	if err := tx.Model(&Account{}).Where("id = ?", account.ID).
		Update("balance", balanceAfter).Error; err != nil {
		return nil, fmt.Errorf("更新余额失败: %w", err)
	}
	return txn, nil
}

// TransferTx 在给定事务内做账户间划转：借记与贷记两条流水成对写入
// 按 (owner_type, owner_id) 字典序加锁，避免并发互转死锁
func (s *Service) TransferTx(tx *gorm.DB, req TransferRequest) (debit *Transaction, credit *Transaction, err error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, ErrInvalidAmount
	}
	if req.FromOwnerType == req.ToOwnerType && req.FromOwnerID == req.ToOwnerID {
		return nil, nil, ErrSameAccount
	}

	if _, err := s.getOrCreateAccountTx(tx, req.FromOwnerType, req.FromOwnerID); err != nil {
		return nil, nil, err
	}
	if _, err := s.getOrCreateAccountTx(tx, req.ToOwnerType, req.ToOwnerID); err != nil {
		return nil, nil, err
	}

	fromKey := string(req.FromOwnerType) + "/" + req.FromOwnerID
	toKey := string(req.ToOwnerType) + "/" + req.ToOwnerID
	if strings.Compare(fromKey, toKey) <= 0 {
		debit, err = s.DebitTx(tx, req.FromOwnerType, req.FromOwnerID, req.Amount, req.Type, req.OrderID, req.RefundID, req.Description)
		if err != nil {
			return nil, nil, err
		}
		credit, err = s.CreditTx(tx, req.ToOwnerType, req.ToOwnerID, req.Amount, req.Type, req.OrderID, req.RefundID, req.Description)
		if err != nil {
			return nil, nil, err
		}
	} else {
		credit, err = s.CreditTx(tx, req.ToOwnerType, req.ToOwnerID, req.Amount, req.Type, req.OrderID, req.RefundID, req.Description)
		if err != nil {
			return nil, nil, err
		}
		debit, err = s.DebitTx(tx, req.FromOwnerType, req.FromOwnerID, req.Amount, req.Type, req.OrderID, req.RefundID, req.Description)
		if err != nil {
			return nil, nil, err
		}
	}
	return debit, credit, nil
}

// ============ 查询与对账 ============

// HasSellerPayout 判断订单是否已存在卖家打款流水（幂等见证之一）
func (s *Service) HasSellerPayout(ctx context.Context, orderID string) (bool, error) {
	return s.HasSellerPayoutTx(s.db.WithContext(ctx), orderID)
}

// HasSellerPayoutTx 事务内版本，供退款协调器在锁住订单行后复核结算见证
func (s *Service) HasSellerPayoutTx(tx *gorm.DB, orderID string) (bool, error) {
	var count int64
	err := tx.Model(&Transaction{}).
		Scopes(common.ByOrder(orderID)).
		Where("type = ? AND amount > 0", TransactionTypeSellerPayout).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("查询打款流水失败: %w", err)
	}
	return count > 0, nil
}

// ListTransactions 分页查询流水
func (s *Service) ListTransactions(ctx context.Context, query *TransactionQuery) ([]Transaction, int64, error) {
	db := s.db.WithContext(ctx).Model(&Transaction{})
	if query.OwnerType != "" {
		db = db.Where("owner_type = ?", query.OwnerType)
	}
	if query.OwnerID != "" {
		db = db.Where("owner_id = ?", query.OwnerID)
	}
	if query.OrderID != "" {
		db = db.Where("order_id = ?", query.OrderID)
	}
	if query.Type != "" {
		db = db.Where("type = ?", query.Type)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计流水失败: %w", err)
	}

	pagination := common.PaginationRequest{Page: query.Page, PageSize: query.PageSize}
	var transactions []Transaction
	err := db.Order("created_at DESC, id DESC").
		Offset(pagination.GetOffset()).
		Limit(pagination.GetPageSize()).
		Find(&transactions).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询流水失败: %w", err)
	}
	return transactions, total, nil
}

// SummarizeOrder 汇总订单全部流水用于对账
// 金额累加在进程内完成，不依赖数据库对 decimal 列做 SUM
func (s *Service) SummarizeOrder(ctx context.Context, orderID string) (*OrderSummary, error) {
	var transactions []Transaction
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&transactions).Error
	if err != nil {
		return nil, fmt.Errorf("查询订单流水失败: %w", err)
	}

	summary := &OrderSummary{
		OrderID:         orderID,
		ByType:          make(map[TransactionType]decimal.Decimal),
		NetRetained:     decimal.Zero,
		RefundedToBuyer: decimal.Zero,
		Count:           len(transactions),
	}
	for _, txn := range transactions {
		summary.ByType[txn.Type] = summary.ByType[txn.Type].Add(txn.Amount)
		if txn.OwnerType == OwnerBuyer {
			if txn.Type == TransactionTypeRefund && txn.Amount.IsPositive() {
				summary.RefundedToBuyer = summary.RefundedToBuyer.Add(txn.Amount)
			}
			continue
		}
		summary.NetRetained = summary.NetRetained.Add(txn.Amount)
	}
	return summary, nil
}
