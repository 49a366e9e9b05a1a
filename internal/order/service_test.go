package order

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mallpay/internal/ledger"
)

func setupTestService(t *testing.T) (*Service, *ledger.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Order{}, &ledger.Account{}, &ledger.Transaction{}))
	ledgerSvc := ledger.NewService(db)
	return NewService(db, ledgerSvc), ledgerSvc, db
}

func createTestOrder(t *testing.T, svc *Service, amount int64) *Order {
	t.Helper()
	order, err := svc.Create(context.Background(), &CreateRequest{
		BuyerID:     "buyer-1",
		ShopID:      "shop-1",
		SellerID:    "seller-1",
		TotalAmount: decimal.NewFromInt(amount),
	})
	require.NoError(t, err)
	return order
}

func TestCreateOrder(t *testing.T) {
	svc, _, _ := setupTestService(t)

	order := createTestOrder(t, svc, 1000)
	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, PaymentStatusUnpaid, order.PaymentStatus)
	assert.Nil(t, order.SettledAt)
}

func TestCreateOrderRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _ := setupTestService(t)

	_, err := svc.Create(context.Background(), &CreateRequest{
		BuyerID: "buyer-1", ShopID: "shop-1", SellerID: "seller-1",
		TotalAmount: decimal.Zero,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTransitionHappyPath(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc, 1000)

	for _, to := range []Status{StatusProcessing, StatusShipping, StatusCompleted} {
		var err error
		order, err = svc.Transition(ctx, order.ID, to)
		require.NoError(t, err)
		assert.Equal(t, to, order.Status)
	}
	assert.NotNil(t, order.CompletedAt)
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc, 1000)

	// pending 不能直接完成
	_, err := svc.Transition(ctx, order.ID, StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	// 终态不可再流转
	_, err = svc.Cancel(ctx, order.ID)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, order.ID, StatusProcessing)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	order := createTestOrder(t, svc, 1000)
	_, err := svc.Transition(ctx, order.ID, StatusProcessing)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, order.ID, StatusShipping)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
}

func TestMarkPaidCreditsEscrow(t *testing.T) {
	svc, ledgerSvc, _ := setupTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc, 1000)

	paid, err := svc.MarkPaid(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPaid, paid.PaymentStatus)
	assert.NotNil(t, paid.PaidAt)

	balance, err := ledgerSvc.GetBalance(ctx, ledger.OwnerPlatform, ledger.PlatformOwnerID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1000)))
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	svc, ledgerSvc, db := setupTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc, 1000)

	_, err := svc.MarkPaid(ctx, order.ID)
	require.NoError(t, err)
	// 网关重复回调
	_, err = svc.MarkPaid(ctx, order.ID)
	require.NoError(t, err)

	balance, err := ledgerSvc.GetBalance(ctx, ledger.OwnerPlatform, ledger.PlatformOwnerID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1000)))

	var count int64
	require.NoError(t, db.Model(&ledger.Transaction{}).
		Where("order_id = ? AND type = ?", order.ID, ledger.TransactionTypeOrderPayment).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestMarkPaidRejectsCancelledOrder(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc, 1000)

	_, err := svc.Cancel(ctx, order.ID)
	require.NoError(t, err)

	_, err = svc.MarkPaid(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotPayable)
}

func TestMarkPaymentFailed(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc, 1000)

	failed, err := svc.MarkPaymentFailed(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusFailed, failed.PaymentStatus)

	// 失败后不能再标记支付成功
	_, err = svc.MarkPaid(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotPayable)
}

func TestMarkPaymentFailedAfterPaidReversesEscrow(t *testing.T) {
	svc, ledgerSvc, _ := setupTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc, 1000)

	_, err := svc.MarkPaid(ctx, order.ID)
	require.NoError(t, err)

	// 网关撤销已捕获的支付：paid -> failed，托管货款同事务冲正
	failed, err := svc.MarkPaymentFailed(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusFailed, failed.PaymentStatus)

	balance, err := ledgerSvc.GetBalance(ctx, ledger.OwnerPlatform, ledger.PlatformOwnerID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "托管余额应冲正归零，实际 %s", balance.String())

	txs, _, err := ledgerSvc.ListTransactions(ctx, &ledger.TransactionQuery{OrderID: order.ID})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	net := decimal.Zero
	for _, txn := range txs {
		assert.Equal(t, ledger.TransactionTypeOrderPayment, txn.Type)
		net = net.Add(txn.Amount)
	}
	assert.True(t, net.IsZero(), "入托管与冲正流水净额应为零")
}

func TestMarkPaymentFailedIsIdempotent(t *testing.T) {
	svc, ledgerSvc, _ := setupTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc, 1000)

	_, err := svc.MarkPaid(ctx, order.ID)
	require.NoError(t, err)
	_, err = svc.MarkPaymentFailed(ctx, order.ID)
	require.NoError(t, err)

	// 重复通知不重复冲正
	failed, err := svc.MarkPaymentFailed(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusFailed, failed.PaymentStatus)

	txs, _, err := ledgerSvc.ListTransactions(ctx, &ledger.TransactionQuery{OrderID: order.ID})
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestMarkPaymentFailedRejectedAfterSettlement(t *testing.T) {
	svc, _, db := setupTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc, 1000)

	_, err := svc.MarkPaid(ctx, order.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&Order{}).Where("id = ?", order.ID).
		Update("settled_at", time.Now()).Error)

	// 资金已出托管，支付状态不可回退
	_, err = svc.MarkPaymentFailed(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotPayable)
}

func TestAutoCompletePass(t *testing.T) {
	svc, _, db := setupTestService(t)
	ctx := context.Background()

	stale := createTestOrder(t, svc, 1000)
	_, err := svc.MarkPaid(ctx, stale.ID)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, stale.ID, StatusProcessing)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, stale.ID, StatusShipping)
	require.NoError(t, err)

	fresh := createTestOrder(t, svc, 500)
	_, err = svc.MarkPaid(ctx, fresh.ID)
	require.NoError(t, err)

	// 回拨 stale 的更新时间，模拟发货后长时间未确认
	old := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, db.Model(&Order{}).Where("id = ?", stale.ID).
		UpdateColumn("updated_at", old).Error)

	completed, err := svc.AutoCompletePass(ctx, time.Now(), 7*24*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)

	got, err := svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	// 未发货订单不受影响
	got, err = svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}
