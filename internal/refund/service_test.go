package refund

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mallpay/internal/ledger"
	"mallpay/internal/order"
)

func setupTestService(t *testing.T) (*Service, *order.Service) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&order.Order{}, &Refund{}, &RefundItem{},
		&ledger.Account{}, &ledger.Transaction{},
	))
	orderSvc := order.NewService(db, ledger.NewService(db))
	return NewService(db, orderSvc), orderSvc
}

func createPaidOrder(t *testing.T, orders *order.Service, amount int64) *order.Order {
	t.Helper()
	ctx := context.Background()
	ord, err := orders.Create(ctx, &order.CreateRequest{
		BuyerID: "buyer-1", ShopID: "shop-1", SellerID: "seller-1",
		TotalAmount: decimal.NewFromInt(amount),
	})
	require.NoError(t, err)
	ord, err = orders.MarkPaid(ctx, ord.ID)
	require.NoError(t, err)
	return ord
}

func TestCreateRefund(t *testing.T) {
	svc, orders := setupTestService(t)
	ctx := context.Background()
	ord := createPaidOrder(t, orders, 1000)

	refund, err := svc.Create(ctx, "buyer-1", &Request{
		OrderID: ord.ID,
		Amount:  decimal.NewFromInt(300),
		Reason:  "商品破损",
		Images:  []string{"https://img.example.com/a.jpg"},
		Items: []RequestItem{
			{ProductID: "p-1", Name: "商品A", Quantity: 1, Amount: decimal.NewFromInt(300)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, refund.Status)
	assert.Len(t, refund.Items, 1)
}

func TestCreateRefundRejectsUnpaidOrder(t *testing.T) {
	svc, orders := setupTestService(t)
	ctx := context.Background()

	ord, err := orders.Create(ctx, &order.CreateRequest{
		BuyerID: "buyer-1", ShopID: "shop-1", SellerID: "seller-1",
		TotalAmount: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, "buyer-1", &Request{OrderID: ord.ID, Amount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, ErrOrderNotRefundable)
}

func TestCreateRefundEnforcesRemainingBound(t *testing.T) {
	svc, orders := setupTestService(t)
	ctx := context.Background()
	ord := createPaidOrder(t, orders, 1000)

	_, err := svc.Create(ctx, "buyer-1", &Request{OrderID: ord.ID, Amount: decimal.NewFromInt(700)})
	require.NoError(t, err)

	// 700 + 400 > 1000
	_, err = svc.Create(ctx, "buyer-1", &Request{OrderID: ord.ID, Amount: decimal.NewFromInt(400)})
	assert.ErrorIs(t, err, ErrAmountExceedsRemaining)

	// 恰好退满允许
	_, err = svc.Create(ctx, "buyer-1", &Request{OrderID: ord.ID, Amount: decimal.NewFromInt(300)})
	require.NoError(t, err)
}

func TestRejectedRefundFreesQuota(t *testing.T) {
	svc, orders := setupTestService(t)
	ctx := context.Background()
	ord := createPaidOrder(t, orders, 1000)

	first, err := svc.Create(ctx, "buyer-1", &Request{OrderID: ord.ID, Amount: decimal.NewFromInt(800)})
	require.NoError(t, err)
	_, err = svc.Reject(ctx, first.ID, "凭证不足")
	require.NoError(t, err)

	// 驳回的退款不再占用额度
	_, err = svc.Create(ctx, "buyer-1", &Request{OrderID: ord.ID, Amount: decimal.NewFromInt(900)})
	require.NoError(t, err)
}

func TestCreateRefundItemsMustSumToAmount(t *testing.T) {
	svc, orders := setupTestService(t)
	ctx := context.Background()
	ord := createPaidOrder(t, orders, 1000)

	_, err := svc.Create(ctx, "buyer-1", &Request{
		OrderID: ord.ID,
		Amount:  decimal.NewFromInt(300),
		Items: []RequestItem{
			{ProductID: "p-1", Quantity: 1, Amount: decimal.NewFromInt(100)},
			{ProductID: "p-2", Quantity: 1, Amount: decimal.NewFromInt(150)},
		},
	})
	assert.ErrorIs(t, err, ErrItemsAmountMismatch)
}

func TestApproveWithoutReturn(t *testing.T) {
	svc, orders := setupTestService(t)
	ctx := context.Background()
	ord := createPaidOrder(t, orders, 1000)

	refund, err := svc.Create(ctx, "buyer-1", &Request{OrderID: ord.ID, Amount: decimal.NewFromInt(300)})
	require.NoError(t, err)

	refund, err = svc.Approve(ctx, refund.ID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusApprovedRefunding, refund.Status)
}

func TestReturnFlow(t *testing.T) {
	svc, orders := setupTestService(t)
	ctx := context.Background()
	ord := createPaidOrder(t, orders, 1000)

	refund, err := svc.Create(ctx, "buyer-1", &Request{OrderID: ord.ID, Amount: decimal.NewFromInt(300)})
	require.NoError(t, err)

	refund, err = svc.Approve(ctx, refund.ID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusApprovedWaitingReturn, refund.Status)

	refund, err = svc.MarkReturning(ctx, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReturning, refund.Status)

	refund, err = svc.ConfirmReturned(ctx, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApprovedRefunding, refund.Status)
}

func TestRejectAfterInspection(t *testing.T) {
	svc, orders := setupTestService(t)
	ctx := context.Background()
	ord := createPaidOrder(t, orders, 1000)

	refund, err := svc.Create(ctx, "buyer-1", &Request{OrderID: ord.ID, Amount: decimal.NewFromInt(300)})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, refund.ID, true)
	require.NoError(t, err)
	_, err = svc.MarkReturning(ctx, refund.ID)
	require.NoError(t, err)

	refund, err = svc.Reject(ctx, refund.ID, "退回商品与订单不符")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, refund.Status)
	assert.Equal(t, "退回商品与订单不符", refund.RejectReason)
}

func TestIllegalTransitions(t *testing.T) {
	svc, orders := setupTestService(t)
	ctx := context.Background()
	ord := createPaidOrder(t, orders, 1000)

	refund, err := svc.Create(ctx, "buyer-1", &Request{OrderID: ord.ID, Amount: decimal.NewFromInt(300)})
	require.NoError(t, err)

	// 未同意不能标记寄出
	_, err = svc.MarkReturning(ctx, refund.ID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	// 驳回后终态
	_, err = svc.Reject(ctx, refund.ID, "不符合退款条件")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, refund.ID, false)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}
