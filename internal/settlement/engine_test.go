package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mallpay/internal/ledger"
	"mallpay/internal/order"
	"mallpay/internal/payment"
	"mallpay/internal/refund"
)

type testEnv struct {
	db          *gorm.DB
	ledger      *ledger.Service
	orders      *order.Service
	refunds     *refund.Service
	engine      *Engine
	coordinator *Coordinator
}

func newTestEnv(t *testing.T, feePercent float64, policy ClawbackPolicy) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&order.Order{}, &refund.Refund{}, &refund.RefundItem{},
		&ledger.Account{}, &ledger.Transaction{}, &PlatformFee{},
	))

	ledgerSvc := ledger.NewService(db)
	orderSvc := order.NewService(db, ledgerSvc)
	refundSvc := refund.NewService(db, orderSvc)
	engine := NewEngine(db, ledgerSvc, refundSvc, nil, feePercent)
	coordinator := NewCoordinator(db, ledgerSvc, refundSvc, payment.NewDevGateway(), nil, policy)
	return &testEnv{
		db:          db,
		ledger:      ledgerSvc,
		orders:      orderSvc,
		refunds:     refundSvc,
		engine:      engine,
		coordinator: coordinator,
	}
}

func (e *testEnv) paidOrder(t *testing.T, amount string) *order.Order {
	t.Helper()
	ctx := context.Background()
	total, err := decimal.NewFromString(amount)
	require.NoError(t, err)
	ord, err := e.orders.Create(ctx, &order.CreateRequest{
		BuyerID: "buyer-1", ShopID: "shop-1", SellerID: "seller-1",
		TotalAmount: total,
	})
	require.NoError(t, err)
	ord, err = e.orders.MarkPaid(ctx, ord.ID)
	require.NoError(t, err)
	return ord
}

// completeRefund 走完申请-同意-资金落地的完整退款链路
func (e *testEnv) completeRefund(t *testing.T, orderID, amount string) *refund.Refund {
	t.Helper()
	ctx := context.Background()
	amt, err := decimal.NewFromString(amount)
	require.NoError(t, err)
	ref, err := e.refunds.Create(ctx, "buyer-1", &refund.Request{OrderID: orderID, Amount: amt})
	require.NoError(t, err)
	_, err = e.refunds.Approve(ctx, ref.ID, false)
	require.NoError(t, err)
	ref, err = e.coordinator.Complete(ctx, ref.ID)
	require.NoError(t, err)
	return ref
}

func (e *testEnv) balance(t *testing.T, ownerType ledger.OwnerType, ownerID string) decimal.Decimal {
	t.Helper()
	balance, err := e.ledger.GetBalance(context.Background(), ownerType, ownerID)
	require.NoError(t, err)
	return balance
}

func TestSettleOrder(t *testing.T) {
	env := newTestEnv(t, 10, ClawbackSellerAndPlatform)
	ctx := context.Background()
	ord := env.paidOrder(t, "1000")

	fee, err := env.engine.SettleOrder(ctx, ord.ID)
	require.NoError(t, err)
	assert.True(t, fee.BaseAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, fee.FeeAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, fee.SellerAmount.Equal(decimal.NewFromInt(900)))

	// 佣金留在平台账户，卖家应得到账
	assert.True(t, env.balance(t, ledger.OwnerPlatform, ledger.PlatformOwnerID).Equal(decimal.NewFromInt(100)))
	assert.True(t, env.balance(t, ledger.OwnerSeller, "seller-1").Equal(decimal.NewFromInt(900)))

	settled, err := env.orders.Get(ctx, ord.ID)
	require.NoError(t, err)
	assert.NotNil(t, settled.SettledAt)
}

func TestSettleOrderIsIdempotent(t *testing.T) {
	env := newTestEnv(t, 10, ClawbackSellerAndPlatform)
	ctx := context.Background()
	ord := env.paidOrder(t, "1000")

	_, err := env.engine.SettleOrder(ctx, ord.ID)
	require.NoError(t, err)

	_, err = env.engine.SettleOrder(ctx, ord.ID)
	assert.ErrorIs(t, err, ErrAlreadySettled)

	// 卖家只收到一次打款
	assert.True(t, env.balance(t, ledger.OwnerSeller, "seller-1").Equal(decimal.NewFromInt(900)))

	var count int64
	require.NoError(t, env.db.Model(&ledger.Transaction{}).
		Where("order_id = ? AND type = ? AND amount > 0", ord.ID, ledger.TransactionTypeSellerPayout).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSettleOrderRejectsUnpaidAndCancelled(t *testing.T) {
	env := newTestEnv(t, 10, ClawbackSellerAndPlatform)
	ctx := context.Background()

	unpaid, err := env.orders.Create(ctx, &order.CreateRequest{
		BuyerID: "buyer-1", ShopID: "shop-1", SellerID: "seller-1",
		TotalAmount: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	_, err = env.engine.SettleOrder(ctx, unpaid.ID)
	assert.ErrorIs(t, err, ErrOrderNotSettleable)

	cancelled := env.paidOrder(t, "500")
	_, err = env.orders.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)
	_, err = env.engine.SettleOrder(ctx, cancelled.ID)
	assert.ErrorIs(t, err, ErrOrderNotSettleable)
}

func TestSettleOrderDeferredWhileRefundOpen(t *testing.T) {
	env := newTestEnv(t, 10, ClawbackSellerAndPlatform)
	ctx := context.Background()
	ord := env.paidOrder(t, "1000")

	ref, err := env.refunds.Create(ctx, "buyer-1", &refund.Request{
		OrderID: ord.ID, Amount: decimal.NewFromInt(300),
	})
	require.NoError(t, err)

	_, err = env.engine.SettleOrder(ctx, ord.ID)
	assert.ErrorIs(t, err, ErrRefundInFlight)

	// 退款被驳回后可以结算全额
	_, err = env.refunds.Reject(ctx, ref.ID, "不符合退款条件")
	require.NoError(t, err)
	fee, err := env.engine.SettleOrder(ctx, ord.ID)
	require.NoError(t, err)
	assert.True(t, fee.BaseAmount.Equal(decimal.NewFromInt(1000)))
}

func TestSettleOrderAfterPartialRefund(t *testing.T) {
	env := newTestEnv(t, 10, ClawbackSellerAndPlatform)
	ctx := context.Background()
	ord := env.paidOrder(t, "1000")

	env.completeRefund(t, ord.ID, "300")

	// 基数为剩余 700
	fee, err := env.engine.SettleOrder(ctx, ord.ID)
	require.NoError(t, err)
	assert.True(t, fee.BaseAmount.Equal(decimal.NewFromInt(700)))
	assert.True(t, fee.FeeAmount.Equal(decimal.NewFromInt(70)))
	assert.True(t, fee.SellerAmount.Equal(decimal.NewFromInt(630)))

	// 平台：+1000 货款 -300 退款 -630 打款 = 70 佣金
	assert.True(t, env.balance(t, ledger.OwnerPlatform, ledger.PlatformOwnerID).Equal(decimal.NewFromInt(70)))
	assert.True(t, env.balance(t, ledger.OwnerSeller, "seller-1").Equal(decimal.NewFromInt(630)))
	assert.True(t, env.balance(t, ledger.OwnerBuyer, "buyer-1").Equal(decimal.NewFromInt(300)))
}

func TestSettleAndRefundNeverExceedOrderTotal(t *testing.T) {
	env := newTestEnv(t, 10, ClawbackSellerAndPlatform)
	ctx := context.Background()
	ord := env.paidOrder(t, "1000")

	ref, err := env.refunds.Create(ctx, "buyer-1", &refund.Request{
		OrderID: ord.ID, Amount: decimal.NewFromInt(300),
	})
	require.NoError(t, err)
	_, err = env.refunds.Approve(ctx, ref.ID, false)
	require.NoError(t, err)

	// 待落地退款占据订单期间结算必须让路，不得按全额基数打款
	_, err = env.engine.SettleOrder(ctx, ord.ID)
	assert.ErrorIs(t, err, ErrRefundInFlight)

	_, err = env.coordinator.Complete(ctx, ref.ID)
	require.NoError(t, err)

	fee, err := env.engine.SettleOrder(ctx, ord.ID)
	require.NoError(t, err)
	assert.True(t, fee.BaseAmount.Equal(decimal.NewFromInt(700)))

	// 买家退款、卖家货款与平台佣金合计恰为订单总额
	outflow := env.balance(t, ledger.OwnerBuyer, "buyer-1").
		Add(env.balance(t, ledger.OwnerSeller, "seller-1")).
		Add(env.balance(t, ledger.OwnerPlatform, ledger.PlatformOwnerID))
	assert.True(t, outflow.Equal(decimal.NewFromInt(1000)),
		"资金总流出 %s 不等于订单总额", outflow.String())
}

func TestSettleOrderRoundsHalfUp(t *testing.T) {
	env := newTestEnv(t, 10, ClawbackSellerAndPlatform)
	ctx := context.Background()
	ord := env.paidOrder(t, "99.99")

	fee, err := env.engine.SettleOrder(ctx, ord.ID)
	require.NoError(t, err)
	// 99.99 × 10% = 9.999，四舍五入到 10.00
	assert.Equal(t, "10", fee.FeeAmount.String())
	assert.Equal(t, "89.99", fee.SellerAmount.String())
	assert.True(t, fee.FeeAmount.Add(fee.SellerAmount).Equal(fee.BaseAmount))
}

func TestSettleOrderNotFound(t *testing.T) {
	env := newTestEnv(t, 10, ClawbackSellerAndPlatform)

	_, err := env.engine.SettleOrder(context.Background(), "missing")
	assert.True(t, errors.Is(err, order.ErrOrderNotFound))
}
