package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mallpay/internal/ledger"
	"mallpay/internal/order"
	"mallpay/internal/refund"
)

// backdate 把订单创建时间拨回过去，模拟等待期已满
func backdate(t *testing.T, env *testEnv, orderID string, d time.Duration) {
	t.Helper()
	require.NoError(t, env.db.Model(&order.Order{}).Where("id = ?", orderID).
		UpdateColumn("created_at", time.Now().Add(-d)).Error)
}

func TestRunOnceSettlesEligibleOrders(t *testing.T) {
	env := newTestEnv(t, 10, ClawbackSellerAndPlatform)
	ctx := context.Background()
	scheduler := NewScheduler(env.db, env.engine, 72*time.Hour, 100)

	eligible := env.paidOrder(t, "1000")
	backdate(t, env, eligible.ID, 100*time.Hour)

	fresh := env.paidOrder(t, "500")

	settled, err := scheduler.RunOnce(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	got, err := env.orders.Get(ctx, eligible.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.SettledAt)

	// 等待期未满的订单不动
	got, err = env.orders.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SettledAt)
}

func TestRunOnceUsesCompletedAtWhenPresent(t *testing.T) {
	env := newTestEnv(t, 10, ClawbackSellerAndPlatform)
	ctx := context.Background()
	scheduler := NewScheduler(env.db, env.engine, 72*time.Hour, 100)

	ord := env.paidOrder(t, "1000")
	_, err := env.orders.Transition(ctx, ord.ID, order.StatusProcessing)
	require.NoError(t, err)
	_, err = env.orders.Transition(ctx, ord.ID, order.StatusShipping)
	require.NoError(t, err)
	_, err = env.orders.Transition(ctx, ord.ID, order.StatusCompleted)
	require.NoError(t, err)

	// 创建时间很久远，但确认收货刚发生，等待期从完成时间起算
	backdate(t, env, ord.ID, 1000*time.Hour)

	settled, err := scheduler.RunOnce(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, settled)

	// 等待期满后结算
	settled, err = scheduler.RunOnce(ctx, time.Now().Add(100*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
}

func TestRunOnceSkipsCancelledAndUnpaid(t *testing.T) {
	env := newTestEnv(t, 10, ClawbackSellerAndPlatform)
	ctx := context.Background()
	scheduler := NewScheduler(env.db, env.engine, time.Hour, 100)

	cancelled := env.paidOrder(t, "1000")
	_, err := env.orders.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)
	backdate(t, env, cancelled.ID, 10*time.Hour)

	unpaid, err := env.orders.Create(ctx, &order.CreateRequest{
		BuyerID: "buyer-1", ShopID: "shop-1", SellerID: "seller-1",
		TotalAmount: decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	backdate(t, env, unpaid.ID, 10*time.Hour)

	settled, err := scheduler.RunOnce(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, settled)
}

func TestRunOnceDefersOrdersWithOpenRefund(t *testing.T) {
	env := newTestEnv(t, 10, ClawbackSellerAndPlatform)
	ctx := context.Background()
	scheduler := NewScheduler(env.db, env.engine, time.Hour, 100)

	ord := env.paidOrder(t, "1000")
	backdate(t, env, ord.ID, 10*time.Hour)

	ref, err := env.refunds.Create(ctx, "buyer-1", &refund.Request{
		OrderID: ord.ID, Amount: decimal.NewFromInt(300),
	})
	require.NoError(t, err)

	settled, err := scheduler.RunOnce(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, settled)

	// 退款终态后下一批次完成结算
	_, err = env.refunds.Reject(ctx, ref.ID, "不符合退款条件")
	require.NoError(t, err)
	settled, err = scheduler.RunOnce(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
}

func TestRunOnceRespectsBatchSize(t *testing.T) {
	env := newTestEnv(t, 10, ClawbackSellerAndPlatform)
	ctx := context.Background()
	scheduler := NewScheduler(env.db, env.engine, time.Hour, 2)

	for i := 0; i < 3; i++ {
		ord := env.paidOrder(t, "100")
		backdate(t, env, ord.ID, 10*time.Hour)
	}

	settled, err := scheduler.RunOnce(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, settled)

	settled, err = scheduler.RunOnce(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
}

func TestRunOnceIsRerunSafe(t *testing.T) {
	env := newTestEnv(t, 10, ClawbackSellerAndPlatform)
	ctx := context.Background()
	scheduler := NewScheduler(env.db, env.engine, time.Hour, 100)

	ord := env.paidOrder(t, "1000")
	backdate(t, env, ord.ID, 10*time.Hour)

	settled, err := scheduler.RunOnce(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	settled, err = scheduler.RunOnce(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, settled)

	assert.True(t, env.balance(t, ledger.OwnerSeller, "seller-1").Equal(decimal.NewFromInt(900)))
}
