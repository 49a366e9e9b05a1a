package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ 结算指标 ============

var (
	// SettlementsTotal 结算结果计数，result: success/skipped/failed
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mallpay_settlements_total",
		Help: "订单结算次数（按结果分类）",
	}, []string{"result"})

	// SettlementAmount 累计结算金额（分账基数，单位元）
	SettlementAmount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mallpay_settlement_amount_total",
		Help: "累计结算基数金额",
	})

	// SchedulerRunsTotal 结算批次执行次数
	SchedulerRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mallpay_scheduler_runs_total",
		Help: "结算调度批次执行次数",
	})

	// InvariantViolationsTotal 金额守恒校验失败次数，出现即需人工介入
	InvariantViolationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mallpay_invariant_violations_total",
		Help: "分账金额守恒校验失败次数",
	})
)

// ============ 退款指标 ============

var (
	// RefundsCompletedTotal 退款完成计数，phase: before_settlement/after_settlement
	RefundsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mallpay_refunds_completed_total",
		Help: "退款完成次数（按结算前后分类）",
	}, []string{"phase"})

	// GatewayRefundFailuresTotal 网关退款调用失败次数
	GatewayRefundFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mallpay_gateway_refund_failures_total",
		Help: "支付网关退款调用失败次数",
	})
)

// ============ 订单指标 ============

var (
	// OrdersPaidTotal 订单支付成功计数
	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mallpay_orders_paid_total",
		Help: "订单支付成功次数",
	})

	// OrdersAutoCompletedTotal 订单自动完成计数
	OrdersAutoCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mallpay_orders_auto_completed_total",
		Help: "超期自动确认收货的订单数",
	})
)
