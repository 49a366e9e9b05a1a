package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mallpay/api/handlers/orders"
	"mallpay/api/handlers/refunds"
	"mallpay/api/handlers/settle"
	"mallpay/api/handlers/wallet"
	"mallpay/internal/config"
	"mallpay/internal/infra/queue"
	"mallpay/internal/ledger"
	"mallpay/internal/logger"
	"mallpay/internal/notification"
	"mallpay/internal/order"
	"mallpay/internal/payment"
	"mallpay/internal/refund"
	"mallpay/internal/settlement"
)

// AppContainer 应用依赖容器，集中完成服务装配
type AppContainer struct {
	Config *config.Config
	DB     *gorm.DB
	Queue  *queue.Client

	// 领域服务
	LedgerService *ledger.Service
	OrderService  *order.Service
	RefundService *refund.Service
	Engine        *settlement.Engine
	Scheduler     *settlement.Scheduler
	Coordinator   *settlement.Coordinator
	Gateway       payment.Gateway
	Notifier      notification.Notifier

	// API 处理器
	OrderHandler  *orders.Handler
	RefundHandler *refunds.Handler
	WalletHandler *wallet.Handler
	SettleHandler *settle.Handler
}

// BuildContainer 装配依赖容器
// queueClient 为空时通知降级为日志输出，退款完成需同步触发
func BuildContainer(cfg *config.Config, db *gorm.DB, queueClient *queue.Client) *AppContainer {
	ledgerSvc := ledger.NewService(db)
	orderSvc := order.NewService(db, ledgerSvc)
	refundSvc := refund.NewService(db, orderSvc)

	var notifier notification.Notifier
	if queueClient != nil {
		notifier = notification.NewQueueNotifier(queueClient)
	} else {
		notifier = notification.NewLogNotifier()
	}

	var gateway payment.Gateway
	if cfg.Payment.GatewayBaseURL != "" {
		gateway = payment.NewHTTPGateway(cfg.Payment.GatewayBaseURL, cfg.Payment.GatewayAPIKey,
			time.Duration(cfg.Payment.GatewayTimeout)*time.Second)
	} else {
		gateway = payment.NewDevGateway()
	}
	engine := settlement.NewEngine(db, ledgerSvc, refundSvc, notifier, cfg.Settlement.FeePercent)
	scheduler := settlement.NewScheduler(db, engine,
		cfg.Settlement.WaitingPeriodDuration(), cfg.Settlement.BatchSize)
	coordinator := settlement.NewCoordinator(db, ledgerSvc, refundSvc,
		gateway, notifier, settlement.ClawbackPolicy(cfg.Refund.ClawbackPolicy))

	var enqueueFn func(c *gin.Context, refundID string)
	if queueClient != nil {
		enqueueFn = func(c *gin.Context, refundID string) {
			if err := queueClient.EnqueueRefundCompletion(c.Request.Context(), refundID); err != nil {
				logger.Warn("退款完成任务入队失败",
					zap.String("refund_id", refundID),
					zap.Error(err),
				)
			}
		}
	}

	return &AppContainer{
		Config: cfg,
		DB:     db,
		Queue:  queueClient,

		LedgerService: ledgerSvc,
		OrderService:  orderSvc,
		RefundService: refundSvc,
		Engine:        engine,
		Scheduler:     scheduler,
		Coordinator:   coordinator,
		Gateway:       gateway,
		Notifier:      notifier,

		OrderHandler:  orders.NewHandler(orderSvc),
		RefundHandler: refunds.NewHandler(refundSvc, coordinator, notifier, enqueueFn),
		WalletHandler: wallet.NewHandler(ledgerSvc),
		SettleHandler: settle.NewHandler(engine, scheduler, ledgerSvc),
	}
}
