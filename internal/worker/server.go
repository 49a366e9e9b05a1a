package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"mallpay/internal/logger"
	"mallpay/internal/worker/handlers"
	"mallpay/internal/worker/tasks"
)

// Server 后台任务服务，消费结算、退款与通知队列
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

// NewServer 创建任务服务
func NewServer(redisAddr, password string, db int,
	settlementHandler *handlers.SettlementHandler,
	refundHandler *handlers.RefundHandler,
	notificationHandler *handlers.NotificationHandler) *Server {

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr, Password: password, DB: db},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("任务执行失败",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeSettlementRun, settlementHandler.HandleSettlementRun)
	mux.HandleFunc(tasks.TypeOrderAutoComplete, settlementHandler.HandleOrderAutoComplete)
	mux.HandleFunc(tasks.TypeRefundComplete, refundHandler.HandleRefundComplete)
	mux.HandleFunc(tasks.TypeNotificationSend, notificationHandler.HandleNotificationSend)

	return &Server{srv: srv, mux: mux}
}

// Start 启动任务消费，阻塞直到 Shutdown
func (s *Server) Start() error {
	logger.Info("任务服务启动")
	return s.srv.Run(s.mux)
}

// Shutdown 优雅停止任务消费
func (s *Server) Shutdown() {
	logger.Info("任务服务停止中")
	s.srv.Shutdown()
}
