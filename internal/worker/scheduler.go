package worker

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"mallpay/internal/logger"
	"mallpay/internal/worker/tasks"
)

// PeriodicScheduler 周期任务注册器
// 按固定间隔向队列投递结算批次与订单自动完成任务
type PeriodicScheduler struct {
	scheduler *asynq.Scheduler
}

// NewPeriodicScheduler 创建周期任务注册器
func NewPeriodicScheduler(redisAddr, password string, db int,
	settlementInterval, autoCompleteInterval time.Duration) (*PeriodicScheduler, error) {

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: redisAddr, Password: password, DB: db},
		&asynq.SchedulerOpts{
			PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
				if err != nil {
					logger.Error("周期任务入队失败", zap.Error(err))
				}
			},
		},
	)

	if _, err := scheduler.Register(
		fmt.Sprintf("@every %s", settlementInterval),
		tasks.NewSettlementRunTask(),
		asynq.Queue("critical"),
	); err != nil {
		return nil, fmt.Errorf("注册结算周期任务失败: %w", err)
	}

	if _, err := scheduler.Register(
		fmt.Sprintf("@every %s", autoCompleteInterval),
		tasks.NewOrderAutoCompleteTask(),
		asynq.Queue("default"),
	); err != nil {
		return nil, fmt.Errorf("注册自动完成周期任务失败: %w", err)
	}

	return &PeriodicScheduler{scheduler: scheduler}, nil
}

// Start 启动周期投递，阻塞直到 Shutdown
func (s *PeriodicScheduler) Start() error {
	logger.Info("周期任务调度器启动")
	return s.scheduler.Run()
}

// Shutdown 停止周期投递
func (s *PeriodicScheduler) Shutdown() {
	s.scheduler.Shutdown()
}
