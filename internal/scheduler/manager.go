// Package scheduler 运行周期任务：推荐列表预热和达标项目推进。
package scheduler

import (
	"context"
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"civicfund/pkg/otel"
	"civicfund/pkg/trace"
)

// Job 周期任务
type Job interface {
	Name() string
	Schedule() gocron.JobDefinition
	Execute(ctx context.Context) error
}

// Manager 任务管理器
type Manager struct {
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *zap.Logger
}

// NewManager 创建新的任务管理器
func NewManager(logger *zap.Logger) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}, nil
}

// Register 注册任务；同一任务上一轮未结束时本轮顺延
func (m *Manager) Register(job Job) error {
	_, err := m.scheduler.NewJob(
		job.Schedule(),
		gocron.NewTask(func() { m.run(job) }),
		gocron.WithName(job.Name()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", job.Name(), err)
	}
	m.logger.Info("Scheduled job registered", zap.String("job", job.Name()))
	return nil
}

func (m *Manager) run(job Job) {
	ctx, traceID := trace.Ensure(m.ctx)
	ctx, span := otel.StartSpan(ctx, "job "+job.Name(), attribute.String("job.name", job.Name()))
	defer span.End()
	log := m.logger.With(zap.String("job", job.Name()), zap.String("trace_id", traceID))

	log.Debug("Job started")
	if err := job.Execute(ctx); err != nil {
		span.RecordError(err)
		log.Error("Job failed", zap.Error(err))
		return
	}
	log.Debug("Job finished")
}

func (m *Manager) Start() {
	m.scheduler.Start()
	m.logger.Info("Scheduler started", zap.Int("jobs", len(m.scheduler.Jobs())))
}

// Stop 取消进行中的任务并等待退出
func (m *Manager) Stop() {
	m.cancel()
	if err := m.scheduler.Shutdown(); err != nil {
		m.logger.Error("Failed to shutdown scheduler", zap.Error(err))
	}
	m.logger.Info("Scheduler stopped")
}
