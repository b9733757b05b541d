package scheduler

import (
	"fmt"

	"github.com/blues/fundvault/internal/config"
	"github.com/blues/fundvault/internal/ledger"
	"github.com/blues/fundvault/internal/logger"
	"github.com/blues/fundvault/internal/wallet"
	"github.com/go-co-op/gocron/v2"
)

// Manager 任务管理器
type Manager struct {
	scheduler gocron.Scheduler
	store     ledger.Store
	bank      wallet.Bank
	config    *config.Config
}

// NewManager 创建新的任务管理器
func NewManager(store ledger.Store, bank wallet.Bank, cfg *config.Config) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Manager{
		scheduler: s,
		store:     store,
		bank:      bank,
		config:    cfg,
	}, nil
}

// Start 注册所有任务并启动调度器
func (m *Manager) Start() error {
	if err := m.RegisterJobs(); err != nil {
		return err
	}
	m.scheduler.Start()

	logger.Info("Task manager started successfully")
	return nil
}

// RegisterJobs 注册所有任务
func (m *Manager) RegisterJobs() error {
	// 注册账本对账任务
	return m.register(NewReconcileJob(m.store, m.bank, m.config.Task))
}

// Job 定时任务
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	Execute()
}

func (m *Manager) register(job Job) error {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", job.GetName(), err)
	}
	return nil
}

// Stop 停止任务管理器
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
