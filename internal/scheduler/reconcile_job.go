package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blues/fundvault/internal/config"
	"github.com/blues/fundvault/internal/ledger"
	"github.com/blues/fundvault/internal/logger"
	"github.com/blues/fundvault/internal/metrics"
	"github.com/blues/fundvault/internal/model"
	"github.com/blues/fundvault/internal/wallet"
	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"
)

const reconcilePageSize = 100

// ReconcileJob 账本对账任务: 资金账户实际持有金额应等于 current_balance + reserve_amount
type ReconcileJob struct {
	store  ledger.Store
	bank   wallet.Bank
	config config.TaskConfig
}

// NewReconcileJob 创建账本对账任务
func NewReconcileJob(store ledger.Store, bank wallet.Bank, cfg config.TaskConfig) *ReconcileJob {
	return &ReconcileJob{
		store:  store,
		bank:   bank,
		config: cfg,
	}
}

// GetName 获取任务名称
func (j *ReconcileJob) GetName() string {
	return "ledger_reconcile"
}

// GetSchedule 获取调度配置
func (j *ReconcileJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Interval) * time.Second)
}

// Execute 执行任务
func (j *ReconcileJob) Execute() {
	start := time.Now()
	checked, mismatches, err := j.Run(context.Background())
	if err != nil {
		logger.Error("Ledger reconciliation failed: %v", err)
		return
	}
	metrics.SetReconcileMismatches(mismatches)
	logger.Info("Ledger reconciliation checked %d funds, %d mismatches in %s", checked, mismatches, time.Since(start))
}

// Run 分页读取活跃资金, 在协程池中逐个核对
func (j *ReconcileJob) Run(ctx context.Context) (checked, mismatches int, err error) {
	size := j.config.PoolSize
	if size <= 0 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return 0, 0, fmt.Errorf("create reconcile pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mismatch atomic.Int64
		active   = true
	)
	for page := 1; ; page++ {
		funds, total, err := j.store.List(ctx, ledger.ListQuery{Active: &active, Page: page, PageSize: reconcilePageSize})
		if err != nil {
			wg.Wait()
			return checked, int(mismatch.Load()), fmt.Errorf("list active funds: %w", err)
		}

		for i := range funds {
			fund := funds[i]
			wg.Add(1)
			if err := pool.Submit(func() {
				defer wg.Done()
				if !j.check(ctx, &fund) {
					mismatch.Add(1)
				}
			}); err != nil {
				wg.Done()
				logger.Error("Failed to submit reconcile task for %s: %v", fund.Address, err)
				continue
			}
			checked++
		}

		if len(funds) == 0 || int64(page*reconcilePageSize) >= total {
			break
		}
	}

	wg.Wait()
	return checked, int(mismatch.Load()), nil
}

// check 核对单个资金, 一致时返回 true
func (j *ReconcileJob) check(ctx context.Context, fund *model.FundModel) bool {
	held, err := j.bank.Balance(ctx, fund.Address)
	if err != nil {
		logger.Error("Failed to read balance of fund %s: %v", fund.Address, err)
		return false
	}
	if expected := fund.Holding(); held != expected {
		logger.Warn("Fund %s holds %d but ledger expects %d (balance %d, reserve %d)",
			fund.Address, held, expected, fund.CurrentBalance, fund.ReserveAmount)
		return false
	}
	return true
}
