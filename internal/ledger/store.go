package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/blues/fundvault/internal/model"
	"github.com/blues/fundvault/internal/wallet"
)

var (
	ErrAlreadyExists     = errors.New("fund already exists")
	ErrNotFound          = errors.New("fund not found")
	ErrInvariantViolated = errors.New("fund invariant violated")
)

// Tx 单次变更内可用的操作, 与记录写入同属一个工作单元
type Tx interface {
	wallet.Transferer
	Record(ctx context.Context, record *model.FundRecordModel) error
}

// MutateFunc 对资金记录的变更, 返回错误时整个工作单元回滚
type MutateFunc func(ctx context.Context, fund *model.FundModel, tx Tx) error

// ListQuery 资金列表查询条件
type ListQuery struct {
	Creator  string
	Active   *bool
	Page     int
	PageSize int
}

// RecordStats 资金记录统计
type RecordStats struct {
	Donations   int64 `json:"donations"`
	Donors      int64 `json:"donors"`
	Withdrawals int64 `json:"withdrawals"`
}

// Store 资金账本存储
type Store interface {
	// Create 写入新记录; 地址已存在时返回 ErrAlreadyExists
	Create(ctx context.Context, fund *model.FundModel, fn MutateFunc) error
	// Get 读取记录; 不存在时返回 ErrNotFound
	Get(ctx context.Context, address string) (*model.FundModel, error)
	// Apply 读取、变更并写回记录, 同一地址的调用串行执行
	Apply(ctx context.Context, address string, fn MutateFunc) (*model.FundModel, error)
	List(ctx context.Context, query ListQuery) ([]model.FundModel, int64, error)
	Records(ctx context.Context, address string, page, pageSize int) ([]model.FundRecordModel, int64, error)
	RecordStats(ctx context.Context, address string) (RecordStats, error)
}

// checkTransition 校验变更前后的记录满足不变量
func checkTransition(before, after *model.FundModel) error {
	switch {
	case after.Address != before.Address,
		after.Creator != before.Creator,
		after.Name != before.Name,
		after.Description != before.Description,
		!after.DueDate.Equal(before.DueDate),
		!after.DateCreated.Equal(before.DateCreated),
		after.GoalAmount != before.GoalAmount,
		after.IsLocked != before.IsLocked:
		return fmt.Errorf("%w: immutable field changed", ErrInvariantViolated)
	case after.TotalDonated < before.TotalDonated:
		return fmt.Errorf("%w: total donated decreased", ErrInvariantViolated)
	case after.CurrentBalance > after.TotalDonated:
		return fmt.Errorf("%w: balance exceeds total donated", ErrInvariantViolated)
	case !before.IsActive && after.IsActive:
		return fmt.Errorf("%w: inactive fund reactivated", ErrInvariantViolated)
	case !before.IsActive && (after.CurrentBalance != before.CurrentBalance ||
		after.TotalDonated != before.TotalDonated ||
		after.ReserveAmount != before.ReserveAmount):
		return fmt.Errorf("%w: inactive fund mutated", ErrInvariantViolated)
	case !after.IsActive && after.Holding() != 0:
		return fmt.Errorf("%w: closed fund still holds value", ErrInvariantViolated)
	}
	return nil
}

// checkNew 校验新建记录的初始状态
func checkNew(fund *model.FundModel) error {
	switch {
	case fund.Address == "":
		return fmt.Errorf("%w: empty address", ErrInvariantViolated)
	case !fund.IsActive:
		return fmt.Errorf("%w: new fund must be active", ErrInvariantViolated)
	case fund.CurrentBalance > fund.TotalDonated:
		return fmt.Errorf("%w: balance exceeds total donated", ErrInvariantViolated)
	}
	return nil
}

// NormalizePage 规范分页参数: 页码从1开始, 每页默认10条, 最多100条
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
