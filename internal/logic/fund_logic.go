package logic

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blues/fundvault/internal/chain"
	"github.com/blues/fundvault/internal/clock"
	"github.com/blues/fundvault/internal/ledger"
	"github.com/blues/fundvault/internal/logger"
	"github.com/blues/fundvault/internal/metrics"
	"github.com/blues/fundvault/internal/model"
	"github.com/blues/fundvault/internal/reserve"
	"github.com/blues/fundvault/internal/wallet"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MaxNameLength        = 32 // 名称参与地址派生, 与链上种子长度上限一致
	MaxDescriptionLength = 4096

	// MaxAmount 金额上限, 超出部分无法存入账户余额
	MaxAmount = wallet.MaxAmount
)

// 截止日期支持的格式
var dueDateLayouts = []string{"2006-01-02", "02.01.2006"}

// CreateFundRequest 创建资金请求
type CreateFundRequest struct {
	Name        string
	Description string
	DueDate     string
	GoalAmount  uint64
	IsLocked    bool
}

// FundStats 资金统计
type FundStats struct {
	Address        string `json:"address"`
	GoalAmount     uint64 `json:"goal_amount"`
	TotalDonated   uint64 `json:"total_donated"`
	CurrentBalance uint64 `json:"current_balance"`
	Withdrawn      uint64 `json:"withdrawn"`
	Progress       string `json:"progress"` // 完成百分比, 保留两位小数
	GoalReached    bool   `json:"goal_reached"`
	Donations      int64  `json:"donations"`
	Donors         int64  `json:"donors"`
	Withdrawals    int64  `json:"withdrawals"`
	Unlocked       bool   `json:"unlocked"`
	IsActive       bool   `json:"is_active"`
}

// FundLogic 资金业务逻辑: 创建、捐赠、提取
type FundLogic struct {
	store      ledger.Store
	reserve    reserve.Policy
	clock      clock.Clock
	recordSize int
}

// NewFundLogic 创建资金业务逻辑
func NewFundLogic(store ledger.Store, policy reserve.Policy, clk clock.Clock, recordSize int) *FundLogic {
	return &FundLogic{
		store:      store,
		reserve:    policy,
		clock:      clk,
		recordSize: recordSize,
	}
}

// Create 创建资金, 创建者同时存入最低保留金额
func (l *FundLogic) Create(ctx context.Context, creator string, req CreateFundRequest) (fund *model.FundModel, err error) {
	defer func() { l.observe("create", err) }()

	creator = chain.NormalizeIdentity(creator)
	if creator == "" {
		return nil, ErrUnauthorized
	}
	if err := validateMetadata(req.Name, req.Description); err != nil {
		return nil, err
	}
	dueDate, err := ParseDueDate(req.DueDate)
	if err != nil {
		return nil, err
	}
	if req.GoalAmount > MaxAmount {
		return nil, fmt.Errorf("%w: goal exceeds %d", ErrInvalidAmount, MaxAmount)
	}

	fund = &model.FundModel{
		Address:       chain.DeriveFundAddress(creator, req.Name),
		Creator:       creator,
		Name:          req.Name,
		Description:   req.Description,
		DueDate:       dueDate,
		DateCreated:   l.clock.Now().UTC(),
		GoalAmount:    req.GoalAmount,
		ReserveAmount: l.reserve.Minimum(l.recordSize),
		IsActive:      true,
		IsLocked:      req.IsLocked,
	}

	err = l.store.Create(ctx, fund, func(ctx context.Context, f *model.FundModel, tx ledger.Tx) error {
		if err := tx.Transfer(ctx, creator, f.Address, f.ReserveAmount); err != nil {
			return err
		}
		return tx.Record(ctx, l.newRecord(f, model.FundRecordCreate, creator, f.ReserveAmount))
	})
	if err != nil {
		logger.Warn("Create fund %s by %s rejected: %v", fund.Address, creator, err)
		return nil, err
	}

	logger.Info("Fund %s created by %s (goal %d, due %s, locked %t, reserve %d)",
		fund.Address, creator, fund.GoalAmount, fund.DueDate.Format("2006-01-02"), fund.IsLocked, fund.ReserveAmount)
	return fund, nil
}

// Donate 捐赠: 转账和余额更新在同一工作单元内完成
func (l *FundLogic) Donate(ctx context.Context, address, donor string, amount uint64) (fund *model.FundModel, err error) {
	defer func() { l.observe("donate", err) }()

	address = chain.NormalizeIdentity(address)
	donor = chain.NormalizeIdentity(donor)
	if donor == "" {
		return nil, ErrUnauthorized
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: donation must be positive", ErrInvalidAmount)
	}
	if amount > MaxAmount {
		return nil, fmt.Errorf("%w: donation exceeds %d", ErrInvalidAmount, MaxAmount)
	}

	fund, err = l.store.Apply(ctx, address, func(ctx context.Context, f *model.FundModel, tx ledger.Tx) error {
		if !f.IsActive {
			return ErrFundInactive
		}
		if donor == f.Address {
			return fmt.Errorf("%w: fund cannot donate to itself", ErrInvalidArgument)
		}
		if f.TotalDonated > MaxAmount-amount {
			return fmt.Errorf("%w: donation overflows fund balance", ErrInvalidAmount)
		}

		if err := tx.Transfer(ctx, donor, f.Address, amount); err != nil {
			return err
		}
		f.CurrentBalance += amount
		f.TotalDonated += amount
		return tx.Record(ctx, l.newRecord(f, model.FundRecordDonate, donor, amount))
	})
	if err != nil {
		logger.Warn("Donation of %d to %s by %s rejected: %v", amount, address, donor, err)
		return nil, err
	}

	logger.Info("Fund %s received %d from %s (balance %d, total %d)",
		address, amount, donor, fund.CurrentBalance, fund.TotalDonated)
	return fund, nil
}

// Withdraw 创建者提取指定金额; 提取全部余额时关闭资金并退回保留金
func (l *FundLogic) Withdraw(ctx context.Context, address, requester string, amount uint64) (*model.FundModel, error) {
	return l.withdraw(ctx, "withdraw", address, requester, func(*model.FundModel) uint64 { return amount })
}

// WithdrawAll 提取全部余额, 等价于 Withdraw(current_balance)
func (l *FundLogic) WithdrawAll(ctx context.Context, address, requester string) (*model.FundModel, error) {
	return l.withdraw(ctx, "withdraw_all", address, requester, func(f *model.FundModel) uint64 { return f.CurrentBalance })
}

func (l *FundLogic) withdraw(ctx context.Context, op, address, requester string, amountOf func(*model.FundModel) uint64) (fund *model.FundModel, err error) {
	defer func() { l.observe(op, err) }()

	address = chain.NormalizeIdentity(address)
	requester = chain.NormalizeIdentity(requester)
	var (
		amount uint64
		payout uint64
		closed bool
	)

	fund, err = l.store.Apply(ctx, address, func(ctx context.Context, f *model.FundModel, tx ledger.Tx) error {
		if !f.IsActive {
			return ErrFundInactive
		}
		if requester == "" || requester != f.Creator {
			return ErrUnauthorized
		}
		if l.isLocked(f) {
			return fmt.Errorf("%w (due %s)", ErrLocked, f.DueDate.Format("2006-01-02"))
		}

		amount = amountOf(f)
		if amount == 0 || amount > f.CurrentBalance || amount > MaxAmount {
			return fmt.Errorf("%w: %d of balance %d", ErrInvalidAmount, amount, f.CurrentBalance)
		}

		remaining := f.CurrentBalance - amount
		kind := model.FundRecordWithdraw
		payout = amount
		if remaining == 0 {
			// 全额提取: 关闭资金, 保留金一并退回
			if f.ReserveAmount > MaxAmount-payout {
				return fmt.Errorf("%w: payout of %d plus reserve %d", ErrInvalidAmount, payout, f.ReserveAmount)
			}
			payout += f.ReserveAmount
			f.ReserveAmount = 0
			f.CurrentBalance = 0
			f.IsActive = false
			kind = model.FundRecordClose
			closed = true
		} else {
			if remaining < f.ReserveAmount {
				return fmt.Errorf("%w: remaining %d, reserve %d", ErrBelowReserve, remaining, f.ReserveAmount)
			}
			f.CurrentBalance = remaining
		}

		if err := tx.Transfer(ctx, f.Address, requester, payout); err != nil {
			return err
		}
		return tx.Record(ctx, l.newRecord(f, kind, requester, payout))
	})
	if err != nil {
		logger.Warn("Withdrawal from %s by %s rejected: %v", address, requester, err)
		return nil, err
	}

	if closed {
		logger.Info("Fund %s closed by %s, paid out %d", address, requester, payout)
	} else {
		logger.Info("Fund %s paid %d to %s (balance %d)", address, amount, requester, fund.CurrentBalance)
	}
	return fund, nil
}

// GetFund 获取资金详情
func (l *FundLogic) GetFund(ctx context.Context, address string) (*model.FundModel, error) {
	return l.store.Get(ctx, chain.NormalizeIdentity(address))
}

// GetFunds 获取资金列表
func (l *FundLogic) GetFunds(ctx context.Context, query ledger.ListQuery) ([]model.FundModel, int64, error) {
	if query.Creator != "" {
		query.Creator = chain.NormalizeIdentity(query.Creator)
	}
	return l.store.List(ctx, query)
}

// GetFundRecords 获取资金变动记录
func (l *FundLogic) GetFundRecords(ctx context.Context, address string, page, pageSize int) ([]model.FundRecordModel, int64, error) {
	address = chain.NormalizeIdentity(address)
	if _, err := l.store.Get(ctx, address); err != nil {
		return nil, 0, err
	}
	return l.store.Records(ctx, address, page, pageSize)
}

// GetFundStats 获取资金统计信息
func (l *FundLogic) GetFundStats(ctx context.Context, address string) (*FundStats, error) {
	address = chain.NormalizeIdentity(address)
	fund, err := l.store.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	records, err := l.store.RecordStats(ctx, address)
	if err != nil {
		return nil, err
	}

	// 计算完成百分比
	progress := decimal.Zero
	if fund.GoalAmount > 0 {
		progress = decimal.NewFromUint64(fund.TotalDonated).
			Div(decimal.NewFromUint64(fund.GoalAmount)).
			Mul(decimal.NewFromInt(100))
	}

	return &FundStats{
		Address:        fund.Address,
		GoalAmount:     fund.GoalAmount,
		TotalDonated:   fund.TotalDonated,
		CurrentBalance: fund.CurrentBalance,
		Withdrawn:      fund.Withdrawn(),
		Progress:       progress.StringFixed(2),
		GoalReached:    fund.GoalAmount > 0 && fund.TotalDonated >= fund.GoalAmount,
		Donations:      records.Donations,
		Donors:         records.Donors,
		Withdrawals:    records.Withdrawals,
		Unlocked:       !l.isLocked(fund),
		IsActive:       fund.IsActive,
	}, nil
}

// ParseDueDate 解析截止日期, 只保留日期部分
func ParseDueDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return clock.Date(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}

// isLocked 锁定的资金在截止日期（含）之前不可提取
func (l *FundLogic) isLocked(f *model.FundModel) bool {
	return f.IsLocked && clock.Today(l.clock).Before(clock.Date(f.DueDate))
}

func (l *FundLogic) newRecord(f *model.FundModel, kind model.FundRecordKind, actor string, amount uint64) *model.FundRecordModel {
	return &model.FundRecordModel{
		Id:           uuid.NewString(),
		CreatedAt:    l.clock.Now().UTC(),
		FundAddress:  f.Address,
		Kind:         kind,
		Actor:        actor,
		Amount:       amount,
		BalanceAfter: f.CurrentBalance,
	}
}

func (l *FundLogic) observe(op string, err error) {
	metrics.RecordOperation(op, ErrorKind(err))
}

func validateMetadata(name, description string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidArgument, MaxNameLength)
	}
	if !utf8.ValidString(name) || !utf8.ValidString(description) {
		return fmt.Errorf("%w: text must be valid UTF-8", ErrInvalidArgument)
	}
	if len(description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description longer than %d bytes", ErrInvalidArgument, MaxDescriptionLength)
	}
	return nil
}
