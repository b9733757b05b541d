package logic

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blues/fundvault/internal/chain"
	"github.com/blues/fundvault/internal/clock"
	"github.com/blues/fundvault/internal/database/databasetest"
	"github.com/blues/fundvault/internal/ledger"
	"github.com/blues/fundvault/internal/logger"
	"github.com/blues/fundvault/internal/model"
	"github.com/blues/fundvault/internal/reserve"
	"github.com/blues/fundvault/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testReserve = 50

func TestMain(m *testing.M) {
	logger.SetDefaultLogger(logger.NewNop())
	os.Exit(m.Run())
}

type engine struct {
	logic *FundLogic
	bank  wallet.Bank
	clock *clock.Fake
}

func engines(t *testing.T) map[string]engine {
	db := databasetest.Open(t)
	mem := wallet.NewMemory()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	build := func(store ledger.Store, bank wallet.Bank) engine {
		clk := clock.NewFake(now)
		return engine{
			logic: NewFundLogic(store, reserve.Fixed(testReserve), clk, 9000),
			bank:  bank,
			clock: clk,
		}
	}
	return map[string]engine{
		"gorm":   build(ledger.NewGormStore(db), wallet.New(db)),
		"memory": build(ledger.NewMemoryStore(mem), mem),
	}
}

func (e engine) fund(t *testing.T, creator string, req CreateFundRequest) *model.FundModel {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.bank.Credit(ctx, creator, testReserve))
	fund, err := e.logic.Create(ctx, creator, req)
	require.NoError(t, err)
	return fund
}

func (e engine) credit(t *testing.T, address string, amount uint64) {
	t.Helper()
	require.NoError(t, e.bank.Credit(context.Background(), address, amount))
}

func (e engine) balance(t *testing.T, address string) uint64 {
	t.Helper()
	b, err := e.bank.Balance(context.Background(), address)
	require.NoError(t, err)
	return b
}

func TestParseDueDate(t *testing.T) {
	want := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	got, err := ParseDueDate("2026-12-31")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseDueDate(" 31.12.2026 ")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	for _, bad := range []string{"", "2026-13-01", "31/12/2026", "tomorrow"} {
		_, err := ParseDueDate(bad)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestCreate(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fund := e.fund(t, "alice", CreateFundRequest{
				Name:        "roof",
				Description: "fix the school roof",
				DueDate:     "01.06.2026",
				GoalAmount:  1000,
				IsLocked:    true,
			})

			assert.Equal(t, chain.DeriveFundAddress("alice", "roof"), fund.Address)
			assert.Equal(t, "alice", fund.Creator)
			assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), fund.DueDate)
			assert.Equal(t, uint64(testReserve), fund.ReserveAmount)
			assert.Zero(t, fund.CurrentBalance)
			assert.Zero(t, fund.TotalDonated)
			assert.True(t, fund.IsActive)

			// 保留金从创建者转入资金账户
			assert.Zero(t, e.balance(t, "alice"))
			assert.Equal(t, uint64(testReserve), e.balance(t, fund.Address))

			records, total, err := e.logic.GetFundRecords(ctx, fund.Address, 1, 10)
			require.NoError(t, err)
			assert.Equal(t, int64(1), total)
			assert.Equal(t, model.FundRecordCreate, records[0].Kind)

			_, err = e.logic.Create(ctx, "alice", CreateFundRequest{Name: "roof", DueDate: "2026-06-01"})
			assert.ErrorIs(t, err, ErrAlreadyExists)
		})
	}
}

func TestCreateValidation(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e.credit(t, "alice", 10*testReserve)

			_, err := e.logic.Create(ctx, "alice", CreateFundRequest{Name: "", DueDate: "2026-06-01"})
			assert.ErrorIs(t, err, ErrInvalidArgument)

			_, err = e.logic.Create(ctx, "alice", CreateFundRequest{Name: strings.Repeat("x", MaxNameLength+1), DueDate: "2026-06-01"})
			assert.ErrorIs(t, err, ErrInvalidArgument)

			_, err = e.logic.Create(ctx, "alice", CreateFundRequest{Name: "roof", Description: strings.Repeat("d", MaxDescriptionLength+1), DueDate: "2026-06-01"})
			assert.ErrorIs(t, err, ErrInvalidArgument)

			_, err = e.logic.Create(ctx, "alice", CreateFundRequest{Name: "roof", DueDate: "June 1st"})
			assert.ErrorIs(t, err, ErrInvalidDate)

			_, err = e.logic.Create(ctx, " ", CreateFundRequest{Name: "roof", DueDate: "2026-06-01"})
			assert.ErrorIs(t, err, ErrUnauthorized)

			_, err = e.logic.Create(ctx, "alice", CreateFundRequest{Name: "roof", DueDate: "2026-06-01", GoalAmount: MaxAmount + 1})
			assert.ErrorIs(t, err, ErrInvalidAmount)
			assert.Equal(t, uint64(10*testReserve), e.balance(t, "alice"))

			_, err = e.logic.Create(ctx, "pauper", CreateFundRequest{Name: "roof", DueDate: "2026-06-01"})
			assert.ErrorIs(t, err, ErrInsufficientFunds)
			_, err = e.logic.GetFund(ctx, chain.DeriveFundAddress("pauper", "roof"))
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = e.logic.Create(ctx, "alice", CreateFundRequest{Name: strings.Repeat("x", MaxNameLength), DueDate: "2026-06-01"})
			assert.NoError(t, err)
		})
	}
}

func TestDonate(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fund := e.fund(t, "alice", CreateFundRequest{Name: "roof", DueDate: "2026-06-01", GoalAmount: 1000})
			e.credit(t, "bob", 1000)
			e.credit(t, "carol", 1000)

			var sum uint64
			for _, d := range []struct {
				donor  string
				amount uint64
			}{{"bob", 100}, {"carol", 250}, {"bob", 1}} {
				got, err := e.logic.Donate(ctx, fund.Address, d.donor, d.amount)
				require.NoError(t, err)
				sum += d.amount
				assert.Equal(t, sum, got.TotalDonated)
				assert.Equal(t, sum, got.CurrentBalance)
			}
			assert.Equal(t, uint64(899), e.balance(t, "bob"))
			assert.Equal(t, uint64(750), e.balance(t, "carol"))
			assert.Equal(t, sum+testReserve, e.balance(t, fund.Address))

			_, err := e.logic.Donate(ctx, fund.Address, "bob", 0)
			assert.ErrorIs(t, err, ErrInvalidAmount)

			_, err = e.logic.Donate(ctx, fund.Address, "bob", 10_000)
			assert.ErrorIs(t, err, ErrInsufficientFunds)
			assert.Equal(t, uint64(899), e.balance(t, "bob"))
			assert.Equal(t, sum+testReserve, e.balance(t, fund.Address))
			got, err := e.logic.GetFund(ctx, fund.Address)
			require.NoError(t, err)
			assert.Equal(t, sum, got.CurrentBalance)
			assert.Equal(t, sum, got.TotalDonated)

			_, err = e.logic.Donate(ctx, chain.DeriveFundAddress("alice", "missing"), "bob", 1)
			assert.ErrorIs(t, err, ErrNotFound)

			got, err = e.logic.GetFund(ctx, strings.ToLower(fund.Address))
			require.NoError(t, err)
			assert.Equal(t, sum, got.CurrentBalance)
		})
	}
}

func TestAmountBounds(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e.credit(t, "alice", MaxAmount-testReserve)
			fund := e.fund(t, "alice", CreateFundRequest{Name: "vault", DueDate: "2026-01-01"})
			e.credit(t, "bob", 1000)

			_, err := e.logic.Donate(ctx, fund.Address, "bob", MaxAmount+1)
			assert.ErrorIs(t, err, ErrInvalidAmount)
			_, err = e.logic.Donate(ctx, fund.Address, "bob", ^uint64(0))
			assert.ErrorIs(t, err, ErrInvalidAmount)

			_, err = e.logic.Donate(ctx, fund.Address, "bob", 100)
			require.NoError(t, err)
			assert.Equal(t, MaxAmount-testReserve, e.balance(t, "alice"))

			// 提取后创建者余额超出上限, 整个提取回滚
			_, err = e.logic.WithdrawAll(ctx, fund.Address, "alice")
			assert.ErrorIs(t, err, ErrAmountOverflow)
			assert.Equal(t, "amount_overflow", ErrorKind(err))
			assert.Equal(t, MaxAmount-testReserve, e.balance(t, "alice"))
			assert.Equal(t, uint64(100+testReserve), e.balance(t, fund.Address))

			got, err := e.logic.GetFund(ctx, fund.Address)
			require.NoError(t, err)
			assert.True(t, got.IsActive)
			assert.Equal(t, uint64(100), got.CurrentBalance)
			assert.Equal(t, uint64(testReserve), got.ReserveAmount)
			records, total, err := e.logic.GetFundRecords(ctx, fund.Address, 1, 10)
			require.NoError(t, err)
			assert.Equal(t, int64(2), total)
			assert.Len(t, records, 2)

			got, err = e.logic.Withdraw(ctx, fund.Address, "alice", 50)
			require.NoError(t, err)
			assert.Equal(t, uint64(50), got.CurrentBalance)
			assert.Equal(t, MaxAmount, e.balance(t, "alice"))
		})
	}
}

func TestWithdrawUnauthorized(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fund := e.fund(t, "alice", CreateFundRequest{Name: "roof", DueDate: "2026-01-01"})
			e.credit(t, "bob", 500)
			_, err := e.logic.Donate(ctx, fund.Address, "bob", 500)
			require.NoError(t, err)

			for _, requester := range []string{"bob", "", "ALICE"} {
				_, err = e.logic.Withdraw(ctx, fund.Address, requester, 100)
				assert.ErrorIs(t, err, ErrUnauthorized, requester)
				_, err = e.logic.WithdrawAll(ctx, fund.Address, requester)
				assert.ErrorIs(t, err, ErrUnauthorized, requester)
			}

			got, err := e.logic.GetFund(ctx, fund.Address)
			require.NoError(t, err)
			assert.Equal(t, uint64(500), got.CurrentBalance)
			assert.True(t, got.IsActive)
		})
	}
}

func TestWithdrawAmounts(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fund := e.fund(t, "alice", CreateFundRequest{Name: "roof", DueDate: "2026-01-01"})
			e.credit(t, "bob", 500)
			_, err := e.logic.Donate(ctx, fund.Address, "bob", 500)
			require.NoError(t, err)

			_, err = e.logic.Withdraw(ctx, fund.Address, "alice", 501)
			assert.ErrorIs(t, err, ErrInvalidAmount)
			_, err = e.logic.Withdraw(ctx, fund.Address, "alice", 0)
			assert.ErrorIs(t, err, ErrInvalidAmount)

			// 剩余 20 < 保留金 50
			_, err = e.logic.Withdraw(ctx, fund.Address, "alice", 480)
			assert.ErrorIs(t, err, ErrBelowReserve)

			got, err := e.logic.GetFund(ctx, fund.Address)
			require.NoError(t, err)
			assert.Equal(t, uint64(500), got.CurrentBalance)

			// 剩余恰好等于保留金
			got, err = e.logic.Withdraw(ctx, fund.Address, "alice", 450)
			require.NoError(t, err)
			assert.Equal(t, uint64(50), got.CurrentBalance)
			assert.Equal(t, uint64(500), got.TotalDonated)
			assert.True(t, got.IsActive)
			assert.Equal(t, uint64(450), e.balance(t, "alice"))

			stats, err := e.logic.GetFundStats(ctx, fund.Address)
			require.NoError(t, err)
			assert.Equal(t, uint64(450), stats.Withdrawn)
			assert.Equal(t, int64(1), stats.Withdrawals)
			assert.Equal(t, int64(1), stats.Donations)
			assert.Equal(t, int64(1), stats.Donors)
		})
	}
}

func TestWithdrawAllClosesFund(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fund := e.fund(t, "alice", CreateFundRequest{Name: "roof", DueDate: "2026-01-01"})
			e.credit(t, "bob", 300)
			e.clock.Advance(time.Minute)
			_, err := e.logic.Donate(ctx, fund.Address, "bob", 300)
			require.NoError(t, err)

			e.clock.Advance(time.Minute)
			got, err := e.logic.WithdrawAll(ctx, fund.Address, "alice")
			require.NoError(t, err)
			assert.False(t, got.IsActive)
			assert.Zero(t, got.CurrentBalance)
			assert.Zero(t, got.ReserveAmount)
			assert.Equal(t, uint64(300), got.TotalDonated)

			// 余额和保留金全部退回创建者
			assert.Equal(t, uint64(300+testReserve), e.balance(t, "alice"))
			assert.Zero(t, e.balance(t, fund.Address))

			_, err = e.logic.WithdrawAll(ctx, fund.Address, "alice")
			assert.ErrorIs(t, err, ErrFundInactive)
			_, err = e.logic.Donate(ctx, fund.Address, "bob", 1)
			assert.ErrorIs(t, err, ErrFundInactive)

			records, _, err := e.logic.GetFundRecords(ctx, fund.Address, 1, 10)
			require.NoError(t, err)
			require.Len(t, records, 3)
			assert.Equal(t, model.FundRecordClose, records[0].Kind)
			assert.Equal(t, uint64(300+testReserve), records[0].Amount)
		})
	}
}

func TestWithdrawAllEmptyFund(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			fund := e.fund(t, "alice", CreateFundRequest{Name: "roof", DueDate: "2026-01-01"})

			_, err := e.logic.WithdrawAll(context.Background(), fund.Address, "alice")
			assert.ErrorIs(t, err, ErrInvalidAmount)
		})
	}
}

func TestLockedUntilDueDate(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fund := e.fund(t, "alice", CreateFundRequest{Name: "roof", DueDate: "2026-03-12", IsLocked: true})
			e.credit(t, "bob", 400)
			_, err := e.logic.Donate(ctx, fund.Address, "bob", 400)
			require.NoError(t, err)

			_, err = e.logic.Withdraw(ctx, fund.Address, "alice", 100)
			assert.ErrorIs(t, err, ErrLocked)

			// 截止日期前一天的最后时刻仍锁定
			e.clock.Set(time.Date(2026, 3, 11, 23, 59, 59, 0, time.UTC))
			_, err = e.logic.WithdrawAll(ctx, fund.Address, "alice")
			assert.ErrorIs(t, err, ErrLocked)

			stats, err := e.logic.GetFundStats(ctx, fund.Address)
			require.NoError(t, err)
			assert.False(t, stats.Unlocked)
			assert.Equal(t, uint64(400), stats.CurrentBalance)

			// 到达截止日期当天即可提取
			e.clock.Set(time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC))
			got, err := e.logic.Withdraw(ctx, fund.Address, "alice", 100)
			require.NoError(t, err)
			assert.Equal(t, uint64(300), got.CurrentBalance)
		})
	}
}

func TestScenarioDueDatePassed(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			yesterday := clock.Today(e.clock).AddDate(0, 0, -1).Format("2006-01-02")
			fund := e.fund(t, "alice", CreateFundRequest{Name: "roof", DueDate: yesterday, GoalAmount: 1000, IsLocked: true})
			e.credit(t, "bob", 1000)

			got, err := e.logic.Donate(ctx, fund.Address, "bob", 500)
			require.NoError(t, err)
			assert.Equal(t, uint64(500), got.CurrentBalance)
			assert.Equal(t, uint64(500), got.TotalDonated)

			got, err = e.logic.Withdraw(ctx, fund.Address, "alice", 500)
			require.NoError(t, err)
			assert.Zero(t, got.CurrentBalance)
			assert.False(t, got.IsActive)

			_, err = e.logic.Donate(ctx, fund.Address, "bob", 1)
			assert.ErrorIs(t, err, ErrFundInactive)
		})
	}
}

func TestScenarioFarFutureLock(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fund := e.fund(t, "alice", CreateFundRequest{Name: "roof", DueDate: "2099-12-31", IsLocked: true})
			e.credit(t, "bob", 200)

			_, err := e.logic.Donate(ctx, fund.Address, "bob", 200)
			require.NoError(t, err)

			_, err = e.logic.Withdraw(ctx, fund.Address, "alice", 100)
			assert.ErrorIs(t, err, ErrLocked)

			got, err := e.logic.GetFund(ctx, fund.Address)
			require.NoError(t, err)
			assert.Equal(t, uint64(200), got.CurrentBalance)
		})
	}
}

func TestConcurrentDonations(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fund := e.fund(t, "alice", CreateFundRequest{Name: "roof", DueDate: "2026-01-01"})
			e.credit(t, "bob", 1000)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := e.logic.Donate(ctx, fund.Address, "bob", 10)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			got, err := e.logic.GetFund(ctx, fund.Address)
			require.NoError(t, err)
			assert.Equal(t, uint64(200), got.TotalDonated)
			assert.Equal(t, uint64(200), got.CurrentBalance)
			assert.Equal(t, uint64(800), e.balance(t, "bob"))
		})
	}
}

func TestGetFundsAndStats(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			roof := e.fund(t, "alice", CreateFundRequest{Name: "roof", DueDate: "2026-01-01", GoalAmount: 400})
			e.clock.Advance(time.Hour)
			e.fund(t, "alice", CreateFundRequest{Name: "library", DueDate: "2026-01-01"})
			e.clock.Advance(time.Hour)
			e.fund(t, "dave", CreateFundRequest{Name: "park", DueDate: "2026-01-01"})

			funds, total, err := e.logic.GetFunds(ctx, ledger.ListQuery{Creator: "alice"})
			require.NoError(t, err)
			assert.Equal(t, int64(2), total)
			require.Len(t, funds, 2)
			assert.Equal(t, "library", funds[0].Name)

			e.credit(t, "bob", 100)
			e.credit(t, "carol", 100)
			_, err = e.logic.Donate(ctx, roof.Address, "bob", 50)
			require.NoError(t, err)
			_, err = e.logic.Donate(ctx, roof.Address, "carol", 50)
			require.NoError(t, err)
			_, err = e.logic.Donate(ctx, roof.Address, "bob", 30)
			require.NoError(t, err)

			stats, err := e.logic.GetFundStats(ctx, roof.Address)
			require.NoError(t, err)
			assert.Equal(t, "32.50", stats.Progress)
			assert.False(t, stats.GoalReached)
			assert.Equal(t, int64(3), stats.Donations)
			assert.Equal(t, int64(2), stats.Donors)
			assert.True(t, stats.Unlocked)

			_, err = e.logic.GetFundStats(ctx, chain.DeriveFundAddress("alice", "nope"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "ok", ErrorKind(nil))
	assert.Equal(t, "locked", ErrorKind(ErrLocked))
	assert.Equal(t, "below_reserve", ErrorKind(ErrBelowReserve))
	assert.Equal(t, "insufficient_funds", ErrorKind(ErrInsufficientFunds))
	assert.Equal(t, "amount_overflow", ErrorKind(ErrAmountOverflow))
	assert.Equal(t, "internal", ErrorKind(assert.AnError))
}
