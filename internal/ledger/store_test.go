package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blues/fundvault/internal/database/databasetest"
	"github.com/blues/fundvault/internal/model"
	"github.com/blues/fundvault/internal/wallet"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFixture struct {
	store Store
	bank  wallet.Bank
}

func fixtures(t *testing.T) map[string]storeFixture {
	db := databasetest.Open(t)
	mem := wallet.NewMemory()
	return map[string]storeFixture{
		"gorm":   {store: NewGormStore(db), bank: wallet.New(db)},
		"memory": {store: NewMemoryStore(mem), bank: mem},
	}
}

func newFund(address string) *model.FundModel {
	return &model.FundModel{
		Address:     address,
		Creator:     "alice",
		Name:        "roof",
		Description: "fix the school roof",
		DueDate:     time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		DateCreated: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		GoalAmount:  1000,
		IsActive:    true,
	}
}

func donate(amount uint64, donor string) MutateFunc {
	return func(ctx context.Context, fund *model.FundModel, tx Tx) error {
		if err := tx.Transfer(ctx, donor, fund.Address, amount); err != nil {
			return err
		}
		fund.CurrentBalance += amount
		fund.TotalDonated += amount
		return tx.Record(ctx, &model.FundRecordModel{
			Id:           uuid.NewString(),
			CreatedAt:    time.Now(),
			FundAddress:  fund.Address,
			Kind:         model.FundRecordDonate,
			Actor:        donor,
			Amount:       amount,
			BalanceAfter: fund.CurrentBalance,
		})
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, fx.store.Create(ctx, newFund("0xA"), nil))

			got, err := fx.store.Get(ctx, "0xA")
			require.NoError(t, err)
			assert.Equal(t, "alice", got.Creator)
			assert.Equal(t, uint64(1000), got.GoalAmount)
			assert.True(t, got.IsActive)

			_, err = fx.store.Get(ctx, "0xB")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreCreateDuplicate(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, fx.store.Create(ctx, newFund("0xA"), nil))

			dup := newFund("0xA")
			dup.Name = "other"
			assert.ErrorIs(t, fx.store.Create(ctx, dup, nil), ErrAlreadyExists)

			got, err := fx.store.Get(ctx, "0xA")
			require.NoError(t, err)
			assert.Equal(t, "roof", got.Name, "existing record must not be overwritten")
		})
	}
}

func TestStoreCreateRollsBackOnSetupFailure(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := fx.store.Create(ctx, newFund("0xA"), func(ctx context.Context, fund *model.FundModel, tx Tx) error {
				return tx.Transfer(ctx, "alice", fund.Address, 10)
			})
			assert.ErrorIs(t, err, wallet.ErrInsufficientFunds)

			_, err = fx.store.Get(ctx, "0xA")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreApply(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, fx.store.Create(ctx, newFund("0xA"), nil))
			require.NoError(t, fx.bank.Credit(ctx, "bob", 300))

			updated, err := fx.store.Apply(ctx, "0xA", donate(120, "bob"))
			require.NoError(t, err)
			assert.Equal(t, uint64(120), updated.CurrentBalance)
			assert.Equal(t, uint64(120), updated.TotalDonated)

			got, err := fx.store.Get(ctx, "0xA")
			require.NoError(t, err)
			assert.Equal(t, uint64(120), got.CurrentBalance)

			held, err := fx.bank.Balance(ctx, "0xA")
			require.NoError(t, err)
			assert.Equal(t, uint64(120), held)

			records, total, err := fx.store.Records(ctx, "0xA", 1, 10)
			require.NoError(t, err)
			assert.Equal(t, int64(1), total)
			require.Len(t, records, 1)
			assert.Equal(t, model.FundRecordDonate, records[0].Kind)

			_, err = fx.store.Apply(ctx, "0xB", donate(1, "bob"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreApplyIsAllOrNothing(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, fx.store.Create(ctx, newFund("0xA"), nil))
			require.NoError(t, fx.bank.Credit(ctx, "bob", 100))

			// 转账成功但随后出错: 转账和记录都必须回滚
			boom := errors.New("boom")
			_, err := fx.store.Apply(ctx, "0xA", func(ctx context.Context, fund *model.FundModel, tx Tx) error {
				if err := donate(50, "bob")(ctx, fund, tx); err != nil {
					return err
				}
				return boom
			})
			require.ErrorIs(t, err, boom)

			// 转账失败: 记录不变
			_, err = fx.store.Apply(ctx, "0xA", donate(500, "bob"))
			require.ErrorIs(t, err, wallet.ErrInsufficientFunds)

			got, err := fx.store.Get(ctx, "0xA")
			require.NoError(t, err)
			assert.Zero(t, got.CurrentBalance)
			assert.Zero(t, got.TotalDonated)

			bob, _ := fx.bank.Balance(ctx, "bob")
			held, _ := fx.bank.Balance(ctx, "0xA")
			assert.Equal(t, uint64(100), bob)
			assert.Zero(t, held)

			_, total, err := fx.store.Records(ctx, "0xA", 1, 10)
			require.NoError(t, err)
			assert.Zero(t, total)
		})
	}
}

func TestStoreApplyRejectsInvariantViolations(t *testing.T) {
	violations := map[string]MutateFunc{
		"immutable name": func(_ context.Context, f *model.FundModel, _ Tx) error {
			f.Name = "renamed"
			return nil
		},
		"balance above total": func(_ context.Context, f *model.FundModel, _ Tx) error {
			f.CurrentBalance = 10
			return nil
		},
		"closed with holding": func(_ context.Context, f *model.FundModel, _ Tx) error {
			f.IsActive = false
			f.ReserveAmount = 5
			return nil
		},
	}

	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, fx.store.Create(ctx, newFund("0xA"), nil))

			for violation, fn := range violations {
				_, err := fx.store.Apply(ctx, "0xA", fn)
				assert.ErrorIs(t, err, ErrInvariantViolated, violation)
			}

			got, err := fx.store.Get(ctx, "0xA")
			require.NoError(t, err)
			assert.Equal(t, "roof", got.Name)
			assert.True(t, got.IsActive)
		})
	}
}

func TestStoreInactiveIsTerminal(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, fx.store.Create(ctx, newFund("0xA"), nil))

			_, err := fx.store.Apply(ctx, "0xA", func(_ context.Context, f *model.FundModel, _ Tx) error {
				f.IsActive = false
				return nil
			})
			require.NoError(t, err)

			_, err = fx.store.Apply(ctx, "0xA", func(_ context.Context, f *model.FundModel, _ Tx) error {
				f.IsActive = true
				return nil
			})
			assert.ErrorIs(t, err, ErrInvariantViolated)
		})
	}
}

func TestStoreConcurrentApplySerializes(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, fx.store.Create(ctx, newFund("0xA"), nil))
			require.NoError(t, fx.store.Create(ctx, newFund("0xB"), nil))
			require.NoError(t, fx.bank.Credit(ctx, "bob", 1000))

			const workers = 20
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					address := "0xA"
					if i%2 == 1 {
						address = "0xB"
					}
					_, err := fx.store.Apply(ctx, address, func(ctx context.Context, f *model.FundModel, tx Tx) error {
						if err := tx.Transfer(ctx, "bob", f.Address, 10); err != nil {
							return err
						}
						f.CurrentBalance += 10
						f.TotalDonated += 10
						return nil
					})
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			a, err := fx.store.Get(ctx, "0xA")
			require.NoError(t, err)
			b, err := fx.store.Get(ctx, "0xB")
			require.NoError(t, err)
			assert.Equal(t, uint64(100), a.CurrentBalance)
			assert.Equal(t, uint64(100), b.TotalDonated)

			bob, _ := fx.bank.Balance(ctx, "bob")
			assert.Equal(t, uint64(800), bob)
		})
	}
}

func TestStoreListAndStats(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, address := range []string{"0xA", "0xB", "0xC"} {
				fund := newFund(address)
				fund.DateCreated = fund.DateCreated.Add(time.Duration(i) * time.Hour)
				if address == "0xC" {
					fund.Creator = "carol"
				}
				require.NoError(t, fx.store.Create(ctx, fund, nil))
			}

			funds, total, err := fx.store.List(ctx, ListQuery{Creator: "alice", Page: 1, PageSize: 1})
			require.NoError(t, err)
			assert.Equal(t, int64(2), total)
			require.Len(t, funds, 1)
			assert.Equal(t, "0xB", funds[0].Address, "newest first")

			active := true
			_, total, err = fx.store.List(ctx, ListQuery{Active: &active})
			require.NoError(t, err)
			assert.Equal(t, int64(3), total)

			require.NoError(t, fx.bank.Credit(ctx, "bob", 100))
			require.NoError(t, fx.bank.Credit(ctx, "dave", 100))
			for _, donor := range []string{"bob", "bob", "dave"} {
				_, err := fx.store.Apply(ctx, "0xA", donate(10, donor))
				require.NoError(t, err)
			}

			stats, err := fx.store.RecordStats(ctx, "0xA")
			require.NoError(t, err)
			assert.Equal(t, RecordStats{Donations: 3, Donors: 2, Withdrawals: 0}, stats)
		})
	}
}

func TestNormalizePage(t *testing.T) {
	for _, tc := range []struct {
		page, pageSize int
		wantPage, want int
	}{
		{1, 10, 1, 10},
		{0, 0, 1, 10},
		{-3, -1, 1, 10},
		{4, 1000, 4, 100},
		{2, 100, 2, 100},
	} {
		page, pageSize := NormalizePage(tc.page, tc.pageSize)
		assert.Equal(t, tc.wantPage, page)
		assert.Equal(t, tc.want, pageSize)
	}
}
