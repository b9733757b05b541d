package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/blues/fundvault/internal/model"
	"github.com/blues/fundvault/internal/wallet"
)

// MemoryStore 内存账本, 每个地址一把锁
type MemoryStore struct {
	bank  *wallet.Memory
	locks sync.Map // address -> *sync.Mutex

	mu      sync.RWMutex
	funds   map[string]model.FundModel
	records []model.FundRecordModel
}

// NewMemoryStore 创建内存账本, 转账落在 bank 上
func NewMemoryStore(bank *wallet.Memory) *MemoryStore {
	return &MemoryStore{
		bank:  bank,
		funds: make(map[string]model.FundModel),
	}
}

// memoryTx 暂存转账和记录, 提交时一起生效
type memoryTx struct {
	batch   *wallet.Batch
	records []model.FundRecordModel
}

func (t *memoryTx) Transfer(ctx context.Context, from, to string, amount uint64) error {
	return t.batch.Transfer(ctx, from, to, amount)
}

func (t *memoryTx) Record(_ context.Context, record *model.FundRecordModel) error {
	t.records = append(t.records, *record)
	return nil
}

func (s *MemoryStore) lock(address string) func() {
	v, _ := s.locks.LoadOrStore(address, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func (s *MemoryStore) Create(ctx context.Context, fund *model.FundModel, fn MutateFunc) error {
	if err := checkNew(fund); err != nil {
		return err
	}

	unlock := s.lock(fund.Address)
	defer unlock()

	s.mu.RLock()
	_, exists := s.funds[fund.Address]
	s.mu.RUnlock()
	if exists {
		return ErrAlreadyExists
	}

	next := *fund
	tx := &memoryTx{batch: s.bank.Begin()}
	if fn != nil {
		if err := fn(ctx, &next, tx); err != nil {
			return err
		}
		if err := checkTransition(fund, &next); err != nil {
			return err
		}
	}

	if err := s.commit(&next, tx); err != nil {
		return err
	}
	*fund = next
	return nil
}

func (s *MemoryStore) Get(_ context.Context, address string) (*model.FundModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fund, ok := s.funds[address]
	if !ok {
		return nil, ErrNotFound
	}
	return &fund, nil
}

func (s *MemoryStore) Apply(ctx context.Context, address string, fn MutateFunc) (*model.FundModel, error) {
	unlock := s.lock(address)
	defer unlock()

	s.mu.RLock()
	current, ok := s.funds[address]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	next := current
	tx := &memoryTx{batch: s.bank.Begin()}
	if err := fn(ctx, &next, tx); err != nil {
		return nil, err
	}
	if err := checkTransition(&current, &next); err != nil {
		return nil, err
	}

	if err := s.commit(&next, tx); err != nil {
		return nil, err
	}
	return &next, nil
}

// commit 先提交转账, 成功后再发布记录; 转账失败时记录保持不变
func (s *MemoryStore) commit(fund *model.FundModel, tx *memoryTx) error {
	if err := tx.batch.Commit(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.funds[fund.Address] = *fund
	s.records = append(s.records, tx.records...)
	return nil
}

func (s *MemoryStore) List(_ context.Context, query ListQuery) ([]model.FundModel, int64, error) {
	page, pageSize := NormalizePage(query.Page, query.PageSize)

	s.mu.RLock()
	matched := make([]model.FundModel, 0, len(s.funds))
	for _, fund := range s.funds {
		if query.Creator != "" && fund.Creator != query.Creator {
			continue
		}
		if query.Active != nil && fund.IsActive != *query.Active {
			continue
		}
		matched = append(matched, fund)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].DateCreated.Equal(matched[j].DateCreated) {
			return matched[i].DateCreated.After(matched[j].DateCreated)
		}
		return matched[i].Address < matched[j].Address
	})

	return paginate(matched, page, pageSize), int64(len(matched)), nil
}

func (s *MemoryStore) Records(_ context.Context, address string, page, pageSize int) ([]model.FundRecordModel, int64, error) {
	page, pageSize = NormalizePage(page, pageSize)

	s.mu.RLock()
	var matched []model.FundRecordModel
	// 倒序遍历得到最新在前
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].FundAddress == address {
			matched = append(matched, s.records[i])
		}
	}
	s.mu.RUnlock()

	return paginate(matched, page, pageSize), int64(len(matched)), nil
}

func (s *MemoryStore) RecordStats(_ context.Context, address string) (RecordStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats RecordStats
	donors := make(map[string]struct{})
	for _, r := range s.records {
		if r.FundAddress != address {
			continue
		}
		switch r.Kind {
		case model.FundRecordDonate:
			stats.Donations++
			donors[r.Actor] = struct{}{}
		case model.FundRecordWithdraw, model.FundRecordClose:
			stats.Withdrawals++
		}
	}
	stats.Donors = int64(len(donors))
	return stats, nil
}

func paginate[T any](items []T, page, pageSize int) []T {
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
