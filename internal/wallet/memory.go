package wallet

import (
	"context"
	"sync"
)

// Memory 内存余额服务
type Memory struct {
	mu       sync.Mutex
	balances map[string]uint64
}

// NewMemory 创建内存余额服务
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]uint64)}
}

func (m *Memory) Transfer(ctx context.Context, from, to string, amount uint64) error {
	b := m.Begin()
	if err := b.Transfer(ctx, from, to, amount); err != nil {
		return err
	}
	return b.Commit()
}

func (m *Memory) Credit(_ context.Context, address string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := checkedAdd(m.balances[address], amount)
	if err != nil {
		return err
	}
	m.balances[address] = next
	return nil
}

func (m *Memory) Balance(_ context.Context, address string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[address], nil
}

// Begin 开始一批转账, Commit 前不影响余额
func (m *Memory) Begin() *Batch {
	return &Batch{bank: m}
}

type transfer struct {
	from, to string
	amount   uint64
}

// Batch 暂存的一组转账, 全部成功或全部不生效
type Batch struct {
	bank      *Memory
	transfers []transfer
}

// Transfer 暂存一笔转账, 按已提交余额加暂存变动校验余额
func (b *Batch) Transfer(_ context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}

	b.bank.mu.Lock()
	defer b.bank.mu.Unlock()

	next := append(b.transfers, transfer{from: from, to: to, amount: amount})
	if _, err := b.bank.simulate(next); err != nil {
		return err
	}
	b.transfers = next
	return nil
}

// Commit 重新校验并原子地应用全部转账
func (b *Batch) Commit() error {
	if len(b.transfers) == 0 {
		return nil
	}

	b.bank.mu.Lock()
	defer b.bank.mu.Unlock()

	result, err := b.bank.simulate(b.transfers)
	if err != nil {
		return err
	}
	for address, balance := range result {
		b.bank.balances[address] = balance
	}
	b.transfers = nil
	return nil
}

// simulate 在副本上依次执行转账, 返回受影响账户的新余额; 调用方持有锁
func (m *Memory) simulate(transfers []transfer) (map[string]uint64, error) {
	touched := make(map[string]uint64)
	balance := func(address string) uint64 {
		if v, ok := touched[address]; ok {
			return v
		}
		return m.balances[address]
	}

	for _, t := range transfers {
		from := balance(t.from)
		if from < t.amount {
			return nil, ErrInsufficientFunds
		}
		touched[t.from] = from - t.amount
		to, err := checkedAdd(balance(t.to), t.amount)
		if err != nil {
			return nil, err
		}
		touched[t.to] = to
	}
	return touched, nil
}
