package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/blues/fundvault/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAmountOverflow    = errors.New("amount exceeds the maximum account balance")
)

// MaxAmount 单笔金额和账户余额上限, 与数据库 bigint 列取值范围一致
const MaxAmount uint64 = math.MaxInt64

// checkedAdd 余额加法, 超过 MaxAmount 时返回 ErrAmountOverflow
func checkedAdd(balance, amount uint64) (uint64, error) {
	if amount > MaxAmount || balance > MaxAmount-amount {
		return 0, ErrAmountOverflow
	}
	return balance + amount, nil
}

// Transferer 两个地址之间的转账原语
type Transferer interface {
	Transfer(ctx context.Context, from, to string, amount uint64) error
}

// Bank 账户余额服务
type Bank interface {
	Transferer
	Balance(ctx context.Context, address string) (uint64, error)
	Credit(ctx context.Context, address string, amount uint64) error
}

// Wallet 基于数据库 account 表的余额服务
type Wallet struct {
	db *gorm.DB
}

// New 创建余额服务
func New(db *gorm.DB) *Wallet {
	return &Wallet{db: db}
}

// Transfer 从 from 扣款并入账到 to
func (w *Wallet) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if amount > MaxAmount {
		return ErrAmountOverflow
	}

	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debit(tx, from, amount); err != nil {
			return err
		}
		return credit(tx, to, amount)
	})
}

// Credit 外部入账（充值）
func (w *Wallet) Credit(ctx context.Context, address string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if amount > MaxAmount {
		return ErrAmountOverflow
	}
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return credit(tx, address, amount)
	})
}

// Balance 查询余额, 不存在的账户余额为0
func (w *Wallet) Balance(ctx context.Context, address string) (uint64, error) {
	var account model.AccountModel
	err := w.db.WithContext(ctx).Where("address = ?", address).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query balance of %s: %w", address, err)
	}
	return account.Balance, nil
}

// debit 条件扣款, 余额不足时不修改任何行
func debit(tx *gorm.DB, address string, amount uint64) error {
	res := tx.Model(&model.AccountModel{}).
		Where("address = ? AND balance >= ?", address, amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return fmt.Errorf("debit %s: %w", address, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// credit 入账; 入账后余额超过 MaxAmount 时不修改任何行
func credit(tx *gorm.DB, address string, amount uint64) error {
	var current model.AccountModel
	err := tx.Where("address = ?", address).Take(&current).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("read balance of %s: %w", address, err)
	}
	if _, err := checkedAdd(current.Balance, amount); err != nil {
		return err
	}

	err = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("account.balance + excluded.balance"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&model.AccountModel{Address: address, Balance: amount}).Error
	if err != nil {
		return fmt.Errorf("credit %s: %w", address, err)
	}
	return nil
}
