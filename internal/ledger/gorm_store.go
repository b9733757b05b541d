package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/blues/fundvault/internal/model"
	"github.com/blues/fundvault/internal/wallet"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 基于数据库的资金账本, 资金记录、账户余额和变动记录在同一事务中提交
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建数据库账本
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// gormTx 事务内的转账和记录操作
type gormTx struct {
	tx     *gorm.DB
	wallet *wallet.Wallet
}

func (t *gormTx) Transfer(ctx context.Context, from, to string, amount uint64) error {
	return t.wallet.Transfer(ctx, from, to, amount)
}

func (t *gormTx) Record(ctx context.Context, record *model.FundRecordModel) error {
	if err := t.tx.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create fund record: %w", err)
	}
	return nil
}

func newGormTx(tx *gorm.DB) *gormTx {
	return &gormTx{tx: tx, wallet: wallet.New(tx)}
}

func (s *GormStore) Create(ctx context.Context, fund *model.FundModel, fn MutateFunc) error {
	if err := checkNew(fund); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.FundModel{}).Where("address = ?", fund.Address).Count(&count).Error; err != nil {
			return fmt.Errorf("check fund %s: %w", fund.Address, err)
		}
		if count > 0 {
			return ErrAlreadyExists
		}

		next := *fund
		if fn != nil {
			if err := fn(ctx, &next, newGormTx(tx)); err != nil {
				return err
			}
			if err := checkTransition(fund, &next); err != nil {
				return err
			}
		}

		if err := tx.Create(&next).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("create fund %s: %w", fund.Address, err)
		}
		*fund = next
		return nil
	})
}

func (s *GormStore) Get(ctx context.Context, address string) (*model.FundModel, error) {
	var fund model.FundModel
	err := s.db.WithContext(ctx).Where("address = ?", address).Take(&fund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fund %s: %w", address, err)
	}
	return &fund, nil
}

func (s *GormStore) Apply(ctx context.Context, address string, fn MutateFunc) (*model.FundModel, error) {
	var out model.FundModel

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		// sqlite 不支持行锁, 由单写连接保证串行
		if tx.Dialector.Name() == "postgres" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var current model.FundModel
		if err := query.Where("address = ?", address).Take(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("lock fund %s: %w", address, err)
		}

		next := current
		if err := fn(ctx, &next, newGormTx(tx)); err != nil {
			return err
		}
		if err := checkTransition(&current, &next); err != nil {
			return err
		}

		if err := tx.Save(&next).Error; err != nil {
			return fmt.Errorf("save fund %s: %w", address, err)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *GormStore) List(ctx context.Context, query ListQuery) ([]model.FundModel, int64, error) {
	page, pageSize := NormalizePage(query.Page, query.PageSize)

	filtered := func() *gorm.DB {
		db := s.db.WithContext(ctx).Model(&model.FundModel{})
		if query.Creator != "" {
			db = db.Where("creator = ?", query.Creator)
		}
		if query.Active != nil {
			db = db.Where("is_active = ?", *query.Active)
		}
		return db
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count funds: %w", err)
	}

	var funds []model.FundModel
	if err := filtered().Order("date_created DESC").Order("address").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&funds).Error; err != nil {
		return nil, 0, fmt.Errorf("list funds: %w", err)
	}
	return funds, total, nil
}

func (s *GormStore) Records(ctx context.Context, address string, page, pageSize int) ([]model.FundRecordModel, int64, error) {
	page, pageSize = NormalizePage(page, pageSize)

	filtered := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&model.FundRecordModel{}).Where("fund_address = ?", address)
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count fund records: %w", err)
	}

	var records []model.FundRecordModel
	if err := filtered().Order("created_at DESC").Order("id").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("list fund records: %w", err)
	}
	return records, total, nil
}

func (s *GormStore) RecordStats(ctx context.Context, address string) (RecordStats, error) {
	var stats RecordStats
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(CASE WHEN kind = ? THEN 1 END) AS donations,
			COUNT(DISTINCT CASE WHEN kind = ? THEN actor END) AS donors,
			COUNT(CASE WHEN kind IN (?, ?) THEN 1 END) AS withdrawals
		FROM fund_record
		WHERE fund_address = ?
	`, model.FundRecordDonate, model.FundRecordDonate,
		model.FundRecordWithdraw, model.FundRecordClose, address).Scan(&stats).Error
	if err != nil {
		return RecordStats{}, fmt.Errorf("fund record stats: %w", err)
	}
	return stats, nil
}
