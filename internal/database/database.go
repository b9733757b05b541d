package database

import (
	"fmt"

	"github.com/blues/fundvault/internal/config"
	"github.com/blues/fundvault/internal/model"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// Init 连接数据库并执行自动迁移
func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "postgres":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
		}
		dialector = postgres.Open(dsn)
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "file:fundvault.db?_pragma=busy_timeout(5000)"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 禁用 GORM 的默认日志输出
		NamingStrategy: &schema.NamingStrategy{
			SingularTable: true, // 禁用复数表名
		},
		TranslateError: true, // 唯一键冲突转换为 gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite 只允许单写连接, 事务天然串行
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate 自动迁移
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.FundModel{},
		&model.AccountModel{},
		&model.FundRecordModel{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
