// Package databasetest opens throwaway in-memory databases for tests.
package databasetest

import (
	"fmt"
	"testing"

	"github.com/blues/fundvault/internal/config"
	"github.com/blues/fundvault/internal/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Open returns a migrated in-memory sqlite database closed at test cleanup.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Init(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
