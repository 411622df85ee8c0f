// Package dbtest opens migrated in-memory SQLite databases for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/zulandar/qualitygate/internal/db"
	"gorm.io/gorm"
)

var seq atomic.Int64

// Open returns a migrated in-memory database private to the calling test.
// The pool is held to one connection so transactions serialize the way they
// would against a server database instead of failing with SQLITE_LOCKED.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, seq.Add(1))
	gdb, err := db.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return gdb
}
