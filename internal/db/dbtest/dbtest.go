// Package dbtest opens throwaway in-memory databases for package tests.
package dbtest

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/healthcare_records/internal/db"
	"github.com/Skotchmaster/healthcare_records/internal/fieldcrypt"
	"github.com/Skotchmaster/healthcare_records/internal/models"
)

var seq atomic.Int64

// Key is the field encryption key used by Open.
var Key = bytes.Repeat([]byte{0x42}, fieldcrypt.KeySize)

// Open returns a migrated sqlite database with field encryption installed.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	c, err := fieldcrypt.New(Key)
	require.NoError(t, err)

	cfg := db.Config()
	cfg.PrepareStmt = false
	cfg.Logger = logger.Default.LogMode(logger.Silent)

	dsn := fmt.Sprintf("file:test%d?mode=memory&cache=shared", seq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Prepare(gdb, models.Encrypted(fieldcrypt.NewPlugin(c))))
	return gdb
}
