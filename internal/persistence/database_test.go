package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(Config{Driver: "oracle", DSN: "x"}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestNewDatabase_EmptyDSN(t *testing.T) {
	_, err := NewDatabase(Config{Driver: DriverSQLite}, nil)
	assert.Error(t, err)
}

func TestNewDatabase_SQLiteDefaults(t *testing.T) {
	db, err := NewDatabase(Config{DSN: ":memory:", Tracing: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, DriverSQLite, db.Driver)
	assert.NoError(t, db.Ping())

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestRunMigrations_Status(t *testing.T) {
	db := setupPurchaseTestDB(t)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)

	assert.NoError(t, RunMigrations(context.Background(), sqlDB, DriverSQLite, "status", zaptest.NewLogger(t)))
	assert.True(t, db.DB.Migrator().HasTable(&PurchaseModel{}))
}

func TestOpenSQL(t *testing.T) {
	db, err := OpenSQL(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Ping())

	_, err = OpenSQL("mysql", "")
	assert.Error(t, err)
}
