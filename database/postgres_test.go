package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	db, err := Open("sqlite", "file:migrate_test?mode=memory&cache=shared", "silent")
	require.NoError(t, err)

	require.NoError(t, Migrate(db))

	for _, table := range []string{"users", "groups", "projects", "ledger_entries", "shares", "disbursements", "meeting_records", "activities"} {
		assert.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "", "")
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, parseLogLevel("INFO"))
	assert.Equal(t, logger.Silent, parseLogLevel("silent"))
	assert.Equal(t, logger.Warn, parseLogLevel("bogus"))
}
