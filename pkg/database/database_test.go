package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

type probe struct {
	ID   uint
	Name string
}

func TestNewSQLite(t *testing.T) {
	db, err := New(&Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "probe.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db, &probe{}))

	require.NoError(t, db.Create(&probe{Name: "a"}).Error)

	var got probe
	require.NoError(t, db.First(&got).Error)
	assert.Equal(t, "a", got.Name)
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New(&Config{Driver: "oracle"})
	assert.Error(t, err)
}

func TestNewSQLiteNeedsPath(t *testing.T) {
	_, err := New(&Config{Driver: "sqlite"})
	assert.ErrorContains(t, err, "file_path")
}

func TestQueryLoggerLevels(t *testing.T) {
	l := newQueryLogger("silent", 0)
	assert.Equal(t, defaultSlowQuery, l.slow)
	assert.Equal(t, logger.Silent, l.level)

	assert.Equal(t, logger.Warn, parseLevel(""))
	assert.Equal(t, logger.Info, parseLevel(" INFO "))

	verbose := l.LogMode(logger.Info).(*queryLogger)
	assert.Equal(t, logger.Info, verbose.level)
	assert.Equal(t, logger.Silent, l.level)
}
