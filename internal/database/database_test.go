package database

import (
	"bytes"
	"errors"
	"testing"

	"marketplace/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestGormLoggerSkipsMissingRows(t *testing.T) {
	var out bytes.Buffer
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         gormLogger(&out),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.User{}))

	var u models.User
	err = db.First(&u, 999).Error
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	assert.Empty(t, out.String())

	var n int
	require.Error(t, db.Raw("SELECT count(*) FROM no_such_table").Scan(&n).Error)
	assert.Contains(t, out.String(), "no_such_table")
}

func TestNewTestDBAppliesSchema(t *testing.T) {
	db, err := NewTestDB(t.Name())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, m := range []interface{}{&models.Wallet{}, &models.Transaction{}, &models.SystemSetting{}} {
		assert.True(t, db.Migrator().HasTable(m))
	}
}
