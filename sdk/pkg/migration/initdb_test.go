package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestExecScript(t *testing.T) {
	db := openMemory(t)

	script := `
-- directory schema
CREATE TABLE domains (
  name VARCHAR(128) PRIMARY KEY,
  config TEXT NOT NULL
);
INSERT INTO domains (name, config) VALUES ('school-a', '{"USER":"u"}');
`
	require.NoError(t, ExecScript(db, strings.NewReader(script), true))

	var count int64
	require.NoError(t, db.Table("domains").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestExecScript_StopOnError(t *testing.T) {
	db := openMemory(t)

	err := ExecScript(db, strings.NewReader("INSERT INTO missing VALUES (1);"), true)
	assert.Error(t, err)

	err = ExecScript(db, strings.NewReader("INSERT INTO missing VALUES (1);\nCREATE TABLE t (id INT);"), false)
	assert.NoError(t, err)
	assert.True(t, db.Migrator().HasTable("t"))
}

func TestInitDb_SkipsMissingFiles(t *testing.T) {
	db := openMemory(t)
	dir := t.TempDir()
	sqlFile := filepath.Join(dir, "db.sql")
	require.NoError(t, os.WriteFile(sqlFile, []byte("CREATE TABLE courses_modules (cmoid VARCHAR(64));"), 0o600))

	err := InitDb(db, InitDbConfig{
		SQLFiles:    []string{filepath.Join(dir, "absent.sql"), sqlFile},
		StopOnError: true,
	})
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable("courses_modules"))
}
