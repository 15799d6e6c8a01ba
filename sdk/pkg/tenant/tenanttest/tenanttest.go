// Package tenanttest 为目录库和租户课程库提供内存 SQLite 测试夹具
package tenanttest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/migration"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/database"
)

// DirectorySchema 中心目录表结构
const DirectorySchema = `
CREATE TABLE domains (
  name VARCHAR(128) PRIMARY KEY,
  config TEXT NOT NULL
);
`

// TenantSchema 租户库的课程表结构
const TenantSchema = `
CREATE TABLE courses_modules (
  cmoid VARCHAR(64) PRIMARY KEY,
  title VARCHAR(255)
);
CREATE TABLE courses_modules_usr (
  uid VARCHAR(64) NOT NULL,
  cmoid VARCHAR(64) NOT NULL,
  current_progress DOUBLE NOT NULL DEFAULT 0,
  timespent DOUBLE NOT NULL DEFAULT 0,
  PRIMARY KEY (uid, cmoid)
);
`

var seq atomic.Int64

// UniqueName 返回进程内唯一的库名
func UniqueName(t testing.TB) string {
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	return fmt.Sprintf("%s_%d", name, seq.Add(1))
}

// MemoryDSN 命名的共享缓存内存库 DSN
func MemoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

// Dialector 打开 cfg.DbName 对应的内存库，签名与生产用的 MySQL dialector 相同
func Dialector(cfg *database.TenantDatabaseConfig) gorm.Dialector {
	return sqlite.Open(MemoryDSN(cfg.DbName))
}

// Open 打开命名内存库并保持到测试结束
func Open(t testing.TB, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(MemoryDSN(name)), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// NewDirectory 创建目录库并写入 domain → 配置 JSON
func NewDirectory(t testing.TB, blobs map[string]string) *gorm.DB {
	t.Helper()
	db := Open(t, UniqueName(t)+"_directory")
	exec(t, db, DirectorySchema)
	for name, blob := range blobs {
		if err := db.Exec("INSERT INTO domains (name, config) VALUES (?, ?)", name, blob).Error; err != nil {
			t.Fatalf("seed domain %s: %v", name, err)
		}
	}
	return db
}

// NewTenant 创建租户库，同时返回指向它的配置 JSON
func NewTenant(t testing.TB) (*gorm.DB, string) {
	t.Helper()
	name := UniqueName(t) + "_tenant"
	db := Open(t, name)
	exec(t, db, TenantSchema)
	return db, Blob(name)
}

// Blob 生成指向该库名的目录配置 JSON
func Blob(dbName string) string {
	return fmt.Sprintf(`{"USER":"u","PASSWORD":"p","HOST":"h","DB":%q}`, dbName)
}

// SeedProgress 插入模块及该用户的进度行
func SeedProgress(t testing.TB, db *gorm.DB, user, module string, progress, timespent float64) {
	t.Helper()
	if err := db.Exec("INSERT OR IGNORE INTO courses_modules (cmoid, title) VALUES (?, ?)", module, "module "+module).Error; err != nil {
		t.Fatalf("seed module %s: %v", module, err)
	}
	if err := db.Exec(
		"INSERT INTO courses_modules_usr (uid, cmoid, current_progress, timespent) VALUES (?, ?, ?, ?)",
		user, module, progress, timespent,
	).Error; err != nil {
		t.Fatalf("seed progress %s/%s: %v", user, module, err)
	}
}

// SeedModule 只插入模块，不插入进度行
func SeedModule(t testing.TB, db *gorm.DB, module string) {
	t.Helper()
	if err := db.Exec("INSERT INTO courses_modules (cmoid, title) VALUES (?, ?)", module, "module "+module).Error; err != nil {
		t.Fatalf("seed module %s: %v", module, err)
	}
}

// Progress 读取一行的 (current_progress, timespent)
func Progress(t testing.TB, db *gorm.DB, user, module string) (float64, float64) {
	t.Helper()
	var row struct {
		CurrentProgress float64
		Timespent       float64
	}
	err := db.Raw(
		"SELECT current_progress, timespent FROM courses_modules_usr WHERE uid = ? AND cmoid = ?",
		user, module,
	).Scan(&row).Error
	if err != nil {
		t.Fatalf("read progress %s/%s: %v", user, module, err)
	}
	return row.CurrentProgress, row.Timespent
}

func exec(t testing.TB, db *gorm.DB, script string) {
	t.Helper()
	if err := migration.ExecScript(db, strings.NewReader(script), true); err != nil {
		t.Fatalf("exec schema: %v", err)
	}
}
