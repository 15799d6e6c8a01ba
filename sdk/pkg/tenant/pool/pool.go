package pool

import (
	"context"
	"database/sql"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/database"
)

// Pool 单个租户库的连接池，生命周期与创建它的 Cache 相同
type Pool struct {
	domain string
	config *database.TenantDatabaseConfig
	db     *gorm.DB
	sqlDB  *sql.DB
	leased atomic.Int64
}

// Domain 租户 domain
func (p *Pool) Domain() string {
	return p.domain
}

// Config 打开连接池时使用的凭据
func (p *Pool) Config() *database.TenantDatabaseConfig {
	return p.config
}

// Stats database/sql 连接池统计
func (p *Pool) Stats() sql.DBStats {
	return p.sqlDB.Stats()
}

// Leased 未归还的租用数
func (p *Pool) Leased() int64 {
	return p.leased.Load()
}

func (p *Pool) lease(ctx context.Context) (*Lease, error) {
	conn, err := p.sqlDB.Conn(ctx)
	if err != nil {
		return nil, err
	}

	// gorm 会话固定在租用的连接上，使用独立的 Statement，不影响连接池的根句柄
	db := p.db.Session(&gorm.Session{NewDB: true, Context: context.Background()})
	db.Statement.ConnPool = conn

	p.leased.Add(1)
	return &Lease{pool: p, conn: conn, db: db}, nil
}

func (p *Pool) close() error {
	return p.sqlDB.Close()
}

// Lease 独占租用租户连接池中的一个连接
type Lease struct {
	pool     *Pool
	conn     *sql.Conn
	db       *gorm.DB
	released atomic.Bool
}

// Domain 连接所属的 domain
func (l *Lease) Domain() string {
	return l.pool.domain
}

// DB 绑定在租用连接上的 gorm 句柄，归还后不能再使用
func (l *Lease) DB() *gorm.DB {
	return l.db
}

// Released 连接是否已归还
func (l *Lease) Released() bool {
	return l.released.Load()
}

// release 只归还一次
// sql.Conn.Close 会等正在执行的语句结束后再归还连接
func (l *Lease) release() error {
	if !l.released.CompareAndSwap(false, true) {
		return nil
	}
	l.pool.leased.Add(-1)
	return l.conn.Close()
}
