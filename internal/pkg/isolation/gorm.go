package isolation

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

type replicaReadContextKey struct{}

var (
	_ gorm.ConnPool   = (*DB)(nil)
	_ gorm.TxBeginner = (*DB)(nil)
)

// DB 读写分离的 gorm 连接池。
//
// 默认所有语句走主库，只有通过 WithReplicaRead 标记的只读扫描走从库。
// 事务永远在主库开启。
type DB struct {
	primary *sql.DB
	replica *sql.DB
}

func (db *DB) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return db.selectDB(ctx).PrepareContext(ctx, query)
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	// 写操作不允许落到从库
	return db.primary.ExecContext(ctx, query, args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.selectDB(ctx).QueryContext(ctx, query, args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.selectDB(ctx).QueryRowContext(ctx, query, args...)
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return db.primary.BeginTx(ctx, opts)
}

func (db *DB) Ping() error {
	if err := db.primary.Ping(); err != nil {
		return err
	}
	return db.replica.Ping()
}

func (db *DB) selectDB(ctx context.Context) *sql.DB {
	if IsReplicaRead(ctx) {
		return db.replica
	}
	return db.primary
}

// NewDB replica 为 nil 时所有语句走主库
func NewDB(primary, replica *sql.DB) *DB {
	if replica == nil {
		replica = primary
	}
	return &DB{
		primary: primary,
		replica: replica,
	}
}

// WithReplicaRead 标记允许读到主从延迟数据的查询
func WithReplicaRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, replicaReadContextKey{}, true)
}

func IsReplicaRead(ctx context.Context) bool {
	val, _ := ctx.Value(replicaReadContextKey{}).(bool)
	return val
}
