// internal/repository/postgres/db.go
package postgres

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// DB exposes the pgx pool both natively and through database/sql, which the
// repositories use so they can be exercised with sqlmock.
type DB struct {
	pool *pgxpool.Pool
	sql  *sql.DB
}

func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool, sql: stdlib.OpenDBFromPool(pool)}
}

func (db *DB) SQL() *sql.DB {
	return db.sql
}

func (db *DB) Close() {
	_ = db.sql.Close()
	db.pool.Close()
}
