package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

const pingTimeout = 5 * time.Second

// MySQLConfig holds the MySQL pool settings.
type MySQLConfig struct {
	// DSN in go-sql-driver form, e.g. "user:pass@tcp(host:3306)/examgrader".
	// parseTime and a UTC location are always enforced.
	DSN string `yaml:"dsn"`

	MaxOpenConnections int           `yaml:"maxOpenConnections"` // default 25
	MaxIdleConnections int           `yaml:"maxIdleConnections"` // default 5
	ConnMaxLifetime    time.Duration `yaml:"connMaxLifetime"`    // default 5m
	ConnMaxIdleTime    time.Duration `yaml:"connMaxIdleTime"`    // default 10m
}

func (c MySQLConfig) withDefaults() MySQLConfig {
	if c.MaxOpenConnections <= 0 {
		c.MaxOpenConnections = 25
	}
	if c.MaxIdleConnections <= 0 {
		c.MaxIdleConnections = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 10 * time.Minute
	}
	return c
}

// driverConfig parses the DSN and pins the options the repositories depend on:
// DATETIME columns scan into time.Time in UTC.
func (c MySQLConfig) driverConfig() (*mysql.Config, error) {
	if c.DSN == "" {
		return nil, fmt.Errorf("mysql dsn is empty")
	}
	dc, err := mysql.ParseDSN(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	dc.ParseTime = true
	dc.Loc = time.UTC
	return dc, nil
}

// MySQL implements Database on top of a database/sql pool.
type MySQL struct {
	querier
	db *sql.DB
}

// NewMySQLWithConfig opens the pool and pings it once.
func NewMySQLWithConfig(config *MySQLConfig) (*MySQL, error) {
	if config == nil {
		return nil, fmt.Errorf("mysql config is nil")
	}
	cfg := config.withDefaults()
	dc, err := cfg.driverConfig()
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(dc)
	if err != nil {
		return nil, fmt.Errorf("create mysql connector: %w", err)
	}

	pool := sql.OpenDB(connector)
	pool.SetMaxOpenConns(cfg.MaxOpenConnections)
	pool.SetMaxIdleConns(cfg.MaxIdleConnections)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return NewMySQLWithDB(pool), nil
}

// NewMySQLWithDB wraps an already opened pool.
func NewMySQLWithDB(pool *sql.DB) *MySQL {
	return &MySQL{querier: querier{conn: pool, scope: "db"}, db: pool}
}

// Transaction runs fn in a single transaction: rollback on error or panic, commit otherwise.
func (m *MySQL) Transaction(ctx context.Context, fn func(tx Transaction) error) error {
	tx, err := m.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	return runTx(tx, fn)
}

// runTx re-panics after rolling back so the connection never goes back to the pool mid-transaction.
func runTx(tx Transaction, fn func(tx Transaction) error) error {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (m *MySQL) BeginTx(ctx context.Context, opts *TxOptions) (Transaction, error) {
	tx, err := m.db.BeginTx(ctx, toSQLTxOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &mysqlTx{querier: querier{conn: tx, scope: "tx"}, tx: tx}, nil
}

func (m *MySQL) Ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	return nil
}

func (m *MySQL) Close() error {
	return m.db.Close()
}

func (m *MySQL) Stats() Stats {
	return fromSQLStats(m.db.Stats())
}

type mysqlTx struct {
	querier
	tx *sql.Tx
}

func (t *mysqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (t *mysqlTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

// sqlConn is implemented by both *sql.DB and *sql.Tx.
type sqlConn interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// querier adapts a sqlConn to Querier; scope labels wrapped errors.
type querier struct {
	conn  sqlConn
	scope string
}

func (q querier) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	rows, err := q.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s query: %w", q.scope, err)
	}
	return rows, nil
}

func (q querier) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	return q.conn.QueryRowContext(ctx, query, args...)
}

func (q querier) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	res, err := q.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s exec: %w", q.scope, err)
	}
	return res, nil
}
