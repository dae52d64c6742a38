package db

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNoDatabase is returned when a provider has no database to hand out.
var ErrNoDatabase = errors.New("db: no database configured")

// Querier is the statement surface shared by a pool and a transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// Database is the connection-pool level handle used by repositories.
type Database interface {
	Querier

	// Transaction runs fn inside one transaction; fn's error rolls back, nil commits.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
	BeginTx(ctx context.Context, opts *TxOptions) (Transaction, error)
	Ping(ctx context.Context) error
	Close() error
	Stats() Stats
}

// Transaction is an in-flight transaction.
type Transaction interface {
	Querier
	Commit() error
	Rollback() error
}

// Rows iterates a query result. *sql.Rows satisfies it.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is a single-row query result. *sql.Row satisfies it.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an Exec. sql.Result satisfies it.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// TxOptions mirrors sql.TxOptions without leaking database/sql to callers.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// Stats is a subset of sql.DBStats.
type Stats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
}

// Provider hands out the database a repository should use for the current call.
type Provider interface {
	Current() Database
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() Database

func (f ProviderFunc) Current() Database {
	if f == nil {
		return nil
	}
	return f()
}

// Static returns a provider that always yields database.
func Static(database Database) Provider {
	return ProviderFunc(func() Database { return database })
}

// Resolve returns the provider's current database or ErrNoDatabase.
func Resolve(provider Provider) (Database, error) {
	if provider == nil {
		return nil, ErrNoDatabase
	}
	if database := provider.Current(); database != nil {
		return database, nil
	}
	return nil, ErrNoDatabase
}

// Using picks tx when a transaction is in flight, otherwise the pool.
func Using(database Database, tx Transaction) Querier {
	if tx != nil {
		return tx
	}
	return database
}

func toSQLTxOptions(opts *TxOptions) *sql.TxOptions {
	if opts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: opts.Isolation, ReadOnly: opts.ReadOnly}
}

func fromSQLStats(s sql.DBStats) Stats {
	return Stats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
	}
}
