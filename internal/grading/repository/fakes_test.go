package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"examgrader/internal/common/db"
)

type execCall struct {
	query string
	args  []interface{}
}

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	data   [][]interface{}
	pos    int
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...interface{}) error { return assign(dest, r.data[r.pos-1]) }
func (r *fakeRows) Close() error                   { r.closed = true; return nil }
func (r *fakeRows) Err() error                     { return nil }

func assign(dest []interface{}, values []interface{}) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i := range dest {
		if s, ok := dest[i].(sql.Scanner); ok {
			if err := s.Scan(values[i]); err != nil {
				return err
			}
			continue
		}
		dv := reflect.ValueOf(dest[i]).Elem()
		if values[i] == nil {
			dv.Set(reflect.Zero(dv.Type()))
			continue
		}
		sv := reflect.ValueOf(values[i])
		if !sv.Type().AssignableTo(dv.Type()) {
			return fmt.Errorf("scan column %d: cannot assign %s to %s", i, sv.Type(), dv.Type())
		}
		dv.Set(sv)
	}
	return nil
}

// fakeDB routes reads to handlers and buffers transactional writes until commit.
type fakeDB struct {
	mu        sync.Mutex
	queryRow  func(query string, args ...interface{}) db.Row
	query     func(query string, args ...interface{}) (db.Rows, error)
	execErr   func(query string) error
	committed []execCall
	rollbacks int
	reads     int
}

func (f *fakeDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()
	if f.query == nil {
		return nil, errors.New("unexpected query")
	}
	return f.query(query, args...)
}

func (f *fakeDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()
	if f.queryRow == nil {
		return fakeRow{err: errors.New("unexpected query row")}
	}
	return f.queryRow(query, args...)
}

func (f *fakeDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	if f.execErr != nil {
		if err := f.execErr(query); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	f.committed = append(f.committed, execCall{query: query, args: args})
	f.mu.Unlock()
	return fakeResult{}, nil
}

func (f *fakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	tx, _ := f.BeginTx(ctx, nil)
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (f *fakeDB) BeginTx(ctx context.Context, opts *db.TxOptions) (db.Transaction, error) {
	return &fakeTx{db: f}, nil
}

func (f *fakeDB) Ping(ctx context.Context) error { return nil }
func (f *fakeDB) Close() error                   { return nil }
func (f *fakeDB) Stats() db.Stats                { return db.Stats{} }

type fakeTx struct {
	db      *fakeDB
	pending []execCall
}

func (t *fakeTx) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	return t.db.Query(ctx, query, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	return t.db.QueryRow(ctx, query, args...)
}

func (t *fakeTx) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	if t.db.execErr != nil {
		if err := t.db.execErr(query); err != nil {
			return nil, err
		}
	}
	t.pending = append(t.pending, execCall{query: query, args: args})
	return fakeResult{}, nil
}

func (t *fakeTx) Commit() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.committed = append(t.db.committed, t.pending...)
	t.pending = nil
	return nil
}

func (t *fakeTx) Rollback() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.rollbacks++
	t.pending = nil
	return nil
}

func queryHas(query, fragment string) bool {
	return strings.Contains(query, fragment)
}
