package persistence

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Transactor runs a function inside a single database transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// Result is a tabular query result.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Gateway is the single entry point for SQL. Statements issued through
// Conn inside WithinTransaction share the transaction.
type Gateway struct {
	pool *pgxpool.Pool
}

// NewGateway wraps the pool.
func NewGateway(pool *pgxpool.Pool) *Gateway {
	return &Gateway{pool: pool}
}

// Conn returns the transaction bound to ctx, or the pool.
func (g *Gateway) Conn(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return g.pool
}

// WithinTransaction executes fn within a transaction that is committed when
// fn returns nil and rolled back otherwise. Nested calls join the outer
// transaction.
func (g *Gateway) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return Classify(fmt.Errorf("begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = Classify(fmt.Errorf("commit transaction: %w", commitErr))
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, tx))
}

// ExecuteQuery runs a parameterized SELECT and returns every row.
func (g *Gateway) ExecuteQuery(ctx context.Context, sql string, args ...any) (*Result, error) {
	rows, err := g.Conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := &Result{Columns: make([]string, len(fields))}
	for i, fd := range fields {
		result.Columns[i] = fd.Name
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, Classify(err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(err)
	}
	return result, nil
}

// ExecuteNonQuery runs a parameterized statement and returns rows affected.
func (g *Gateway) ExecuteNonQuery(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := g.Conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, Classify(err)
	}
	return tag.RowsAffected(), nil
}

// Ping verifies connectivity.
func (g *Gateway) Ping(ctx context.Context) error {
	if g == nil || g.pool == nil {
		return ErrNotConfigured
	}
	return g.pool.Ping(ctx)
}

// Classify maps driver errors onto the connection/query taxonomy.
// pgx.ErrNoRows and errors that are already domain errors pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return apperrors.NewQueryError(err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return apperrors.NewConnectionError(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.NewConnectionError(err)
	}
	if errors.Is(err, ErrNotConfigured) {
		return apperrors.NewConnectionError(err)
	}
	return apperrors.NewQueryError(err)
}
