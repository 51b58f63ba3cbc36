package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/config"
	"github.com/crackersbazaar/api/internal/platform/pagination"
	"github.com/crackersbazaar/api/internal/repositories"
)

const connectTimeout = 10 * time.Second

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Open creates a connection pool and verifies connectivity.
func Open(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Registry implements repositories.Registry on a pgx pool. Repository calls made with a context returned by
// RunInTx run on that transaction; reads inside a transaction lock the rows they return.
type Registry struct {
	pool *pgxpool.Pool
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wraps an open pool.
func NewRegistry(pool *pgxpool.Pool) (*Registry, error) {
	if pool == nil {
		return nil, errors.New("postgres registry requires pool")
	}
	return &Registry{pool: pool}, nil
}

func (r *Registry) Products() repositories.ProductRepository           { return productRepository{r} }
func (r *Registry) Accounts() repositories.AccountRepository           { return accountRepository{r} }
func (r *Registry) Manufacturers() repositories.ManufacturerRepository { return manufacturerRepository{r} }
func (r *Registry) Orders() repositories.OrderRepository               { return orderRepository{r} }
func (r *Registry) Counters() repositories.CounterRepository           { return counterRepository{r} }
func (r *Registry) AuditLogs() repositories.AuditLogRepository         { return auditLogRepository{r} }

func (r *Registry) Close(context.Context) error {
	r.pool.Close()
	return nil
}

func (r *Registry) Ping(ctx context.Context) error {
	return wrapError("ping", r.pool.Ping(ctx))
}

type txKey struct{}

// RunInTx runs fn in a READ COMMITTED transaction. Nested calls join the outer transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrapError("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return wrapError("commit", tx.Commit(ctx))
}

func (r *Registry) conn(ctx context.Context) (querier, bool) {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx, true
	}
	return r.pool, false
}

// lockClause returns FOR UPDATE when ctx carries a transaction.
func (r *Registry) lockClause(ctx context.Context) string {
	if _, inTx := r.conn(ctx); inTx {
		return " FOR UPDATE"
	}
	return ""
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &repositories.Error{Op: op, Kind: repositories.ErrorKindNotFound, Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01", "55P03":
			return &repositories.Error{Op: op, Kind: repositories.ErrorKindConflict, Err: err}
		case "23503", "23514":
			return &repositories.Error{Op: op, Kind: repositories.ErrorKindUnknown, Err: err}
		}
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57") {
			return repositories.NewUnavailableError(op, err)
		}
		return &repositories.Error{Op: op, Kind: repositories.ErrorKindUnknown, Err: err}
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return repositories.NewUnavailableError(op, err)
	}
	return &repositories.Error{Op: op, Kind: repositories.ErrorKindUnknown, Err: err}
}

// where accumulates SQL predicates and their positional arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.clauses = append(w.clauses, clause)
}

func (w *where) arg(value any) string {
	w.args = append(w.args, value)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// keyset applies the (created_at desc, id desc) cursor and returns the ORDER/LIMIT suffix. One extra row is
// requested to detect a following page.
func keyset(w *where, alias string, page domain.Pagination) (string, int, error) {
	cursor, err := pagination.DecodeToken(page.PageToken)
	if err != nil {
		return "", 0, err
	}
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	if !cursor.IsZero() {
		w.add(fmt.Sprintf("(%screated_at, %sid) < (?, ?)", prefix, prefix), cursor.CreatedAt, cursor.ID)
	}
	size := pagination.NormalizePageSize(page.PageSize)
	suffix := fmt.Sprintf(" ORDER BY %screated_at DESC, %sid DESC LIMIT %d", prefix, prefix, size+1)
	return suffix, size, nil
}

func trimPage[T any](items []T, size int, key func(T) (time.Time, string)) domain.CursorPage[T] {
	if len(items) <= size {
		return domain.CursorPage[T]{Items: items}
	}
	items = items[:size]
	createdAt, id := key(items[size-1])
	return domain.CursorPage[T]{
		Items:         items,
		NextPageToken: pagination.EncodeToken(pagination.Cursor{CreatedAt: createdAt, ID: id}),
	}
}

func parseDecimal(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}
