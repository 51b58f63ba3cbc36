//go:build integration

package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/config"
	"github.com/crackersbazaar/api/internal/repositories"
	"github.com/crackersbazaar/api/internal/repositories/repotest"
)

var migrateOnce sync.Once

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dsn := os.Getenv("API_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("API_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := Open(ctx, config.PostgresConfig{DSN: dsn, MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	var migrateErr error
	migrateOnce.Do(func() { migrateErr = Migrate(ctx, pool, zaptest.NewLogger(t)) })
	require.NoError(t, migrateErr)
	truncate(t, pool)

	reg, err := NewRegistry(pool)
	require.NoError(t, err)
	return reg
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE order_items, orders, manufacturers, accounts, products, counters, audit_logs`)
	require.NoError(t, err)
}

func TestRegistryContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repositories.Registry { return newTestRegistry(t) })
}

func TestConcurrentStockDecrementNeverOversells(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, reg.Products().Insert(ctx, domain.Product{
		ID: "prod-1", Name: "Chakkar", Price: decimal.NewFromInt(12), StockQuantity: 5, Active: true,
		CreatedAt: now, UpdatedAt: now,
	}))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := reg.RunInTx(ctx, func(ctx context.Context) error {
				p, err := reg.Products().FindByID(ctx, "prod-1")
				if err != nil {
					return err
				}
				if p.StockQuantity < 1 {
					return repositories.NewStockError(repositories.StockErrorInsufficient, p.ID, p.StockQuantity, 1)
				}
				return reg.Products().UpdateStock(ctx, p.ID, p.StockQuantity-1, time.Now())
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	p, err := reg.Products().FindByID(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, p.StockQuantity)
}

func TestDuplicateUsernameIsConflict(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()
	account := domain.Account{
		ID: "acc-1", Username: "Ravi", Email: "ravi@example.com", PasswordHash: "x",
		Role: domain.RoleRetailer, Active: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, reg.Accounts().Insert(ctx, account))

	account.ID = "acc-2"
	account.Username = "RAVI"
	account.Email = "other@example.com"
	err := reg.Accounts().Insert(ctx, account)
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsConflict())
}

func TestUpdateStockRejectsNegativeQuantity(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, reg.Products().Insert(ctx, domain.Product{
		ID: "prod-1", Name: "Anar", Price: decimal.NewFromInt(8), StockQuantity: 1, Active: true,
		CreatedAt: now, UpdatedAt: now,
	}))
	err := reg.Products().UpdateStock(ctx, "prod-1", -1, now)
	require.Error(t, err)
	var stockErr *repositories.StockError
	assert.ErrorAs(t, err, &stockErr)
}
