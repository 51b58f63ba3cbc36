//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/config"
	pfirestore "github.com/crackersbazaar/api/internal/platform/firestore"
	"github.com/crackersbazaar/api/internal/repositories"
	"github.com/crackersbazaar/api/internal/repositories/repotest"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(config.FirestoreConfig{
		ProjectID:    "bazaar-" + strings.ToLower(ulid.Make().String()),
		EmulatorHost: host,
	})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	reg, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg
}

func TestRegistryRunInTxCommitsStockAndOrder(t *testing.T) {
	reg := newTestRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	product := domain.Product{ID: "p1", ManufacturerID: "m1", Name: "Sparkler", SKU: "SPK-1", Price: decimal.RequireFromString("12.50"), StockQuantity: 10, Active: true, CreatedAt: now, UpdatedAt: now}
	if err := reg.Products().Insert(ctx, product); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	err := reg.RunInTx(ctx, func(ctx context.Context) error {
		current, err := reg.Products().FindByID(ctx, "p1")
		if err != nil {
			return err
		}
		if err := reg.Products().UpdateStock(ctx, "p1", current.StockQuantity-4, now); err != nil {
			return err
		}
		return reg.Orders().Insert(ctx, domain.Order{
			ID: "o1", UserID: "u1", OrderNumber: "ORD1", Status: domain.OrderStatusPending,
			Total: decimal.NewFromInt(50), CreatedAt: now, UpdatedAt: now,
			Items: []domain.OrderItem{{ID: "i1", ProductID: "p1", ManufacturerID: "m1", Quantity: 4, UnitPrice: product.Price, TotalPrice: decimal.NewFromInt(50)}},
		})
	})
	if err != nil {
		t.Fatalf("run in tx: %v", err)
	}

	stored, err := reg.Products().FindByID(ctx, "p1")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if stored.StockQuantity != 6 {
		t.Fatalf("expected stock 6, got %d", stored.StockQuantity)
	}
	if !stored.Price.Equal(product.Price) {
		t.Fatalf("expected price %s, got %s", product.Price, stored.Price)
	}
	order, err := reg.Orders().FindByOrderNumber(ctx, "ORD1")
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].ManufacturerID != "m1" {
		t.Fatalf("unexpected items %+v", order.Items)
	}
	summary, err := reg.Orders().Summarize(ctx, repositories.OrderSummaryFilter{ManufacturerID: "m1"})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !summary.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected manufacturer revenue %s", summary.Amount)
	}
}

func TestRegistryRunInTxReturnsCallbackError(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	sentinel := errors.New("stop")

	err := reg.RunInTx(ctx, func(ctx context.Context) error {
		if err := reg.Accounts().Insert(ctx, domain.Account{ID: "a1", Username: "Ravi", Email: "ravi@example.com", Role: domain.RoleRetailer}); err != nil {
			return err
		}
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected sentinel back unchanged, got %v", err)
	}
	if _, err := reg.Accounts().FindByID(ctx, "a1"); !repositories.IsNotFound(err) {
		t.Fatalf("expected account to be rolled back, got %v", err)
	}
}

func TestAccountLookupUsesFoldedKeys(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	if err := reg.Accounts().Insert(ctx, domain.Account{ID: "a1", Username: "Ravi", Email: "Ravi@Example.com", Role: domain.RoleRetailer}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	exists, err := reg.Accounts().ExistsByEmail(ctx, "ravi@example.COM")
	if err != nil || !exists {
		t.Fatalf("expected folded email match, got %v %v", exists, err)
	}
	account, err := reg.Accounts().FindByUsername(ctx, "RAVI")
	if err != nil {
		t.Fatalf("find by username: %v", err)
	}
	if account.Email != "Ravi@Example.com" {
		t.Fatalf("expected original email casing preserved, got %s", account.Email)
	}
}

func TestCounterNextConcurrent(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int64]bool{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := reg.Counters().Next(ctx, "orders", 1)
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	for i := int64(1); i <= workers; i++ {
		if !seen[i] {
			t.Fatalf("missing counter value %d in %v", i, seen)
		}
	}
}

func TestManufacturerListPaginatesWithCompanyFilter(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("Other Works %d", i)
		if i%2 == 0 {
			name = fmt.Sprintf("Sivakasi Fireworks %d", i)
		}
		err := reg.Manufacturers().Insert(ctx, domain.Manufacturer{
			ID: fmt.Sprintf("m%d", i), CompanyName: name, Email: fmt.Sprintf("m%d@example.com", i),
			Status: domain.ManufacturerStatusPending, CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("insert manufacturer: %v", err)
		}
	}

	var ids []string
	token := ""
	for {
		page, err := reg.Manufacturers().List(ctx, repositories.ManufacturerListFilter{
			CompanyQuery: "sivakasi",
			Pagination:   domain.Pagination{PageSize: 2, PageToken: token},
		})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, m := range page.Items {
			ids = append(ids, m.ID)
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	if fmt.Sprint(ids) != "[m4 m2 m0]" {
		t.Fatalf("unexpected ids %v", ids)
	}

	counts, err := reg.Manufacturers().CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count by status: %v", err)
	}
	if counts[domain.ManufacturerStatusPending] != 6 {
		t.Fatalf("expected 6 pending, got %d", counts[domain.ManufacturerStatusPending])
	}
}

func TestRegistryContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repositories.Registry { return newTestRegistry(t) })
}
