//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/crackersbazaar/api/internal/platform/config"
	pfirestore "github.com/crackersbazaar/api/internal/platform/firestore"
	"github.com/crackersbazaar/api/internal/repositories"
)

type stockEntry struct {
	Name     string `firestore:"name"`
	Quantity int    `firestore:"quantity"`
}

func newProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(config.FirestoreConfig{ProjectID: "platform-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func TestBaseRepositoryRoundTrip(t *testing.T) {
	provider := newProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	repo := pfirestore.NewBaseRepository[stockEntry](provider, "stock_entries")
	if err := repo.Create(ctx, "rocket", stockEntry{Name: "Rocket", Quantity: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := repo.Create(ctx, "rocket", stockEntry{Name: "Rocket"})
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	got, err := repo.Get(ctx, "rocket")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", got.Quantity)
	}

	if _, err := repo.Get(ctx, "missing"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	items, ids, err := repo.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("quantity", ">=", 1)
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(items) != 1 || ids[0] != "rocket" {
		t.Fatalf("unexpected query result %v %v", items, ids)
	}
}

func TestRunTransactionJoinsContextTransaction(t *testing.T) {
	provider := newProvider(t)
	ctx := context.Background()
	repo := pfirestore.NewBaseRepository[stockEntry](provider, "stock_tx")

	err := provider.RunTransaction(ctx, func(ctx context.Context, outer *firestore.Transaction) error {
		return provider.RunTransaction(ctx, func(ctx context.Context, inner *firestore.Transaction) error {
			if inner != outer {
				t.Errorf("expected nested call to join outer transaction")
			}
			return repo.Set(ctx, "flowerpot", stockEntry{Name: "Flower pot", Quantity: 5})
		})
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	aborted := errors.New("abort")
	err = provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		if err := repo.Set(ctx, "chakkar", stockEntry{Name: "Chakkar"}); err != nil {
			return err
		}
		return aborted
	})
	if !errors.Is(err, aborted) {
		t.Fatalf("expected abort error, got %v", err)
	}
	if _, err := repo.Get(ctx, "chakkar"); !repositories.IsNotFound(err) {
		t.Fatalf("expected rolled back write, got %v", err)
	}
}
