// Package repotest holds the behavioural suite every repositories.Registry backend must pass.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/repositories"
)

// Factory returns an empty registry. It is called once per subtest.
type Factory func(t *testing.T) repositories.Registry

// Run executes the registry contract against the backend produced by newRegistry.
func Run(t *testing.T, newRegistry Factory) {
	t.Run("products", func(t *testing.T) { testProducts(t, newRegistry(t)) })
	t.Run("transaction rollback", func(t *testing.T) { testRollback(t, newRegistry(t)) })
	t.Run("orders", func(t *testing.T) { testOrders(t, newRegistry(t)) })
	t.Run("manufacturers", func(t *testing.T) { testManufacturers(t, newRegistry(t)) })
	t.Run("counters", func(t *testing.T) { testCounters(t, newRegistry(t)) })
}

var baseTime = time.Date(2024, 10, 20, 8, 30, 0, 0, time.UTC)

func testProducts(t *testing.T, reg repositories.Registry) {
	ctx := context.Background()
	product := domain.Product{
		ID: "prod-1", ManufacturerID: "mf-1", Name: "Flower Pot Deluxe", Category: "Ground",
		SKU: "FP-100", Price: decimal.RequireFromString("45.50"), StockQuantity: 10, Active: true,
		ImageURLs: []string{"https://cdn.example.com/fp.png"}, CreatedAt: baseTime, UpdatedAt: baseTime,
	}
	require.NoError(t, reg.Products().Insert(ctx, product))

	got, err := reg.Products().FindByID(ctx, "prod-1")
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(product.Price), "price %s", got.Price)
	assert.Equal(t, 10, got.StockQuantity)
	assert.Equal(t, product.ImageURLs, got.ImageURLs)
	assert.True(t, got.CreatedAt.Equal(baseTime))

	bySKU, err := reg.Products().FindBySKU(ctx, "fp-100")
	require.NoError(t, err)
	assert.Equal(t, "prod-1", bySKU.ID)

	require.NoError(t, reg.Products().UpdateStock(ctx, "prod-1", 6, baseTime.Add(time.Minute)))
	got, err = reg.Products().FindByID(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 6, got.StockQuantity)

	got.Name = "Flower Pot Special"
	got.Active = false
	require.NoError(t, reg.Products().Update(ctx, got))
	page, err := reg.Products().List(ctx, repositories.ProductListFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = reg.Products().FindByID(ctx, "missing")
	assert.True(t, repositories.IsNotFound(err), "expected not found, got %v", err)
}

func testRollback(t *testing.T, reg repositories.Registry) {
	ctx := context.Background()
	require.NoError(t, reg.Products().Insert(ctx, domain.Product{
		ID: "prod-1", Name: "Sparkler", Price: decimal.NewFromInt(10), StockQuantity: 10, Active: true,
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}))

	sentinel := errors.New("abort placement")
	err := reg.RunInTx(ctx, func(ctx context.Context) error {
		p, err := reg.Products().FindByID(ctx, "prod-1")
		if err != nil {
			return err
		}
		if err := reg.Products().UpdateStock(ctx, p.ID, p.StockQuantity-4, baseTime); err != nil {
			return err
		}
		if err := reg.Accounts().Insert(ctx, domain.Account{
			ID: "acc-1", Username: "ravi", Email: "ravi@example.com", Role: domain.RoleRetailer, Active: true,
			PasswordHash: "x", CreatedAt: baseTime, UpdatedAt: baseTime,
		}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	p, err := reg.Products().FindByID(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 10, p.StockQuantity)
	exists, err := reg.Accounts().ExistsByUsername(ctx, "ravi")
	require.NoError(t, err)
	assert.False(t, exists)
}

func testOrders(t *testing.T, reg repositories.Registry) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		order := domain.Order{
			ID: fmt.Sprintf("ord-%d", i), UserID: "user-1", OrderNumber: fmt.Sprintf("ORD20241020083000%04d", i),
			Status: domain.OrderStatusPending, PaymentStatus: domain.PaymentStatusPending,
			Subtotal: decimal.NewFromInt(100), Tax: decimal.Zero, ShippingCost: decimal.NewFromInt(20),
			Discount: decimal.NewFromInt(5), Total: decimal.NewFromInt(115),
			ShippingAddress: domain.PostalAddress{Line: "12 Car Street", City: "Sivakasi", State: "TN", Pincode: "626123"},
			CreatedAt:       baseTime.Add(time.Duration(i) * time.Minute), UpdatedAt: baseTime,
			Items: []domain.OrderItem{
				{ID: fmt.Sprintf("item-%d-a", i), ProductID: "prod-1", ManufacturerID: "mf-1", ProductName: "Sparkler",
					Quantity: 2, UnitPrice: decimal.NewFromInt(30), TotalPrice: decimal.NewFromInt(60)},
				{ID: fmt.Sprintf("item-%d-b", i), ProductID: "prod-2", ManufacturerID: "mf-2", ProductName: "Rocket",
					Quantity: 1, UnitPrice: decimal.NewFromInt(40), TotalPrice: decimal.NewFromInt(40)},
			},
		}
		require.NoError(t, reg.Orders().Insert(ctx, order))
	}
	require.NoError(t, reg.Orders().Insert(ctx, domain.Order{
		ID: "ord-other", UserID: "user-2", OrderNumber: "ORD202410200830009999", Status: domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending, Total: decimal.NewFromInt(7), CreatedAt: baseTime, UpdatedAt: baseTime,
		Items: []domain.OrderItem{{ID: "item-other", ProductID: "prod-3", ManufacturerID: "mf-3", ProductName: "Bomb",
			Quantity: 1, UnitPrice: decimal.NewFromInt(7), TotalPrice: decimal.NewFromInt(7)}},
	}))

	got, err := reg.Orders().FindByOrderNumber(ctx, "ORD202410200830000001")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", got.ID)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "item-1-a", got.Items[0].ID)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(115)))
	assert.Equal(t, "Sivakasi", got.ShippingAddress.City)

	now := baseTime.Add(time.Hour)
	got.Status = domain.OrderStatusCancelled
	got.CancelledAt = &now
	got.CancellationReason = "changed mind"
	got.Notes = "first\nsecond"
	require.NoError(t, reg.Orders().Update(ctx, got))
	reloaded, err := reg.Orders().FindByID(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, reloaded.Status)
	require.NotNil(t, reloaded.CancelledAt)
	assert.True(t, reloaded.CancelledAt.Equal(now))
	assert.Equal(t, "first\nsecond", reloaded.Notes)

	var ids []string
	token := ""
	for {
		page, err := reg.Orders().List(ctx, repositories.OrderListFilter{
			UserID:     "user-1",
			Pagination: domain.Pagination{PageSize: 2, PageToken: token},
		})
		require.NoError(t, err)
		for _, o := range page.Items {
			ids = append(ids, o.ID)
			assert.Len(t, o.Items, 2)
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	assert.Equal(t, []string{"ord-2", "ord-1", "ord-0"}, ids)

	pending, err := reg.Orders().List(ctx, repositories.OrderListFilter{
		ManufacturerID: "mf-2",
		Status:         []domain.OrderStatus{domain.OrderStatusPending},
	})
	require.NoError(t, err)
	assert.Len(t, pending.Items, 2)

	byUser, err := reg.Orders().Summarize(ctx, repositories.OrderSummaryFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, byUser.CountByStatus[domain.OrderStatusPending])
	assert.Equal(t, 1, byUser.CountByStatus[domain.OrderStatusCancelled])
	assert.True(t, byUser.Amount.Equal(decimal.NewFromInt(230)), "user amount %s", byUser.Amount)

	byManufacturer, err := reg.Orders().Summarize(ctx, repositories.OrderSummaryFilter{ManufacturerID: "mf-1"})
	require.NoError(t, err)
	assert.True(t, byManufacturer.Amount.Equal(decimal.NewFromInt(120)), "manufacturer amount %s", byManufacturer.Amount)

	require.NoError(t, reg.Orders().Delete(ctx, "ord-0"))
	_, err = reg.Orders().FindByID(ctx, "ord-0")
	assert.True(t, repositories.IsNotFound(err))
}

func testManufacturers(t *testing.T, reg repositories.Registry) {
	ctx := context.Background()
	statuses := []domain.ManufacturerStatus{
		domain.ManufacturerStatusPending,
		domain.ManufacturerStatusApproved,
		domain.ManufacturerStatusPending,
	}
	for i, status := range statuses {
		accountID := fmt.Sprintf("acc-%d", i)
		require.NoError(t, reg.Accounts().Insert(ctx, domain.Account{
			ID: accountID, Username: fmt.Sprintf("maker%d", i), Email: fmt.Sprintf("maker%d@example.com", i),
			PasswordHash: "x", Role: domain.RoleManufacturer, Active: true, CreatedAt: baseTime, UpdatedAt: baseTime,
		}))
		require.NoError(t, reg.Manufacturers().Insert(ctx, domain.Manufacturer{
			ID: fmt.Sprintf("mf-%d", i), CompanyName: fmt.Sprintf("Sivakasi Crackers %d", i), ContactPerson: "Ravi Kumar",
			Email: fmt.Sprintf("Maker%d@Example.com", i), Address: domain.PostalAddress{City: "Sivakasi", State: "Tamil Nadu"},
			Status: status, Verified: status.Verified(), AccountID: accountID,
			CreatedAt: baseTime.Add(time.Duration(i) * time.Minute), UpdatedAt: baseTime,
		}))
	}

	byEmail, err := reg.Manufacturers().FindByEmail(ctx, "maker1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "mf-1", byEmail.ID)
	assert.True(t, byEmail.Verified)

	byAccount, err := reg.Manufacturers().FindByAccountID(ctx, "acc-2")
	require.NoError(t, err)
	assert.Equal(t, "mf-2", byAccount.ID)

	page, err := reg.Manufacturers().List(ctx, repositories.ManufacturerListFilter{
		Status: []domain.ManufacturerStatus{domain.ManufacturerStatusPending},
		City:   "sivakasi",
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "mf-2", page.Items[0].ID)

	counts, err := reg.Manufacturers().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.ManufacturerStatusPending])
	assert.Equal(t, 1, counts[domain.ManufacturerStatusApproved])

	verifiedAt := baseTime.Add(2 * time.Hour)
	byAccount.Status = domain.ManufacturerStatusSuspended
	byAccount.Verified = false
	byAccount.VerifiedAt = &verifiedAt
	byAccount.VerifiedBy = "admin-1"
	require.NoError(t, reg.Manufacturers().Update(ctx, byAccount))
	reloaded, err := reg.Manufacturers().FindByID(ctx, "mf-2")
	require.NoError(t, err)
	assert.Equal(t, domain.ManufacturerStatusSuspended, reloaded.Status)
	assert.Equal(t, "admin-1", reloaded.VerifiedBy)

	require.NoError(t, reg.RunInTx(ctx, func(ctx context.Context) error {
		if err := reg.Manufacturers().Delete(ctx, "mf-2"); err != nil {
			return err
		}
		return reg.Accounts().Delete(ctx, "acc-2")
	}))
	_, err = reg.Manufacturers().FindByID(ctx, "mf-2")
	assert.True(t, repositories.IsNotFound(err))
	_, err = reg.Accounts().FindByID(ctx, "acc-2")
	assert.True(t, repositories.IsNotFound(err))

	require.NoError(t, reg.AuditLogs().Append(ctx, domain.AuditLogEntry{
		ID: "audit-1", Actor: "admin-1", Action: "manufacturer.delete", TargetRef: "manufacturers/mf-2",
		Metadata: map[string]any{"accountId": "acc-2"}, OccurredAt: baseTime,
	}))
}

func testCounters(t *testing.T, reg repositories.Registry) {
	ctx := context.Background()
	first, err := reg.Counters().Next(ctx, "orders", 1)
	require.NoError(t, err)
	second, err := reg.Counters().Next(ctx, "orders", 1)
	require.NoError(t, err)
	assert.Equal(t, first+1, second)

	other, err := reg.Counters().Next(ctx, "invoices", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), other)
}
