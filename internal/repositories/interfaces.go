package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/crackersbazaar/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Products() ProductRepository
	Accounts() AccountRepository
	Manufacturers() ManufacturerRepository
	Orders() OrderRepository
	Counters() CounterRepository
	AuditLogs() AuditLogRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary. Repository calls made
// with the context handed to fn take part in the same transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists catalog products and their stock counters.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindBySKU(ctx context.Context, sku string) (domain.Product, error)
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	// UpdateStock writes an absolute stock level. Callers inside a transaction must have read the product
	// through FindByID in the same transaction.
	UpdateStock(ctx context.Context, productID string, quantity int, updatedAt time.Time) error
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	ManufacturerID string
	Category       string
	ActiveOnly     bool
	Pagination     domain.Pagination
}

// AccountRepository persists login credentials.
type AccountRepository interface {
	FindByID(ctx context.Context, accountID string) (domain.Account, error)
	FindByUsername(ctx context.Context, username string) (domain.Account, error)
	FindByEmail(ctx context.Context, email string) (domain.Account, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, account domain.Account) error
	Update(ctx context.Context, account domain.Account) error
	Delete(ctx context.Context, accountID string) error
}

// ManufacturerRepository persists manufacturer profiles.
type ManufacturerRepository interface {
	FindByID(ctx context.Context, manufacturerID string) (domain.Manufacturer, error)
	FindByEmail(ctx context.Context, email string) (domain.Manufacturer, error)
	FindByAccountID(ctx context.Context, accountID string) (domain.Manufacturer, error)
	Insert(ctx context.Context, manufacturer domain.Manufacturer) error
	Update(ctx context.Context, manufacturer domain.Manufacturer) error
	Delete(ctx context.Context, manufacturerID string) error
	List(ctx context.Context, filter ManufacturerListFilter) (domain.CursorPage[domain.Manufacturer], error)
	CountByStatus(ctx context.Context) (map[domain.ManufacturerStatus]int, error)
}

// ManufacturerListFilter narrows manufacturer listings.
type ManufacturerListFilter struct {
	Status       []domain.ManufacturerStatus
	City         string
	State        string
	CompanyQuery string
	Pagination   domain.Pagination
}

// OrderRepository persists the order aggregate. Items are stored and removed together with their order.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Delete(ctx context.Context, orderID string) error
	Summarize(ctx context.Context, filter OrderSummaryFilter) (OrderSummary, error)
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID         string
	ManufacturerID string
	Status         []domain.OrderStatus
	Pagination     domain.Pagination
}

// OrderSummaryFilter scopes aggregate order figures. Empty fields mean "all".
type OrderSummaryFilter struct {
	UserID         string
	ManufacturerID string
}

// OrderSummary aggregates order counts and amounts. Amounts exclude cancelled and refunded orders.
// When the filter names a manufacturer, Amount only counts that manufacturer's items.
type OrderSummary struct {
	CountByStatus map[domain.OrderStatus]int
	Amount        decimal.Decimal
}

// CountsTowardsAmount reports whether orders in status contribute to OrderSummary.Amount.
func CountsTowardsAmount(status domain.OrderStatus) bool {
	return status != domain.OrderStatusCancelled && status != domain.OrderStatusRefunded
}

// CounterRepository provides monotonic sequences.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// AuditLogRepository appends audit entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
}
