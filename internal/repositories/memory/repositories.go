package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/repositories"
)

type productRepository struct{ s *Store }

func (r productRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	var out domain.Product
	err := r.s.read(ctx, func() error {
		p, ok := r.s.products[productID]
		if !ok {
			return repositories.NewNotFoundError("products.get", "product %s not found", productID)
		}
		out = cloneProduct(p)
		return nil
	})
	return out, err
}

func (r productRepository) FindBySKU(ctx context.Context, sku string) (domain.Product, error) {
	var out domain.Product
	err := r.s.read(ctx, func() error {
		for _, p := range r.s.products {
			if strings.TrimSpace(sku) != "" && sameFold(p.SKU, sku) {
				out = cloneProduct(p)
				return nil
			}
		}
		return repositories.NewNotFoundError("products.sku", "product with sku %s not found", sku)
	})
	return out, err
}

func (r productRepository) Insert(ctx context.Context, product domain.Product) error {
	return r.s.write(ctx, func() error {
		if _, exists := r.s.products[product.ID]; exists {
			return repositories.NewConflictError("products.insert", "product %s already exists", product.ID)
		}
		if product.SKU != "" {
			for _, p := range r.s.products {
				if sameFold(p.SKU, product.SKU) {
					return repositories.NewConflictError("products.insert", "sku %s already in use", product.SKU)
				}
			}
		}
		r.s.products[product.ID] = cloneProduct(product)
		return nil
	})
}

func (r productRepository) Update(ctx context.Context, product domain.Product) error {
	return r.s.write(ctx, func() error {
		if _, exists := r.s.products[product.ID]; !exists {
			return repositories.NewNotFoundError("products.update", "product %s not found", product.ID)
		}
		if product.SKU != "" {
			for id, p := range r.s.products {
				if id != product.ID && sameFold(p.SKU, product.SKU) {
					return repositories.NewConflictError("products.update", "sku %s already in use", product.SKU)
				}
			}
		}
		r.s.products[product.ID] = cloneProduct(product)
		return nil
	})
}

func (r productRepository) UpdateStock(ctx context.Context, productID string, quantity int, updatedAt time.Time) error {
	return r.s.write(ctx, func() error {
		p, ok := r.s.products[productID]
		if !ok {
			return repositories.NewNotFoundError("products.stock", "product %s not found", productID)
		}
		if quantity < 0 {
			err := repositories.NewStockError(repositories.StockErrorNegativeTarget, productID, p.StockQuantity, p.StockQuantity-quantity)
			err.Op = "products.stock"
			return err
		}
		p.StockQuantity = quantity
		p.UpdatedAt = updatedAt
		r.s.products[productID] = p
		return nil
	})
}

func (r productRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	var rows []domain.Product
	if err := r.s.read(ctx, func() error {
		for _, p := range r.s.products {
			if filter.ManufacturerID != "" && p.ManufacturerID != filter.ManufacturerID {
				continue
			}
			if filter.Category != "" && !sameFold(p.Category, filter.Category) {
				continue
			}
			if filter.ActiveOnly && !p.Active {
				continue
			}
			rows = append(rows, cloneProduct(p))
		}
		return nil
	}); err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	return paginate(rows, func(p domain.Product) (time.Time, string) { return p.CreatedAt, p.ID }, filter.Pagination)
}

type accountRepository struct{ s *Store }

func (r accountRepository) FindByID(ctx context.Context, accountID string) (domain.Account, error) {
	var out domain.Account
	err := r.s.read(ctx, func() error {
		a, ok := r.s.accounts[accountID]
		if !ok {
			return repositories.NewNotFoundError("accounts.get", "account %s not found", accountID)
		}
		out = a
		return nil
	})
	return out, err
}

func (r accountRepository) FindByUsername(ctx context.Context, username string) (domain.Account, error) {
	return r.findBy(ctx, "accounts.username", username, func(a domain.Account) string { return a.Username })
}

func (r accountRepository) FindByEmail(ctx context.Context, email string) (domain.Account, error) {
	return r.findBy(ctx, "accounts.email", email, func(a domain.Account) string { return a.Email })
}

func (r accountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return exists(r.FindByUsername(ctx, username))
}

func (r accountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return exists(r.FindByEmail(ctx, email))
}

func (r accountRepository) findBy(ctx context.Context, op, value string, field func(domain.Account) string) (domain.Account, error) {
	var out domain.Account
	err := r.s.read(ctx, func() error {
		for _, a := range r.s.accounts {
			if sameFold(field(a), value) {
				out = a
				return nil
			}
		}
		return repositories.NewNotFoundError(op, "account %q not found", value)
	})
	return out, err
}

func (r accountRepository) Insert(ctx context.Context, account domain.Account) error {
	return r.s.write(ctx, func() error {
		if _, exists := r.s.accounts[account.ID]; exists {
			return repositories.NewConflictError("accounts.insert", "account %s already exists", account.ID)
		}
		return r.checkUnique("accounts.insert", account)
	})
}

func (r accountRepository) Update(ctx context.Context, account domain.Account) error {
	return r.s.write(ctx, func() error {
		if _, exists := r.s.accounts[account.ID]; !exists {
			return repositories.NewNotFoundError("accounts.update", "account %s not found", account.ID)
		}
		return r.checkUnique("accounts.update", account)
	})
}

// checkUnique enforces folded username and email uniqueness and stores the account. Caller holds the lock.
func (r accountRepository) checkUnique(op string, account domain.Account) error {
	for id, other := range r.s.accounts {
		if id == account.ID {
			continue
		}
		if sameFold(other.Username, account.Username) {
			return repositories.NewConflictError(op, "username %s already in use", account.Username)
		}
		if sameFold(other.Email, account.Email) {
			return repositories.NewConflictError(op, "email %s already in use", account.Email)
		}
	}
	r.s.accounts[account.ID] = account
	return nil
}

func (r accountRepository) Delete(ctx context.Context, accountID string) error {
	return r.s.write(ctx, func() error {
		delete(r.s.accounts, accountID)
		return nil
	})
}

type manufacturerRepository struct{ s *Store }

func (r manufacturerRepository) FindByID(ctx context.Context, manufacturerID string) (domain.Manufacturer, error) {
	var out domain.Manufacturer
	err := r.s.read(ctx, func() error {
		m, ok := r.s.manufacturers[manufacturerID]
		if !ok {
			return repositories.NewNotFoundError("manufacturers.get", "manufacturer %s not found", manufacturerID)
		}
		out = cloneManufacturer(m)
		return nil
	})
	return out, err
}

func (r manufacturerRepository) FindByEmail(ctx context.Context, email string) (domain.Manufacturer, error) {
	return r.findBy(ctx, "manufacturers.email", func(m domain.Manufacturer) bool { return sameFold(m.Email, email) })
}

func (r manufacturerRepository) FindByAccountID(ctx context.Context, accountID string) (domain.Manufacturer, error) {
	return r.findBy(ctx, "manufacturers.account", func(m domain.Manufacturer) bool {
		return accountID != "" && m.AccountID == accountID
	})
}

func (r manufacturerRepository) findBy(ctx context.Context, op string, match func(domain.Manufacturer) bool) (domain.Manufacturer, error) {
	var out domain.Manufacturer
	err := r.s.read(ctx, func() error {
		for _, m := range r.s.manufacturers {
			if match(m) {
				out = cloneManufacturer(m)
				return nil
			}
		}
		return repositories.NewNotFoundError(op, "manufacturer not found")
	})
	return out, err
}

func (r manufacturerRepository) Insert(ctx context.Context, manufacturer domain.Manufacturer) error {
	return r.s.write(ctx, func() error {
		if _, exists := r.s.manufacturers[manufacturer.ID]; exists {
			return repositories.NewConflictError("manufacturers.insert", "manufacturer %s already exists", manufacturer.ID)
		}
		return r.store("manufacturers.insert", manufacturer)
	})
}

func (r manufacturerRepository) Update(ctx context.Context, manufacturer domain.Manufacturer) error {
	return r.s.write(ctx, func() error {
		if _, exists := r.s.manufacturers[manufacturer.ID]; !exists {
			return repositories.NewNotFoundError("manufacturers.update", "manufacturer %s not found", manufacturer.ID)
		}
		return r.store("manufacturers.update", manufacturer)
	})
}

func (r manufacturerRepository) store(op string, manufacturer domain.Manufacturer) error {
	for id, other := range r.s.manufacturers {
		if id != manufacturer.ID && sameFold(other.Email, manufacturer.Email) {
			return repositories.NewConflictError(op, "email %s already in use", manufacturer.Email)
		}
	}
	r.s.manufacturers[manufacturer.ID] = cloneManufacturer(manufacturer)
	return nil
}

func (r manufacturerRepository) Delete(ctx context.Context, manufacturerID string) error {
	return r.s.write(ctx, func() error {
		delete(r.s.manufacturers, manufacturerID)
		return nil
	})
}

func (r manufacturerRepository) List(ctx context.Context, filter repositories.ManufacturerListFilter) (domain.CursorPage[domain.Manufacturer], error) {
	query := strings.ToLower(strings.TrimSpace(filter.CompanyQuery))
	var rows []domain.Manufacturer
	if err := r.s.read(ctx, func() error {
		for _, m := range r.s.manufacturers {
			if len(filter.Status) > 0 && !slices.Contains(filter.Status, m.Status) {
				continue
			}
			if filter.City != "" && !sameFold(m.Address.City, filter.City) {
				continue
			}
			if filter.State != "" && !sameFold(m.Address.State, filter.State) {
				continue
			}
			if query != "" && !strings.Contains(strings.ToLower(m.CompanyName), query) {
				continue
			}
			rows = append(rows, cloneManufacturer(m))
		}
		return nil
	}); err != nil {
		return domain.CursorPage[domain.Manufacturer]{}, err
	}
	return paginate(rows, func(m domain.Manufacturer) (time.Time, string) { return m.CreatedAt, m.ID }, filter.Pagination)
}

func (r manufacturerRepository) CountByStatus(ctx context.Context) (map[domain.ManufacturerStatus]int, error) {
	counts := make(map[domain.ManufacturerStatus]int, len(domain.ManufacturerStatuses))
	err := r.s.read(ctx, func() error {
		for _, m := range r.s.manufacturers {
			counts[m.Status]++
		}
		return nil
	})
	return counts, err
}

type orderRepository struct{ s *Store }

func (r orderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.s.write(ctx, func() error {
		if _, exists := r.s.orders[order.ID]; exists {
			return repositories.NewConflictError("orders.insert", "order %s already exists", order.ID)
		}
		for _, other := range r.s.orders {
			if other.OrderNumber == order.OrderNumber {
				return repositories.NewConflictError("orders.insert", "order number %s already in use", order.OrderNumber)
			}
		}
		r.s.orders[order.ID] = cloneOrder(order)
		return nil
	})
}

func (r orderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.s.write(ctx, func() error {
		if _, exists := r.s.orders[order.ID]; !exists {
			return repositories.NewNotFoundError("orders.update", "order %s not found", order.ID)
		}
		r.s.orders[order.ID] = cloneOrder(order)
		return nil
	})
}

func (r orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var out domain.Order
	err := r.s.read(ctx, func() error {
		o, ok := r.s.orders[orderID]
		if !ok {
			return repositories.NewNotFoundError("orders.get", "order %s not found", orderID)
		}
		out = cloneOrder(o)
		return nil
	})
	return out, err
}

func (r orderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	var out domain.Order
	err := r.s.read(ctx, func() error {
		for _, o := range r.s.orders {
			if o.OrderNumber == orderNumber {
				out = cloneOrder(o)
				return nil
			}
		}
		return repositories.NewNotFoundError("orders.number", "order %s not found", orderNumber)
	})
	return out, err
}

func (r orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	var rows []domain.Order
	if err := r.s.read(ctx, func() error {
		for _, o := range r.s.orders {
			if matchesOrder(o, filter.UserID, filter.ManufacturerID) && (len(filter.Status) == 0 || slices.Contains(filter.Status, o.Status)) {
				rows = append(rows, cloneOrder(o))
			}
		}
		return nil
	}); err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	return paginate(rows, func(o domain.Order) (time.Time, string) { return o.CreatedAt, o.ID }, filter.Pagination)
}

func (r orderRepository) Delete(ctx context.Context, orderID string) error {
	return r.s.write(ctx, func() error {
		if _, ok := r.s.orders[orderID]; !ok {
			return repositories.NewNotFoundError("orders.delete", "order %s not found", orderID)
		}
		delete(r.s.orders, orderID)
		return nil
	})
}

func (r orderRepository) Summarize(ctx context.Context, filter repositories.OrderSummaryFilter) (repositories.OrderSummary, error) {
	summary := repositories.OrderSummary{CountByStatus: make(map[domain.OrderStatus]int), Amount: decimal.Zero}
	err := r.s.read(ctx, func() error {
		for _, o := range r.s.orders {
			if !matchesOrder(o, filter.UserID, filter.ManufacturerID) {
				continue
			}
			summary.CountByStatus[o.Status]++
			if !repositories.CountsTowardsAmount(o.Status) {
				continue
			}
			if filter.ManufacturerID == "" {
				summary.Amount = summary.Amount.Add(o.Total)
				continue
			}
			for _, item := range o.Items {
				if item.ManufacturerID == filter.ManufacturerID {
					summary.Amount = summary.Amount.Add(item.TotalPrice)
				}
			}
		}
		return nil
	})
	return summary, err
}

func matchesOrder(o domain.Order, userID, manufacturerID string) bool {
	if userID != "" && o.UserID != userID {
		return false
	}
	if manufacturerID == "" {
		return true
	}
	return slices.ContainsFunc(o.Items, func(item domain.OrderItem) bool { return item.ManufacturerID == manufacturerID })
}

type counterRepository struct{ s *Store }

func (r counterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "", "counter id is required")
	}
	if step <= 0 {
		step = 1
	}
	var next int64
	err := r.s.write(ctx, func() error {
		next = r.s.counters[id] + step
		r.s.counters[id] = next
		return nil
	})
	return next, err
}

type auditLogRepository struct{ s *Store }

func (r auditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	return r.s.write(ctx, func() error {
		r.s.auditLogs = append(r.s.auditLogs, cloneAuditEntry(entry))
		return nil
	})
}

func exists[T any](_ T, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case repositories.IsNotFound(err):
		return false, nil
	}
	return false, err
}
