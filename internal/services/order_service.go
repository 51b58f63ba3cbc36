package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/textutil"
	"github.com/crackersbazaar/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order or a referenced product could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates the action is not allowed in the order's or product's current state.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrOrderInvalidTransition indicates the status table forbids the requested move.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderInsufficientStock indicates a line asks for more than the product has left.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the backing store could not be reached.
	ErrOrderUnavailable = errors.New("order: repository unavailable")
)

// orderStatusTransitions lists, per status, the statuses it may move to. Non-terminal statuses may move to
// themselves so tracking numbers and notes can be re-recorded. CANCELLED and REFUNDED are terminal.
var orderStatusTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    openStatusTargets,
	domain.OrderStatusConfirmed:  openStatusTargets,
	domain.OrderStatusProcessing: openStatusTargets,
	domain.OrderStatusShipped:    openStatusTargets,
	domain.OrderStatusDelivered:  {domain.OrderStatusRefunded},
	domain.OrderStatusCancelled:  nil,
	domain.OrderStatusRefunded:   nil,
}

var openStatusTargets = []domain.OrderStatus{
	domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusProcessing, domain.OrderStatusShipped,
	domain.OrderStatusDelivered, domain.OrderStatusCancelled, domain.OrderStatusRefunded,
}

var nonCancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusDelivered,
	domain.OrderStatusCancelled,
	domain.OrderStatusRefunded,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Products     repositories.ProductRepository
	Orders       repositories.OrderRepository
	UnitOfWork   repositories.UnitOfWork
	OrderNumbers OrderNumberGenerator
	Tax          TaxPolicy
	ProductCache ProductReader
	Audit        AuditLogService
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	products   repositories.ProductRepository
	orders     repositories.OrderRepository
	unitOfWork repositories.UnitOfWork
	numbers    OrderNumberGenerator
	tax        TaxPolicy
	cache      ProductReader
	audit      AuditLogService
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.OrderNumbers == nil {
		return nil, errors.New("order service: order number generator is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	tax := deps.Tax
	if tax == nil {
		tax = FlatTaxPolicy{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		products:   deps.Products,
		orders:     deps.Orders,
		unitOfWork: unit,
		numbers:    deps.OrderNumbers,
		tax:        tax,
		cache:      deps.ProductCache,
		audit:      deps.Audit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	for i, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return Order{}, fmt.Errorf("%w: items[%d]: product id is required", ErrOrderInvalidInput, i)
		}
		if item.Quantity < 1 {
			return Order{}, fmt.Errorf("%w: items[%d]: quantity must be at least 1", ErrOrderInvalidInput, i)
		}
	}
	if cmd.ShippingCost.IsNegative() {
		return Order{}, fmt.Errorf("%w: shipping cost must not be negative", ErrOrderInvalidInput)
	}
	if cmd.Discount.IsNegative() {
		return Order{}, fmt.Errorf("%w: discount must not be negative", ErrOrderInvalidInput)
	}

	number, err := s.numbers.NextOrderNumber(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("order: generate order number: %w", err)
	}

	productIDs := distinctProductIDs(cmd.Items)
	var placed Order
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		now := s.now()
		catalog, err := s.loadProducts(txCtx, productIDs)
		if err != nil {
			return err
		}

		order := Order{
			ID:              s.newID(),
			UserID:          userID,
			OrderNumber:     number,
			Status:          domain.OrderStatusPending,
			PaymentStatus:   domain.PaymentStatusPending,
			PaymentMethod:   strings.TrimSpace(cmd.PaymentMethod),
			ShippingCost:    cmd.ShippingCost,
			Discount:        cmd.Discount,
			ShippingAddress: cmd.ShippingAddress,
			BillingAddress:  cmd.BillingAddress,
			ContactEmail:    strings.TrimSpace(cmd.ContactEmail),
			ContactPhone:    strings.TrimSpace(cmd.ContactPhone),
			Notes:           textutil.PlainText(cmd.Notes),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		remaining := make(map[string]int, len(catalog))
		for id, product := range catalog {
			remaining[id] = product.StockQuantity
		}

		subtotal := decimal.Zero
		for _, line := range cmd.Items {
			productID := strings.TrimSpace(line.ProductID)
			product, ok := catalog[productID]
			if !ok {
				return fmt.Errorf("%w: product %s not found", ErrOrderNotFound, productID)
			}
			if err := checkOrderable(product, line.Quantity, remaining[productID]); err != nil {
				return err
			}
			remaining[productID] -= line.Quantity

			lineTotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			subtotal = subtotal.Add(lineTotal)
			order.Items = append(order.Items, OrderItem{
				ID:             s.newID(),
				ProductID:      product.ID,
				ManufacturerID: product.ManufacturerID,
				ProductName:    product.Name,
				ProductSKU:     product.SKU,
				ImageURL:       product.PrimaryImage(),
				Quantity:       line.Quantity,
				UnitPrice:      product.Price,
				TotalPrice:     lineTotal,
			})
		}

		order.Subtotal = subtotal
		order.Tax = s.tax.Tax(subtotal)
		order.Total = subtotal.Add(order.ShippingCost).Add(order.Tax).Sub(order.Discount)
		if order.Total.IsNegative() {
			return fmt.Errorf("%w: discount %s exceeds order amount", ErrOrderInvalidInput, order.Discount)
		}

		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		for _, id := range productIDs {
			if err := s.products.UpdateStock(txCtx, id, remaining[id], now); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		placed = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.invalidateProducts(ctx, productIDs)
	s.logger(ctx, "order.placed", map[string]any{
		"orderId":     placed.ID,
		"orderNumber": placed.OrderNumber,
		"userId":      placed.UserID,
		"items":       len(placed.Items),
		"total":       placed.Total.String(),
	})
	return placed, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	for _, status := range filter.Status {
		if !status.Valid() {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(string(cmd.TargetStatus))))
	if !target.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	var (
		updated  Order
		previous domain.OrderStatus
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if cmd.ManufacturerID != "" && !orderHasManufacturer(order, cmd.ManufacturerID) {
			return fmt.Errorf("%w: order %s not found", ErrOrderNotFound, orderID)
		}
		if !canTransition(order.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, target)
		}
		previous = order.Status
		updated, err = s.applyTransition(txCtx, order, target, cmd)
		return err
	})
	if err != nil {
		return Order{}, err
	}

	if target == domain.OrderStatusCancelled {
		s.invalidateProducts(ctx, itemProductIDs(updated))
	}
	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId": updated.ID,
		"from":    string(previous),
		"to":      string(updated.Status),
		"actorId": cmd.ActorID,
	})
	s.recordAudit(ctx, cmd.ActorID, "order.status.transition", updated.ID, map[string]any{
		"from": string(previous),
		"to":   string(updated.Status),
	})
	return updated, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var cancelled Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if cmd.UserID != "" && order.UserID != cmd.UserID {
			return fmt.Errorf("%w: order %s not found", ErrOrderNotFound, orderID)
		}
		if slices.Contains(nonCancellableStatuses, order.Status) {
			return fmt.Errorf("%w: order in status %s cannot be cancelled", ErrOrderInvalidState, order.Status)
		}
		cancelled, err = s.applyTransition(txCtx, order, domain.OrderStatusCancelled, OrderStatusTransitionCommand{
			OrderID: orderID,
			ActorID: cmd.ActorID,
			Reason:  cmd.Reason,
		})
		return err
	})
	if err != nil {
		return Order{}, err
	}

	s.invalidateProducts(ctx, itemProductIDs(cancelled))
	s.logger(ctx, "order.cancelled", map[string]any{
		"orderId": cancelled.ID,
		"actorId": cmd.ActorID,
	})
	return cancelled, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	var deleted Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.Delete(txCtx, orderID); err != nil {
			return s.mapRepositoryError(err)
		}
		deleted = order
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, cmd.ActorID, "order.delete", orderID, map[string]any{
		"orderNumber": deleted.OrderNumber,
		"status":      string(deleted.Status),
	})
	return nil
}

func (s *orderService) OrderStats(ctx context.Context, filter OrderStatsFilter) (OrderStats, error) {
	summary, err := s.orders.Summarize(ctx, repositories.OrderSummaryFilter{
		UserID:         strings.TrimSpace(filter.UserID),
		ManufacturerID: strings.TrimSpace(filter.ManufacturerID),
	})
	if err != nil {
		return OrderStats{}, s.mapRepositoryError(err)
	}
	stats := OrderStats{
		CountByStatus: make(map[OrderStatus]int, len(domain.OrderStatuses)),
		Amount:        summary.Amount,
	}
	for _, status := range domain.OrderStatuses {
		count := summary.CountByStatus[status]
		stats.CountByStatus[status] = count
		stats.TotalOrders += count
	}
	return stats, nil
}

// applyTransition performs all reads before any write so it is safe inside a Firestore transaction.
func (s *orderService) applyTransition(ctx context.Context, order Order, target domain.OrderStatus, cmd OrderStatusTransitionCommand) (Order, error) {
	now := s.now()

	var restock map[string]domain.Product
	if target == domain.OrderStatusCancelled {
		loaded, err := s.loadProducts(ctx, itemProductIDs(order))
		if err != nil {
			return Order{}, err
		}
		restock = loaded
	}

	order.Status = target
	order.UpdatedAt = now
	switch target {
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
		if tracking := strings.TrimSpace(cmd.TrackingNumber); tracking != "" {
			order.TrackingNumber = tracking
		}
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
		if reason := textutil.PlainText(cmd.Reason); reason != "" {
			order.CancellationReason = reason
		}
	}
	order.Notes = textutil.AppendNote(order.Notes, textutil.PlainText(cmd.Notes))

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if restock != nil {
		returned := make(map[string]int, len(restock))
		for _, item := range order.Items {
			returned[item.ProductID] += item.Quantity
		}
		for _, id := range itemProductIDs(order) {
			product, ok := restock[id]
			if !ok {
				s.logger(ctx, "order.restock.skipped", map[string]any{
					"orderId":   order.ID,
					"productId": id,
					"quantity":  returned[id],
				})
				continue
			}
			if err := s.products.UpdateStock(ctx, id, product.StockQuantity+returned[id], now); err != nil {
				return Order{}, s.mapRepositoryError(err)
			}
		}
	}
	return order, nil
}

// loadProducts reads ids in the given (sorted) order so concurrent transactions lock rows consistently.
// Missing products are left out of the result.
func (s *orderService) loadProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	loaded := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		product, err := s.products.FindByID(ctx, id)
		if repositories.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, s.mapRepositoryError(err)
		}
		loaded[id] = product
	}
	return loaded, nil
}

func checkOrderable(product domain.Product, quantity, available int) error {
	if !product.Active {
		return fmt.Errorf("%w: product not available: %s", ErrOrderInvalidState, product.Name)
	}
	if product.MinOrderQuantity > 0 && quantity < product.MinOrderQuantity {
		return fmt.Errorf("%w: %s requires at least %d per order, requested %d",
			ErrOrderInvalidInput, product.Name, product.MinOrderQuantity, quantity)
	}
	if product.MaxOrderQuantity > 0 && quantity > product.MaxOrderQuantity {
		return fmt.Errorf("%w: %s allows at most %d per order, requested %d",
			ErrOrderInvalidInput, product.Name, product.MaxOrderQuantity, quantity)
	}
	if quantity > available {
		stockErr := repositories.NewStockError(repositories.StockErrorInsufficient, product.ID, available, quantity)
		return fmt.Errorf("%w: %s: available %d, requested %d: %w",
			ErrOrderInsufficientStock, product.Name, available, quantity, stockErr)
	}
	return nil
}

func canTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderStatusTransitions[from], to)
}

func orderHasManufacturer(order Order, manufacturerID string) bool {
	return slices.ContainsFunc(order.Items, func(item OrderItem) bool {
		return item.ManufacturerID == manufacturerID
	})
}

func distinctProductIDs(items []PlaceOrderItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, strings.TrimSpace(item.ProductID))
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func itemProductIDs(order Order) []string {
	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (s *orderService) invalidateProducts(ctx context.Context, ids []string) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	s.cache.Invalidate(ctx, ids...)
}

func (s *orderService) recordAudit(ctx context.Context, actor, action, orderID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      actor,
		Action:     action,
		TargetRef:  "orders/" + orderID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	})
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Code == repositories.StockErrorNegativeTarget {
			return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return fmt.Errorf("%w: %v", ErrOrderInsufficientStock, err)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
