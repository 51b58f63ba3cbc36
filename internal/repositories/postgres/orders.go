package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/repositories"
)

const orderColumns = `id, user_id, order_number, status, payment_status, payment_method, payment_transaction_id,
	subtotal::text, tax::text, shipping_cost::text, discount::text, total::text, shipping_address, billing_address,
	contact_email, contact_phone, notes, tracking_number, cancellation_reason, shipped_at, delivered_at,
	cancelled_at, created_at, updated_at`

type addressJSON struct {
	Line    string `json:"line,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Pincode string `json:"pincode,omitempty"`
	Country string `json:"country,omitempty"`
}

func toAddressJSON(a domain.PostalAddress) addressJSON {
	return addressJSON{Line: a.Line, City: a.City, State: a.State, Pincode: a.Pincode, Country: a.Country}
}

func (a addressJSON) toDomain() domain.PostalAddress {
	return domain.PostalAddress{Line: a.Line, City: a.City, State: a.State, Pincode: a.Pincode, Country: a.Country}
}

type orderRepository struct{ r *Registry }

// Insert writes the order row and its items in one batch.
func (o orderRepository) Insert(ctx context.Context, order domain.Order) error {
	q, _ := o.r.conn(ctx)
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO orders (id, user_id, order_number, status, payment_status, payment_method,
		payment_transaction_id, subtotal, tax, shipping_cost, discount, total, shipping_address, billing_address,
		contact_email, contact_phone, notes, tracking_number, cancellation_reason, shipped_at, delivered_at,
		cancelled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12::numeric,
		$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		order.ID, order.UserID, order.OrderNumber, string(order.Status), order.PaymentStatus, order.PaymentMethod,
		order.PaymentTransactionID, order.Subtotal.String(), order.Tax.String(), order.ShippingCost.String(),
		order.Discount.String(), order.Total.String(), toAddressJSON(order.ShippingAddress),
		toAddressJSON(order.BillingAddress), order.ContactEmail, order.ContactPhone, order.Notes,
		order.TrackingNumber, order.CancellationReason, order.ShippedAt, order.DeliveredAt, order.CancelledAt,
		order.CreatedAt.UTC(), order.UpdatedAt.UTC())
	for i, item := range order.Items {
		batch.Queue(`INSERT INTO order_items (id, order_id, position, product_id, manufacturer_id, product_name,
			product_sku, image_url, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11::numeric)`,
			item.ID, order.ID, i, item.ProductID, item.ManufacturerID, item.ProductName, item.ProductSKU,
			item.ImageURL, item.Quantity, item.UnitPrice.String(), item.TotalPrice.String())
	}
	results := q.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return wrapError("orders.insert", err)
		}
	}
	return wrapError("orders.insert", results.Close())
}

// Update writes the mutable order fields. Items are immutable after placement.
func (o orderRepository) Update(ctx context.Context, order domain.Order) error {
	q, _ := o.r.conn(ctx)
	tag, err := q.Exec(ctx, `UPDATE orders SET status = $2, payment_status = $3, payment_method = $4,
		payment_transaction_id = $5, notes = $6, tracking_number = $7, cancellation_reason = $8, shipped_at = $9,
		delivered_at = $10, cancelled_at = $11, updated_at = $12 WHERE id = $1`,
		order.ID, string(order.Status), order.PaymentStatus, order.PaymentMethod, order.PaymentTransactionID,
		order.Notes, order.TrackingNumber, order.CancellationReason, order.ShippedAt, order.DeliveredAt,
		order.CancelledAt, order.UpdatedAt.UTC())
	if err != nil {
		return wrapError("orders.update", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFoundError("orders.update", "order %s not found", order.ID)
	}
	return nil
}

func (o orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	return o.findOne(ctx, "orders.get", "id = $1", orderID)
}

func (o orderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	return o.findOne(ctx, "orders.number", "order_number = $1", orderNumber)
}

func (o orderRepository) findOne(ctx context.Context, op, predicate string, arg any) (domain.Order, error) {
	q, _ := o.r.conn(ctx)
	order, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+predicate+o.r.lockClause(ctx), arg))
	if err != nil {
		return domain.Order{}, wrapError(op, err)
	}
	orders := []domain.Order{order}
	if err := o.attachItems(ctx, q, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (o orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	var w where
	scopeOrders(&w, filter.UserID, filter.ManufacturerID)
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		w.add("status = ANY(?)", statuses)
	}
	suffix, size, err := keyset(&w, "", filter.Pagination)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	q, _ := o.r.conn(ctx)
	rows, err := q.Query(ctx, `SELECT `+orderColumns+` FROM orders`+w.String()+suffix, w.args...)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, wrapError("orders.list", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, wrapError("orders.list", err)
	}
	page := trimPage(orders, size, func(o domain.Order) (time.Time, string) { return o.CreatedAt, o.ID })
	if err := o.attachItems(ctx, q, page.Items); err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	return page, nil
}

func (o orderRepository) Delete(ctx context.Context, orderID string) error {
	q, _ := o.r.conn(ctx)
	tag, err := q.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return wrapError("orders.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFoundError("orders.delete", "order %s not found", orderID)
	}
	return nil
}

func (o orderRepository) Summarize(ctx context.Context, filter repositories.OrderSummaryFilter) (repositories.OrderSummary, error) {
	q, _ := o.r.conn(ctx)
	summary := repositories.OrderSummary{CountByStatus: make(map[domain.OrderStatus]int), Amount: decimal.Zero}

	var w where
	scopeOrders(&w, filter.UserID, filter.ManufacturerID)
	rows, err := q.Query(ctx, `SELECT status, COUNT(*) FROM orders`+w.String()+` GROUP BY status`, w.args...)
	if err != nil {
		return summary, wrapError("orders.summary", err)
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return summary, wrapError("orders.summary", err)
		}
		summary.CountByStatus[domain.OrderStatus(status)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return summary, wrapError("orders.summary", err)
	}

	excluded := []string{string(domain.OrderStatusCancelled), string(domain.OrderStatusRefunded)}
	var amount string
	if filter.ManufacturerID == "" {
		var aw where
		if filter.UserID != "" {
			aw.add("user_id = ?", filter.UserID)
		}
		aw.add("NOT (status = ANY(?))", excluded)
		err = q.QueryRow(ctx, `SELECT COALESCE(SUM(total), 0)::text FROM orders`+aw.String(), aw.args...).Scan(&amount)
	} else {
		var aw where
		aw.add("oi.manufacturer_id = ?", filter.ManufacturerID)
		if filter.UserID != "" {
			aw.add("o.user_id = ?", filter.UserID)
		}
		aw.add("NOT (o.status = ANY(?))", excluded)
		err = q.QueryRow(ctx, `SELECT COALESCE(SUM(oi.total_price), 0)::text FROM order_items oi
			JOIN orders o ON o.id = oi.order_id`+aw.String(), aw.args...).Scan(&amount)
	}
	if err != nil {
		return summary, wrapError("orders.summary", err)
	}
	if summary.Amount, err = parseDecimal(amount); err != nil {
		return summary, fmt.Errorf("orders.summary: decode amount: %w", err)
	}
	return summary, nil
}

func scopeOrders(w *where, userID, manufacturerID string) {
	if userID != "" {
		w.add("user_id = ?", userID)
	}
	if manufacturerID != "" {
		w.add("EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = orders.id AND oi.manufacturer_id = ?)", manufacturerID)
	}
}

// attachItems loads the items of every order in one query.
func (o orderRepository) attachItems(ctx context.Context, q querier, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
		index[order.ID] = i
	}
	rows, err := q.Query(ctx, `SELECT order_id, id, product_id, manufacturer_id, product_name, product_sku, image_url,
		quantity, unit_price::text, total_price::text FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`, ids)
	if err != nil {
		return wrapError("orders.items", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID          string
			item             domain.OrderItem
			unitPrice, total string
		)
		if err := rows.Scan(&orderID, &item.ID, &item.ProductID, &item.ManufacturerID, &item.ProductName,
			&item.ProductSKU, &item.ImageURL, &item.Quantity, &unitPrice, &total); err != nil {
			return wrapError("orders.items", err)
		}
		if item.UnitPrice, err = parseDecimal(unitPrice); err != nil {
			return fmt.Errorf("orders.items: decode unit price: %w", err)
		}
		if item.TotalPrice, err = parseDecimal(total); err != nil {
			return fmt.Errorf("orders.items: decode total price: %w", err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return wrapError("orders.items", rows.Err())
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		order                                    domain.Order
		status                                   string
		subtotal, tax, shipping, discount, total string
		shippingAddress, billingAddress          addressJSON
	)
	err := row.Scan(&order.ID, &order.UserID, &order.OrderNumber, &status, &order.PaymentStatus, &order.PaymentMethod,
		&order.PaymentTransactionID, &subtotal, &tax, &shipping, &discount, &total, &shippingAddress, &billingAddress,
		&order.ContactEmail, &order.ContactPhone, &order.Notes, &order.TrackingNumber, &order.CancellationReason,
		&order.ShippedAt, &order.DeliveredAt, &order.CancelledAt, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.ShippingAddress = shippingAddress.toDomain()
	order.BillingAddress = billingAddress.toDomain()
	for _, field := range []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&order.Subtotal, subtotal},
		{&order.Tax, tax},
		{&order.ShippingCost, shipping},
		{&order.Discount, discount},
		{&order.Total, total},
	} {
		if *field.dst, err = parseDecimal(field.raw); err != nil {
			return domain.Order{}, fmt.Errorf("decode amount for order %s: %w", order.ID, err)
		}
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}
