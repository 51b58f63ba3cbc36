package firestore

import (
	"context"
	"errors"
	"slices"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	"github.com/crackersbazaar/api/internal/domain"
	pfirestore "github.com/crackersbazaar/api/internal/platform/firestore"
	"github.com/crackersbazaar/api/internal/repositories"
)

const ordersCollection = "orders"

type orderItemDocument struct {
	ID             string `firestore:"id"`
	ProductID      string `firestore:"productId"`
	ManufacturerID string `firestore:"manufacturerId"`
	ProductName    string `firestore:"productName"`
	ProductSKU     string `firestore:"productSku,omitempty"`
	ImageURL       string `firestore:"imageUrl,omitempty"`
	Quantity       int    `firestore:"quantity"`
	UnitPrice      string `firestore:"unitPrice"`
	TotalPrice     string `firestore:"totalPrice"`
}

type orderDocument struct {
	UserID               string              `firestore:"userId"`
	OrderNumber          string              `firestore:"orderNumber"`
	Status               string              `firestore:"status"`
	PaymentStatus        string              `firestore:"paymentStatus"`
	PaymentMethod        string              `firestore:"paymentMethod,omitempty"`
	PaymentTransactionID string              `firestore:"paymentTransactionId,omitempty"`
	Subtotal             string              `firestore:"subtotal"`
	Tax                  string              `firestore:"tax"`
	ShippingCost         string              `firestore:"shippingCost"`
	Discount             string              `firestore:"discount"`
	Total                string              `firestore:"total"`
	ShippingAddress      addressDocument     `firestore:"shippingAddress"`
	BillingAddress       addressDocument     `firestore:"billingAddress"`
	ContactEmail         string              `firestore:"contactEmail,omitempty"`
	ContactPhone         string              `firestore:"contactPhone,omitempty"`
	Notes                string              `firestore:"notes,omitempty"`
	TrackingNumber       string              `firestore:"trackingNumber,omitempty"`
	CancellationReason   string              `firestore:"cancellationReason,omitempty"`
	Items                []orderItemDocument `firestore:"items"`
	ManufacturerIDs      []string            `firestore:"manufacturerIds"`
	ShippedAt            *time.Time          `firestore:"shippedAt,omitempty"`
	DeliveredAt          *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt          *time.Time          `firestore:"cancelledAt,omitempty"`
	CreatedAt            time.Time           `firestore:"createdAt"`
	UpdatedAt            time.Time           `firestore:"updatedAt"`
}

// OrderRepository stores orders with their items embedded in the order document, so an order and its
// items are always written and deleted together.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{base: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.base.Create(ctx, order.ID, newOrderDocument(order))
}

// Update replaces the order document. Callers in a transaction must have read it first.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	doc := newOrderDocument(order)
	return r.base.Update(ctx, order.ID, []firestore.Update{
		{Path: "status", Value: doc.Status},
		{Path: "paymentStatus", Value: doc.PaymentStatus},
		{Path: "paymentMethod", Value: doc.PaymentMethod},
		{Path: "paymentTransactionId", Value: doc.PaymentTransactionID},
		{Path: "notes", Value: doc.Notes},
		{Path: "trackingNumber", Value: doc.TrackingNumber},
		{Path: "cancellationReason", Value: doc.CancellationReason},
		{Path: "shippedAt", Value: doc.ShippedAt},
		{Path: "deliveredAt", Value: doc.DeliveredAt},
		{Path: "cancelledAt", Value: doc.CancelledAt},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(orderID), nil
}

func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	doc, id, err := r.base.First(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", orderNumber)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(id), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return pageQuery[orderDocument, domain.Order]{
		base: r.base,
		filter: func(q firestore.Query) firestore.Query {
			q = scopeOrders(q, filter.UserID, filter.ManufacturerID)
			switch len(filter.Status) {
			case 0:
			case 1:
				q = q.Where("status", "==", string(filter.Status[0]))
			default:
				statuses := make([]string, 0, len(filter.Status))
				for _, s := range filter.Status {
					statuses = append(statuses, string(s))
				}
				q = q.Where("status", "in", statuses)
			}
			return q
		},
		decode: func(id string, doc orderDocument) domain.Order { return doc.toDomain(id) },
		key:    func(o domain.Order) (time.Time, string) { return o.CreatedAt, o.ID },
	}.run(ctx, filter.Pagination)
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if _, err := r.base.Get(ctx, orderID); err != nil {
		return err
	}
	return r.base.Delete(ctx, orderID)
}

// Summarize scans the scoped orders and aggregates them in process.
func (r *OrderRepository) Summarize(ctx context.Context, filter repositories.OrderSummaryFilter) (repositories.OrderSummary, error) {
	docs, _, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return scopeOrders(q, filter.UserID, filter.ManufacturerID)
	})
	if err != nil {
		return repositories.OrderSummary{}, err
	}
	summary := repositories.OrderSummary{CountByStatus: make(map[domain.OrderStatus]int), Amount: decimal.Zero}
	for _, doc := range docs {
		status := domain.OrderStatus(doc.Status)
		summary.CountByStatus[status]++
		if !repositories.CountsTowardsAmount(status) {
			continue
		}
		if filter.ManufacturerID == "" {
			summary.Amount = summary.Amount.Add(parseDecimal(doc.Total))
			continue
		}
		for _, item := range doc.Items {
			if item.ManufacturerID == filter.ManufacturerID {
				summary.Amount = summary.Amount.Add(parseDecimal(item.TotalPrice))
			}
		}
	}
	return summary, nil
}

func scopeOrders(q firestore.Query, userID, manufacturerID string) firestore.Query {
	if userID != "" {
		q = q.Where("userId", "==", userID)
	}
	if manufacturerID != "" {
		q = q.Where("manufacturerIds", "array-contains", manufacturerID)
	}
	return q
}

func newOrderDocument(o domain.Order) orderDocument {
	doc := orderDocument{
		UserID:               o.UserID,
		OrderNumber:          o.OrderNumber,
		Status:               string(o.Status),
		PaymentStatus:        o.PaymentStatus,
		PaymentMethod:        o.PaymentMethod,
		PaymentTransactionID: o.PaymentTransactionID,
		Subtotal:             o.Subtotal.String(),
		Tax:                  o.Tax.String(),
		ShippingCost:         o.ShippingCost.String(),
		Discount:             o.Discount.String(),
		Total:                o.Total.String(),
		ShippingAddress:      toAddressDocument(o.ShippingAddress),
		BillingAddress:       toAddressDocument(o.BillingAddress),
		ContactEmail:         o.ContactEmail,
		ContactPhone:         o.ContactPhone,
		Notes:                o.Notes,
		TrackingNumber:       o.TrackingNumber,
		CancellationReason:   o.CancellationReason,
		Items:                make([]orderItemDocument, 0, len(o.Items)),
		ManufacturerIDs:      []string{},
		ShippedAt:            utcPtr(o.ShippedAt),
		DeliveredAt:          utcPtr(o.DeliveredAt),
		CancelledAt:          utcPtr(o.CancelledAt),
		CreatedAt:            o.CreatedAt.UTC(),
		UpdatedAt:            o.UpdatedAt.UTC(),
	}
	for _, item := range o.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ManufacturerID: item.ManufacturerID,
			ProductName:    item.ProductName,
			ProductSKU:     item.ProductSKU,
			ImageURL:       item.ImageURL,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice.String(),
			TotalPrice:     item.TotalPrice.String(),
		})
		if item.ManufacturerID != "" && !slices.Contains(doc.ManufacturerIDs, item.ManufacturerID) {
			doc.ManufacturerIDs = append(doc.ManufacturerIDs, item.ManufacturerID)
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:                   id,
		UserID:               d.UserID,
		OrderNumber:          d.OrderNumber,
		Status:               domain.OrderStatus(d.Status),
		PaymentStatus:        d.PaymentStatus,
		PaymentMethod:        d.PaymentMethod,
		PaymentTransactionID: d.PaymentTransactionID,
		Subtotal:             parseDecimal(d.Subtotal),
		Tax:                  parseDecimal(d.Tax),
		ShippingCost:         parseDecimal(d.ShippingCost),
		Discount:             parseDecimal(d.Discount),
		Total:                parseDecimal(d.Total),
		ShippingAddress:      d.ShippingAddress.toDomain(),
		BillingAddress:       d.BillingAddress.toDomain(),
		ContactEmail:         d.ContactEmail,
		ContactPhone:         d.ContactPhone,
		Notes:                d.Notes,
		TrackingNumber:       d.TrackingNumber,
		CancellationReason:   d.CancellationReason,
		Items:                make([]domain.OrderItem, 0, len(d.Items)),
		ShippedAt:            utcPtr(d.ShippedAt),
		DeliveredAt:          utcPtr(d.DeliveredAt),
		CancelledAt:          utcPtr(d.CancelledAt),
		CreatedAt:            d.CreatedAt.UTC(),
		UpdatedAt:            d.UpdatedAt.UTC(),
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ManufacturerID: item.ManufacturerID,
			ProductName:    item.ProductName,
			ProductSKU:     item.ProductSKU,
			ImageURL:       item.ImageURL,
			Quantity:       item.Quantity,
			UnitPrice:      parseDecimal(item.UnitPrice),
			TotalPrice:     parseDecimal(item.TotalPrice),
		})
	}
	return order
}

func toAddressDocument(a domain.PostalAddress) addressDocument {
	return addressDocument{Line: a.Line, City: a.City, State: a.State, Pincode: a.Pincode, Country: a.Country}
}

func (d addressDocument) toDomain() domain.PostalAddress {
	return domain.PostalAddress{Line: d.Line, City: d.City, State: d.State, Pincode: d.Pincode, Country: d.Country}
}
