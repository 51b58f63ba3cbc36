package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/auth"
	"github.com/crackersbazaar/api/internal/platform/httpx"
	"github.com/crackersbazaar/api/internal/services"
)

// OrderHandlers exposes order placement and order reads for authenticated callers.
type OrderHandlers struct {
	authn         *auth.Authenticator
	orders        services.OrderService
	manufacturers services.ManufacturerService
	idempotency   func(http.Handler) http.Handler
}

// NewOrderHandlers constructs OrderHandlers. idempotency wraps POST /orders and may be nil.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, manufacturers services.ManufacturerService, idempotency func(http.Handler) http.Handler) *OrderHandlers {
	return &OrderHandlers{
		authn:         authn,
		orders:        orders,
		manufacturers: manufacturers,
		idempotency:   idempotency,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	place := http.Handler(http.HandlerFunc(h.placeOrder))
	if h.idempotency != nil {
		place = h.idempotency(place)
	}
	r.Method(http.MethodPost, "/", place)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

type placeOrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type placeOrderRequest struct {
	Items           []placeOrderItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress addressPayload          `json:"shipping_address"`
	BillingAddress  addressPayload          `json:"billing_address"`
	ContactEmail    string                  `json:"contact_email" validate:"omitempty,email"`
	ContactPhone    string                  `json:"contact_phone" validate:"omitempty,max=20"`
	ShippingCost    decimal.Decimal         `json:"shipping_cost"`
	Discount        decimal.Decimal         `json:"discount"`
	PaymentMethod   string                  `json:"payment_method" validate:"omitempty,max=40"`
	Notes           string                  `json:"notes" validate:"max=2000"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if identity.Role != domain.RoleRetailer {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "only retailers can place orders", http.StatusForbidden))
		return
	}

	var req placeOrderRequest
	if err := decodeRequest(r, &req); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	cmd := services.PlaceOrderCommand{
		UserID:          identity.UID,
		Items:           make([]services.PlaceOrderItem, 0, len(req.Items)),
		ShippingAddress: req.ShippingAddress.toDomain(),
		BillingAddress:  req.BillingAddress.toDomain(),
		ContactEmail:    req.ContactEmail,
		ContactPhone:    req.ContactPhone,
		ShippingCost:    req.ShippingCost,
		Discount:        req.Discount,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.PlaceOrderItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := h.orders.PlaceOrder(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

// listOrders scopes the listing by role: retailers see their own orders, manufacturers see orders
// containing their products, admins see everything.
func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	page, ok := pageFromRequest(ctx, w, r)
	if !ok {
		return
	}

	filter := services.OrderListFilter{Pagination: page}
	for _, raw := range splitQueryValues(r.URL.Query()["status"]) {
		status := domain.OrderStatus(raw)
		if !status.Valid() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown order status "+raw, http.StatusBadRequest))
			return
		}
		filter.Status = append(filter.Status, status)
	}
	switch {
	case identity.IsAdministrative():
	case identity.Role == domain.RoleManufacturer:
		manufacturer, err := h.manufacturers.GetByAccount(ctx, identity.UID)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		filter.ManufacturerID = manufacturer.ID
	default:
		filter.UserID = identity.UID
	}

	result, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]orderSummaryPayload, 0, len(result.Items))
	for _, order := range result.Items {
		items = append(items, buildOrderSummary(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Items: items, NextPageToken: result.NextPageToken})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if !h.canView(r, identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) canView(r *http.Request, identity *auth.Identity, order services.Order) bool {
	switch {
	case identity.IsAdministrative():
		return true
	case identity.Role == domain.RoleManufacturer:
		manufacturer, err := h.manufacturers.GetByAccount(r.Context(), identity.UID)
		if err != nil {
			return false
		}
		for _, item := range order.Items {
			if item.ManufacturerID == manufacturer.ID {
				return true
			}
		}
		return false
	}
	return order.UserID == identity.UID
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if err := decodeRequest(r, &req); err != nil {
			writeServiceError(ctx, w, err)
			return
		}
	}
	cmd := services.CancelOrderCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		ActorID: identity.UID,
		Reason:  req.Reason,
	}
	if !identity.IsAdministrative() {
		cmd.UserID = identity.UID
	}
	order, err := h.orders.Cancel(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	Total       string `json:"total"`
	ItemCount   int    `json:"item_count"`
	CreatedAt   string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID                 string             `json:"id"`
	OrderNumber        string             `json:"order_number"`
	UserID             string             `json:"user_id"`
	Status             string             `json:"status"`
	PaymentStatus      string             `json:"payment_status"`
	PaymentMethod      string             `json:"payment_method,omitempty"`
	Totals             orderTotalsPayload `json:"totals"`
	Items              []orderItemPayload `json:"items"`
	ShippingAddress    addressPayload     `json:"shipping_address"`
	BillingAddress     addressPayload     `json:"billing_address"`
	ContactEmail       string             `json:"contact_email,omitempty"`
	ContactPhone       string             `json:"contact_phone,omitempty"`
	Notes              string             `json:"notes,omitempty"`
	TrackingNumber     string             `json:"tracking_number,omitempty"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
	CreatedAt          string             `json:"created_at"`
	UpdatedAt          string             `json:"updated_at,omitempty"`
	ShippedAt          string             `json:"shipped_at,omitempty"`
	DeliveredAt        string             `json:"delivered_at,omitempty"`
	CancelledAt        string             `json:"cancelled_at,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Shipping string `json:"shipping"`
	Discount string `json:"discount"`
	Total    string `json:"total"`
}

type orderItemPayload struct {
	ProductID      string `json:"product_id"`
	ManufacturerID string `json:"manufacturer_id"`
	Name           string `json:"name"`
	SKU            string `json:"sku,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
	Total          string `json:"total"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Total:       money(order.Total),
		ItemCount:   len(order.Items),
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		Totals: orderTotalsPayload{
			Subtotal: money(order.Subtotal),
			Tax:      money(order.Tax),
			Shipping: money(order.ShippingCost),
			Discount: money(order.Discount),
			Total:    money(order.Total),
		},
		Items:              make([]orderItemPayload, 0, len(order.Items)),
		ShippingAddress:    buildAddressPayload(order.ShippingAddress),
		BillingAddress:     buildAddressPayload(order.BillingAddress),
		ContactEmail:       order.ContactEmail,
		ContactPhone:       order.ContactPhone,
		Notes:              order.Notes,
		TrackingNumber:     order.TrackingNumber,
		CancellationReason: order.CancellationReason,
		CreatedAt:          formatTime(order.CreatedAt),
		UpdatedAt:          formatTime(order.UpdatedAt),
		ShippedAt:          formatTimePtr(order.ShippedAt),
		DeliveredAt:        formatTimePtr(order.DeliveredAt),
		CancelledAt:        formatTimePtr(order.CancelledAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID:      item.ProductID,
			ManufacturerID: item.ManufacturerID,
			Name:           item.ProductName,
			SKU:            item.ProductSKU,
			ImageURL:       item.ImageURL,
			Quantity:       item.Quantity,
			UnitPrice:      money(item.UnitPrice),
			Total:          money(item.TotalPrice),
		})
	}
	return payload
}
