package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/idempotency"
	"github.com/crackersbazaar/api/internal/services"
)

func newOrderRouter(orders services.OrderService, manufacturers services.ManufacturerService, idem func(http.Handler) http.Handler) http.Handler {
	h := NewOrderHandlers(testAuthenticator(), orders, manufacturers, idem)
	r := chi.NewRouter()
	r.Route("/orders", h.Routes)
	return r
}

func sampleOrder(id, userID string) services.Order {
	created := time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC)
	return services.Order{
		ID:            id,
		OrderNumber:   "ORD-20241101-000001",
		UserID:        userID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Subtotal:      decimal.RequireFromString("500"),
		Tax:           decimal.RequireFromString("90"),
		Total:         decimal.RequireFromString("590"),
		Items: []services.OrderItem{{
			ProductID:      "prod-1",
			ManufacturerID: "mf-1",
			ProductName:    "Flower Pot",
			Quantity:       5,
			UnitPrice:      decimal.RequireFromString("100"),
			TotalPrice:     decimal.RequireFromString("500"),
		}},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestOrderHandlers_PlaceOrder(t *testing.T) {
	var captured services.PlaceOrderCommand
	orders := &stubOrderService{
		placeFn: func(_ context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder("ord-1", cmd.UserID), nil
		},
	}
	router := newOrderRouter(orders, &stubManufacturerService{}, nil)

	body := `{"items":[{"product_id":"prod-1","quantity":5}],"shipping_address":{"line":"1 Main Rd","city":"Sivakasi"},"shipping_cost":"40.00"}`
	req := withBearer(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)), "retailer")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/orders/ord-1" {
		t.Fatalf("unexpected location %q", loc)
	}
	if captured.UserID != "acct-retailer" {
		t.Fatalf("expected caller id to be used, got %q", captured.UserID)
	}
	if len(captured.Items) != 1 || captured.Items[0].Quantity != 5 {
		t.Fatalf("unexpected items %+v", captured.Items)
	}
	if !captured.ShippingCost.Equal(decimal.RequireFromString("40")) {
		t.Fatalf("expected shipping 40, got %s", captured.ShippingCost)
	}
	order := decodeBody(t, rr)["order"].(map[string]any)
	totals := order["totals"].(map[string]any)
	if totals["total"] != "590.00" || totals["tax"] != "90.00" {
		t.Fatalf("unexpected totals %v", totals)
	}
}

func TestOrderHandlers_PlaceOrderRejections(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		body   string
		err    error
		status int
		code   string
	}{
		{name: "manufacturer cannot order", token: "manufacturer", body: `{"items":[{"product_id":"p","quantity":1}]}`, status: http.StatusForbidden, code: "insufficient_role"},
		{name: "empty items", token: "retailer", body: `{"items":[]}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "zero quantity", token: "retailer", body: `{"items":[{"product_id":"p","quantity":0}]}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "unknown field", token: "retailer", body: `{"items":[{"product_id":"p","quantity":1}],"coupon":"X"}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "insufficient stock", token: "retailer", body: `{"items":[{"product_id":"p","quantity":1}]}`, err: fmt.Errorf("%w: product p has 0 left", services.ErrOrderInsufficientStock), status: http.StatusConflict, code: "insufficient_stock"},
		{name: "unavailable", token: "retailer", body: `{"items":[{"product_id":"p","quantity":1}]}`, err: services.ErrOrderUnavailable, status: http.StatusServiceUnavailable, code: "service_unavailable"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			orders := &stubOrderService{
				placeFn: func(_ context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
					if tc.err != nil {
						return services.Order{}, tc.err
					}
					return sampleOrder("ord-1", cmd.UserID), nil
				},
			}
			router := newOrderRouter(orders, &stubManufacturerService{}, nil)
			req := withBearer(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(tc.body)), tc.token)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assertErrorCode(t, rr, tc.status, tc.code)
		})
	}
}

func TestOrderHandlers_PlaceOrderIdempotentReplay(t *testing.T) {
	var calls int32
	orders := &stubOrderService{
		placeFn: func(_ context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
			n := atomic.AddInt32(&calls, 1)
			return sampleOrder(fmt.Sprintf("ord-%d", n), cmd.UserID), nil
		},
	}
	router := newOrderRouter(orders, &stubManufacturerService{}, idempotency.Middleware(idempotency.NewMemoryStore()))

	body := `{"items":[{"product_id":"prod-1","quantity":2}]}`
	send := func(payload string) *httptest.ResponseRecorder {
		req := withBearer(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(payload)), "retailer")
		req.Header.Set("Idempotency-Key", "checkout-42")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	first := send(body)
	second := send(body)
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected both 201, got %d and %d", first.Code, second.Code)
	}
	if calls != 1 {
		t.Fatalf("expected a single placement, got %d", calls)
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatalf("expected replay header on second response")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical bodies")
	}

	conflict := send(`{"items":[{"product_id":"prod-1","quantity":3}]}`)
	assertErrorCode(t, conflict, http.StatusConflict, "idempotency_key_conflict")
}

func TestOrderHandlers_ListScopesByRole(t *testing.T) {
	var filters []services.OrderListFilter
	orders := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			filters = append(filters, filter)
			return domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder("ord-1", "acct-retailer")}, NextPageToken: "next"}, nil
		},
	}
	manufacturers := &stubManufacturerService{
		byAccountFn: func(_ context.Context, accountID string) (services.Manufacturer, error) {
			if accountID != "acct-maker" {
				return services.Manufacturer{}, services.ErrManufacturerNotFound
			}
			return services.Manufacturer{ID: "mf-1", AccountID: accountID}, nil
		},
	}
	router := newOrderRouter(orders, manufacturers, nil)

	for _, token := range []string{"retailer", "manufacturer", "admin"} {
		req := withBearer(httptest.NewRequest(http.MethodGet, "/orders?status=pending,confirmed&pageSize=10", nil), token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", token, rr.Code, rr.Body.String())
		}
	}

	if len(filters) != 3 {
		t.Fatalf("expected 3 list calls, got %d", len(filters))
	}
	if filters[0].UserID != "acct-retailer" || filters[0].ManufacturerID != "" {
		t.Fatalf("retailer filter not scoped: %+v", filters[0])
	}
	if filters[1].ManufacturerID != "mf-1" || filters[1].UserID != "" {
		t.Fatalf("manufacturer filter not scoped: %+v", filters[1])
	}
	if filters[2].UserID != "" || filters[2].ManufacturerID != "" {
		t.Fatalf("admin filter should be unscoped: %+v", filters[2])
	}
	if len(filters[0].Status) != 2 || filters[0].Status[0] != domain.OrderStatusPending {
		t.Fatalf("unexpected status filter %v", filters[0].Status)
	}
	if filters[0].Pagination.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", filters[0].Pagination.PageSize)
	}
}

func TestOrderHandlers_ListRejectsUnknownStatus(t *testing.T) {
	router := newOrderRouter(&stubOrderService{}, &stubManufacturerService{}, nil)
	req := withBearer(httptest.NewRequest(http.MethodGet, "/orders?status=LOST", nil), "retailer")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assertErrorCode(t, rr, http.StatusBadRequest, "invalid_request")
}

func TestOrderHandlers_GetOrderVisibility(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (services.Order, error) {
			if orderID == "missing" {
				return services.Order{}, services.ErrOrderNotFound
			}
			return sampleOrder(orderID, "acct-retailer"), nil
		},
	}
	manufacturers := &stubManufacturerService{
		byAccountFn: func(context.Context, string) (services.Manufacturer, error) {
			return services.Manufacturer{ID: "mf-1"}, nil
		},
	}
	router := newOrderRouter(orders, manufacturers, nil)

	cases := []struct {
		token  string
		id     string
		status int
	}{
		{token: "retailer", id: "ord-1", status: http.StatusOK},
		{token: "other", id: "ord-1", status: http.StatusNotFound},
		{token: "manufacturer", id: "ord-1", status: http.StatusOK},
		{token: "dashboard", id: "ord-1", status: http.StatusOK},
		{token: "admin", id: "missing", status: http.StatusNotFound},
	}
	for _, tc := range cases {
		req := withBearer(httptest.NewRequest(http.MethodGet, "/orders/"+tc.id, nil), tc.token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != tc.status {
			t.Fatalf("%s reading %s: expected %d, got %d", tc.token, tc.id, tc.status, rr.Code)
		}
	}
}

func TestOrderHandlers_Cancel(t *testing.T) {
	var commands []services.CancelOrderCommand
	orders := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			commands = append(commands, cmd)
			if cmd.OrderID == "shipped" {
				return services.Order{}, fmt.Errorf("%w: order already shipped", services.ErrOrderInvalidState)
			}
			order := sampleOrder(cmd.OrderID, "acct-retailer")
			order.Status = domain.OrderStatusCancelled
			order.CancellationReason = cmd.Reason
			return order, nil
		},
	}
	router := newOrderRouter(orders, &stubManufacturerService{}, nil)

	req := withBearer(httptest.NewRequest(http.MethodPost, "/orders/ord-1:cancel", strings.NewReader(`{"reason":"changed mind"}`)), "retailer")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	order := decodeBody(t, rr)["order"].(map[string]any)
	if order["status"] != string(domain.OrderStatusCancelled) {
		t.Fatalf("expected cancelled status, got %v", order["status"])
	}

	req = withBearer(httptest.NewRequest(http.MethodPost, "/orders/ord-2:cancel", nil), "admin")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin cancel: expected 200, got %d", rr.Code)
	}

	req = withBearer(httptest.NewRequest(http.MethodPost, "/orders/shipped:cancel", nil), "retailer")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assertErrorCode(t, rr, http.StatusConflict, "order_invalid_state")

	if commands[0].UserID != "acct-retailer" || commands[0].Reason != "changed mind" {
		t.Fatalf("unexpected retailer command %+v", commands[0])
	}
	if commands[1].UserID != "" || commands[1].ActorID != "acct-admin" {
		t.Fatalf("admin cancel should skip ownership: %+v", commands[1])
	}
}

func TestOrderHandlers_RequiresAuthentication(t *testing.T) {
	router := newOrderRouter(&stubOrderService{}, &stubManufacturerService{}, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))
	assertErrorCode(t, rr, http.StatusUnauthorized, "unauthenticated")
}
