package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/auth"
	"github.com/crackersbazaar/api/internal/services"
)

var errUnexpectedCall = errors.New("unexpected call")

type stubOrderService struct {
	placeFn      func(context.Context, services.PlaceOrderCommand) (services.Order, error)
	getFn        func(context.Context, string) (services.Order, error)
	listFn       func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFn func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error)
	cancelFn     func(context.Context, services.CancelOrderCommand) (services.Order, error)
	deleteFn     func(context.Context, services.DeleteOrderCommand) error
	statsFn      func(context.Context, services.OrderStatsFilter) (services.OrderStats, error)
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
	if s.placeFn == nil {
		return services.Order{}, errUnexpectedCall
	}
	return s.placeFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn == nil {
		return services.Order{}, errUnexpectedCall
	}
	return s.getFn(ctx, orderID)
}

func (s *stubOrderService) GetOrderByNumber(context.Context, string) (services.Order, error) {
	return services.Order{}, errUnexpectedCall
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[services.Order]{}, errUnexpectedCall
	}
	return s.listFn(ctx, filter)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFn == nil {
		return services.Order{}, errUnexpectedCall
	}
	return s.transitionFn(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn == nil {
		return services.Order{}, errUnexpectedCall
	}
	return s.cancelFn(ctx, cmd)
}

func (s *stubOrderService) DeleteOrder(ctx context.Context, cmd services.DeleteOrderCommand) error {
	if s.deleteFn == nil {
		return errUnexpectedCall
	}
	return s.deleteFn(ctx, cmd)
}

func (s *stubOrderService) OrderStats(ctx context.Context, filter services.OrderStatsFilter) (services.OrderStats, error) {
	if s.statsFn == nil {
		return services.OrderStats{}, errUnexpectedCall
	}
	return s.statsFn(ctx, filter)
}

type stubManufacturerService struct {
	registerFn  func(context.Context, services.RegisterManufacturerCommand) (services.Manufacturer, error)
	verifyFn    func(context.Context, services.VerifyManufacturerCommand) (services.Manufacturer, error)
	deleteFn    func(context.Context, services.DeleteManufacturerCommand) error
	resetFn     func(context.Context, services.ResetPasswordCommand) (services.TemporaryCredential, error)
	getFn       func(context.Context, string) (services.Manufacturer, error)
	byAccountFn func(context.Context, string) (services.Manufacturer, error)
	listFn      func(context.Context, services.ManufacturerListFilter) (domain.CursorPage[services.Manufacturer], error)
	statsFn     func(context.Context) (services.ManufacturerStats, error)
}

func (s *stubManufacturerService) Register(ctx context.Context, cmd services.RegisterManufacturerCommand) (services.Manufacturer, error) {
	if s.registerFn == nil {
		return services.Manufacturer{}, errUnexpectedCall
	}
	return s.registerFn(ctx, cmd)
}

func (s *stubManufacturerService) Verify(ctx context.Context, cmd services.VerifyManufacturerCommand) (services.Manufacturer, error) {
	if s.verifyFn == nil {
		return services.Manufacturer{}, errUnexpectedCall
	}
	return s.verifyFn(ctx, cmd)
}

func (s *stubManufacturerService) Delete(ctx context.Context, cmd services.DeleteManufacturerCommand) error {
	if s.deleteFn == nil {
		return errUnexpectedCall
	}
	return s.deleteFn(ctx, cmd)
}

func (s *stubManufacturerService) ResetPassword(ctx context.Context, cmd services.ResetPasswordCommand) (services.TemporaryCredential, error) {
	if s.resetFn == nil {
		return services.TemporaryCredential{}, errUnexpectedCall
	}
	return s.resetFn(ctx, cmd)
}

func (s *stubManufacturerService) Get(ctx context.Context, manufacturerID string) (services.Manufacturer, error) {
	if s.getFn == nil {
		return services.Manufacturer{}, errUnexpectedCall
	}
	return s.getFn(ctx, manufacturerID)
}

func (s *stubManufacturerService) GetByAccount(ctx context.Context, accountID string) (services.Manufacturer, error) {
	if s.byAccountFn == nil {
		return services.Manufacturer{}, services.ErrManufacturerNotFound
	}
	return s.byAccountFn(ctx, accountID)
}

func (s *stubManufacturerService) List(ctx context.Context, filter services.ManufacturerListFilter) (domain.CursorPage[services.Manufacturer], error) {
	if s.listFn == nil {
		return domain.CursorPage[services.Manufacturer]{}, errUnexpectedCall
	}
	return s.listFn(ctx, filter)
}

func (s *stubManufacturerService) UpdateProfile(context.Context, services.UpdateManufacturerProfileCommand) (services.Manufacturer, error) {
	return services.Manufacturer{}, errUnexpectedCall
}

func (s *stubManufacturerService) Stats(ctx context.Context) (services.ManufacturerStats, error) {
	if s.statsFn == nil {
		return services.ManufacturerStats{}, errUnexpectedCall
	}
	return s.statsFn(ctx)
}

type stubAccountService struct {
	registerFn func(context.Context, services.RegisterRetailerCommand) (services.Account, error)
	authFn     func(context.Context, services.AuthenticateCommand) (services.AuthResult, error)
	getFn      func(context.Context, string) (services.Account, error)
}

func (s *stubAccountService) RegisterRetailer(ctx context.Context, cmd services.RegisterRetailerCommand) (services.Account, error) {
	if s.registerFn == nil {
		return services.Account{}, errUnexpectedCall
	}
	return s.registerFn(ctx, cmd)
}

func (s *stubAccountService) Authenticate(ctx context.Context, cmd services.AuthenticateCommand) (services.AuthResult, error) {
	if s.authFn == nil {
		return services.AuthResult{}, errUnexpectedCall
	}
	return s.authFn(ctx, cmd)
}

func (s *stubAccountService) GetAccount(ctx context.Context, accountID string) (services.Account, error) {
	if s.getFn == nil {
		return services.Account{}, errUnexpectedCall
	}
	return s.getFn(ctx, accountID)
}

type stubCatalogService struct {
	getFn    func(context.Context, string) (services.Product, error)
	listFn   func(context.Context, services.ProductListFilter) (domain.CursorPage[services.Product], error)
	createFn func(context.Context, services.CreateProductCommand) (services.Product, error)
	updateFn func(context.Context, services.UpdateProductCommand) (services.Product, error)
	adjustFn func(context.Context, services.AdjustStockCommand) (services.Product, error)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getFn == nil {
		return services.Product{}, errUnexpectedCall
	}
	return s.getFn(ctx, productID)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
	if s.listFn == nil {
		return domain.CursorPage[services.Product]{}, errUnexpectedCall
	}
	return s.listFn(ctx, filter)
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
	if s.createFn == nil {
		return services.Product{}, errUnexpectedCall
	}
	return s.createFn(ctx, cmd)
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
	if s.updateFn == nil {
		return services.Product{}, errUnexpectedCall
	}
	return s.updateFn(ctx, cmd)
}

func (s *stubCatalogService) AdjustStock(ctx context.Context, cmd services.AdjustStockCommand) (services.Product, error) {
	if s.adjustFn == nil {
		return services.Product{}, errUnexpectedCall
	}
	return s.adjustFn(ctx, cmd)
}

// tokenTable resolves bearer tokens to fixed identities.
type tokenTable map[string]*auth.Identity

func (t tokenTable) Verify(_ context.Context, raw string) (*auth.Identity, error) {
	identity, ok := t[raw]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return identity, nil
}

func testAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(tokenTable{
		"retailer":     {UID: "acct-retailer", Username: "shop", Role: domain.RoleRetailer},
		"other":        {UID: "acct-other", Username: "other", Role: domain.RoleRetailer},
		"manufacturer": {UID: "acct-maker", Username: "maker", Role: domain.RoleManufacturer},
		"admin":        {UID: "acct-admin", Username: "root", Role: domain.RoleAdmin},
		"dashboard":    {UID: "acct-dash", Username: "dash", Role: domain.RoleDashboardAdmin},
	})
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["error"] != code {
		t.Fatalf("expected error %q, got %v", code, body["error"])
	}
}
