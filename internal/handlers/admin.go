package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/auth"
	"github.com/crackersbazaar/api/internal/platform/httpx"
	"github.com/crackersbazaar/api/internal/services"
)

// AdminHandlers exposes manufacturer verification and order administration.
type AdminHandlers struct {
	authn         *auth.Authenticator
	manufacturers services.ManufacturerService
	orders        services.OrderService
}

// NewAdminHandlers constructs AdminHandlers.
func NewAdminHandlers(authn *auth.Authenticator, manufacturers services.ManufacturerService, orders services.OrderService) *AdminHandlers {
	return &AdminHandlers{authn: authn, manufacturers: manufacturers, orders: orders}
}

// Routes registers /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(domain.RoleAdmin, domain.RoleDashboardAdmin))
	}
	r.Get("/manufacturers", h.listManufacturers)
	r.Get("/manufacturers:stats", h.manufacturerStats)
	r.Get("/manufacturers/{manufacturerID}", h.getManufacturer)
	r.Post("/manufacturers/{manufacturerID}:verify", h.verifyManufacturer)
	r.Post("/manufacturers/{manufacturerID}:reset-password", h.resetPassword)
	r.Delete("/manufacturers/{manufacturerID}", h.deleteManufacturer)

	r.Get("/orders:stats", h.orderStats)
	r.Post("/orders/{orderID}:transition", h.transitionOrder)
	r.Delete("/orders/{orderID}", h.deleteOrder)
}

type verifyManufacturerRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"max=2000"`
}

type transitionOrderRequest struct {
	Status         string `json:"status" validate:"required"`
	TrackingNumber string `json:"tracking_number" validate:"max=100"`
	Reason         string `json:"reason" validate:"max=500"`
	Notes          string `json:"notes" validate:"max=2000"`
}

type manufacturerListResponse struct {
	Items         []manufacturerPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

func (h *AdminHandlers) listManufacturers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, ok := pageFromRequest(ctx, w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := services.ManufacturerListFilter{
		City:         query.Get("city"),
		State:        query.Get("state"),
		CompanyQuery: query.Get("q"),
		Pagination:   page,
	}
	for _, raw := range splitQueryValues(query["status"]) {
		filter.Status = append(filter.Status, domain.ManufacturerStatus(raw))
	}
	result, err := h.manufacturers.List(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := manufacturerListResponse{Items: make([]manufacturerPayload, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, m := range result.Items {
		resp.Items = append(resp.Items, buildManufacturerPayload(m))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AdminHandlers) getManufacturer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	manufacturer, err := h.manufacturers.Get(ctx, chi.URLParam(r, "manufacturerID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"manufacturer": buildManufacturerPayload(manufacturer)})
}

func (h *AdminHandlers) manufacturerStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.manufacturers.Stats(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	counts := make(map[string]int, len(stats.CountByStatus))
	for status, n := range stats.CountByStatus {
		counts[string(status)] = n
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"total":      stats.Total,
		"verified":   stats.Verified,
		"unverified": stats.Unverified,
		"by_status":  counts,
	})
}

func (h *AdminHandlers) verifyManufacturer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req verifyManufacturerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	manufacturer, err := h.manufacturers.Verify(ctx, services.VerifyManufacturerCommand{
		ManufacturerID: chi.URLParam(r, "manufacturerID"),
		Status:         domain.ManufacturerStatus(req.Status),
		Notes:          req.Notes,
		AdminID:        identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"manufacturer": buildManufacturerPayload(manufacturer)})
}

// resetPassword returns the temporary password once; it is never stored in plaintext.
func (h *AdminHandlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	manufacturer, err := h.manufacturers.Get(ctx, chi.URLParam(r, "manufacturerID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	cred, err := h.manufacturers.ResetPassword(ctx, services.ResetPasswordCommand{Email: manufacturer.Email, ActorID: identity.UID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"account_id":         cred.AccountID,
		"username":           cred.Username,
		"temporary_password": cred.Password,
	})
}

func (h *AdminHandlers) deleteManufacturer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if err := h.manufacturers.Delete(ctx, services.DeleteManufacturerCommand{
		ManufacturerID: chi.URLParam(r, "manufacturerID"),
		ActorID:        identity.UID,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) orderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	stats, err := h.orders.OrderStats(ctx, services.OrderStatsFilter{
		UserID:         strings.TrimSpace(query.Get("user_id")),
		ManufacturerID: strings.TrimSpace(query.Get("manufacturer_id")),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	counts := make(map[string]int, len(stats.CountByStatus))
	for status, n := range stats.CountByStatus {
		counts[string(status)] = n
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"total_orders": stats.TotalOrders,
		"amount":       money(stats.Amount),
		"by_status":    counts,
	})
}

func (h *AdminHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req transitionOrderRequest
	if err := decodeRequest(r, &req); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:        chi.URLParam(r, "orderID"),
		TargetStatus:   domain.OrderStatus(req.Status),
		ActorID:        identity.UID,
		TrackingNumber: req.TrackingNumber,
		Reason:         req.Reason,
		Notes:          req.Notes,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if err := h.orders.DeleteOrder(ctx, services.DeleteOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: identity.UID,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
