package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/crackersbazaar/api/internal/platform/httpx"
	"github.com/crackersbazaar/api/internal/services"
)

type errorMapping struct {
	targets []error
	code    string
	status  int
	// expose copies the wrapped message into the envelope.
	expose bool
}

var serviceErrorMappings = []errorMapping{
	{targets: []error{services.ErrOrderInsufficientStock}, code: "insufficient_stock", status: http.StatusConflict, expose: true},
	{targets: []error{services.ErrOrderInvalidTransition}, code: "order_invalid_transition", status: http.StatusConflict, expose: true},
	{targets: []error{services.ErrOrderInvalidState}, code: "order_invalid_state", status: http.StatusConflict, expose: true},
	{targets: []error{services.ErrOrderNotFound}, code: "order_not_found", status: http.StatusNotFound},
	{targets: []error{services.ErrOrderConflict}, code: "order_conflict", status: http.StatusConflict, expose: true},
	{targets: []error{services.ErrOrderInvalidInput}, code: "invalid_request", status: http.StatusBadRequest, expose: true},

	{targets: []error{services.ErrManufacturerNotFound}, code: "manufacturer_not_found", status: http.StatusNotFound},
	{targets: []error{services.ErrManufacturerConflict}, code: "manufacturer_conflict", status: http.StatusConflict, expose: true},
	{targets: []error{services.ErrManufacturerInvalidState}, code: "manufacturer_invalid_state", status: http.StatusConflict, expose: true},
	{targets: []error{services.ErrManufacturerInvalidInput}, code: "invalid_request", status: http.StatusBadRequest, expose: true},

	{targets: []error{services.ErrAccountInvalidCredentials}, code: "invalid_credentials", status: http.StatusUnauthorized},
	{targets: []error{services.ErrAccountInactive}, code: "account_inactive", status: http.StatusForbidden},
	{targets: []error{services.ErrAccountNotFound}, code: "account_not_found", status: http.StatusNotFound},
	{targets: []error{services.ErrAccountConflict}, code: "account_conflict", status: http.StatusConflict, expose: true},
	{targets: []error{services.ErrAccountInvalidInput}, code: "invalid_request", status: http.StatusBadRequest, expose: true},

	{targets: []error{services.ErrCatalogNotFound}, code: "product_not_found", status: http.StatusNotFound},
	{targets: []error{services.ErrCatalogConflict}, code: "product_conflict", status: http.StatusConflict, expose: true},
	{targets: []error{services.ErrCatalogInvalidState}, code: "manufacturer_unverified", status: http.StatusConflict, expose: true},
	{targets: []error{services.ErrCatalogInvalidInput}, code: "invalid_request", status: http.StatusBadRequest, expose: true},

	{
		targets: []error{
			services.ErrOrderUnavailable,
			services.ErrManufacturerUnavailable,
			services.ErrAccountUnavailable,
			services.ErrCatalogUnavailable,
		},
		code:   "service_unavailable",
		status: http.StatusServiceUnavailable,
	},
}

// writeServiceError maps service sentinel errors onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var envelope httpx.Error
	if errors.As(err, &envelope) {
		httpx.WriteError(ctx, w, envelope)
		return
	}
	for _, mapping := range serviceErrorMappings {
		for _, target := range mapping.targets {
			if !errors.Is(err, target) {
				continue
			}
			message := http.StatusText(mapping.status)
			if mapping.expose {
				message = err.Error()
			}
			httpx.WriteError(ctx, w, httpx.NewError(mapping.code, message, mapping.status))
			return
		}
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
}
