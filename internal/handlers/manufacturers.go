package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crackersbazaar/api/internal/platform/httpx"
	"github.com/crackersbazaar/api/internal/services"
)

// ManufacturerHandlers serves public manufacturer self-registration.
type ManufacturerHandlers struct {
	manufacturers services.ManufacturerService
}

// NewManufacturerHandlers constructs ManufacturerHandlers.
func NewManufacturerHandlers(manufacturers services.ManufacturerService) *ManufacturerHandlers {
	return &ManufacturerHandlers{manufacturers: manufacturers}
}

// Routes registers /manufacturers endpoints.
func (h *ManufacturerHandlers) Routes(r chi.Router) {
	r.Post("/", h.register)
}

type registerManufacturerRequest struct {
	Username        string         `json:"username" validate:"omitempty,min=3,max=50"`
	CompanyName     string         `json:"company_name" validate:"required,max=200"`
	ContactPerson   string         `json:"contact_person" validate:"required,max=120"`
	Email           string         `json:"email" validate:"required,email"`
	PhoneNumber     string         `json:"phone_number" validate:"omitempty,max=20"`
	Address         addressPayload `json:"address"`
	GSTNumber       string         `json:"gst_number" validate:"omitempty,len=15,alphanum"`
	PANNumber       string         `json:"pan_number" validate:"omitempty,len=10,alphanum"`
	LicenseNumber   string         `json:"license_number" validate:"omitempty,max=60"`
	LicenseValidity *time.Time     `json:"license_validity"`
	Password        string         `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string         `json:"confirm_password" validate:"required"`
}

type manufacturerPayload struct {
	ID                string         `json:"id"`
	CompanyName       string         `json:"company_name"`
	ContactPerson     string         `json:"contact_person"`
	Email             string         `json:"email"`
	PhoneNumber       string         `json:"phone_number,omitempty"`
	Address           addressPayload `json:"address"`
	GSTNumber         string         `json:"gst_number,omitempty"`
	PANNumber         string         `json:"pan_number,omitempty"`
	LicenseNumber     string         `json:"license_number,omitempty"`
	LicenseValidity   string         `json:"license_validity,omitempty"`
	Status            string         `json:"status"`
	Verified          bool           `json:"verified"`
	VerificationNotes string         `json:"verification_notes,omitempty"`
	VerifiedBy        string         `json:"verified_by,omitempty"`
	VerifiedAt        string         `json:"verified_at,omitempty"`
	AccountID         string         `json:"account_id"`
	CreatedAt         string         `json:"created_at"`
	UpdatedAt         string         `json:"updated_at,omitempty"`
}

func (h *ManufacturerHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerManufacturerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	manufacturer, err := h.manufacturers.Register(ctx, services.RegisterManufacturerCommand{
		Username:        req.Username,
		CompanyName:     req.CompanyName,
		ContactPerson:   req.ContactPerson,
		Email:           req.Email,
		PhoneNumber:     req.PhoneNumber,
		Address:         req.Address.toDomain(),
		GSTNumber:       req.GSTNumber,
		PANNumber:       req.PANNumber,
		LicenseNumber:   req.LicenseNumber,
		LicenseValidity: req.LicenseValidity,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"manufacturer": buildManufacturerPayload(manufacturer)})
}

func buildManufacturerPayload(m services.Manufacturer) manufacturerPayload {
	return manufacturerPayload{
		ID:                m.ID,
		CompanyName:       m.CompanyName,
		ContactPerson:     m.ContactPerson,
		Email:             m.Email,
		PhoneNumber:       m.PhoneNumber,
		Address:           buildAddressPayload(m.Address),
		GSTNumber:         m.GSTNumber,
		PANNumber:         m.PANNumber,
		LicenseNumber:     m.LicenseNumber,
		LicenseValidity:   formatTimePtr(m.LicenseValidity),
		Status:            string(m.Status),
		Verified:          m.Verified,
		VerificationNotes: m.VerificationNotes,
		VerifiedBy:        m.VerifiedBy,
		VerifiedAt:        formatTimePtr(m.VerifiedAt),
		AccountID:         m.AccountID,
		CreatedAt:         formatTime(m.CreatedAt),
		UpdatedAt:         formatTime(m.UpdatedAt),
	}
}
