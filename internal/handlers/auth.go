package handlers

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/auth"
	"github.com/crackersbazaar/api/internal/platform/httpx"
	"github.com/crackersbazaar/api/internal/services"
)

const (
	defaultLoginBurst  = 10
	defaultLoginWindow = time.Minute
)

// AuthHandlers serves retailer sign-up, login and the caller's own profile.
type AuthHandlers struct {
	authn         *auth.Authenticator
	accounts      services.AccountService
	manufacturers services.ManufacturerService
	loginLimiter  rateLimiter
}

// AuthOption customises AuthHandlers.
type AuthOption func(*AuthHandlers)

// WithLoginRateLimit allows burst login attempts per client address and login within window.
func WithLoginRateLimit(burst int, window time.Duration, clock func() time.Time) AuthOption {
	return func(h *AuthHandlers) {
		h.loginLimiter = newKeyedRateLimiter(burst, window, clock)
	}
}

// NewAuthHandlers constructs AuthHandlers.
func NewAuthHandlers(authn *auth.Authenticator, accounts services.AccountService, manufacturers services.ManufacturerService, opts ...AuthOption) *AuthHandlers {
	h := &AuthHandlers{
		authn:         authn,
		accounts:      accounts,
		manufacturers: manufacturers,
		loginLimiter:  newKeyedRateLimiter(defaultLoginBurst, defaultLoginWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers /auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
}

// MeRoutes registers /me endpoints.
func (h *AuthHandlers) MeRoutes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.me)
}

type registerRetailerRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"max=80"`
	LastName  string `json:"last_name" validate:"max=80"`
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type accountPayload struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
}

type loginResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresAt   string         `json:"expires_at"`
	Account     accountPayload `json:"account"`
}

type meResponse struct {
	Account      accountPayload       `json:"account"`
	Manufacturer *manufacturerPayload `json:"manufacturer,omitempty"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerRetailerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	account, err := h.accounts.RegisterRetailer(ctx, services.RegisterRetailerCommand{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"account": buildAccountPayload(account)})
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loginRequest
	if err := decodeRequest(r, &req); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if h.loginLimiter != nil && !h.loginLimiter.Allow(clientAddress(r)+"|"+req.Login) {
		w.Header().Set("Retry-After", "60")
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many login attempts", http.StatusTooManyRequests))
		return
	}
	result, err := h.accounts.Authenticate(ctx, services.AuthenticateCommand{Login: req.Login, Password: req.Password})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: result.Token.Value,
		TokenType:   "Bearer",
		ExpiresAt:   formatTime(result.Token.ExpiresAt),
		Account:     buildAccountPayload(result.Account),
	})
}

func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	account, err := h.accounts.GetAccount(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := meResponse{Account: buildAccountPayload(account)}
	if account.Role == domain.RoleManufacturer && h.manufacturers != nil {
		manufacturer, err := h.manufacturers.GetByAccount(ctx, account.ID)
		if err == nil {
			payload := buildManufacturerPayload(manufacturer)
			resp.Manufacturer = &payload
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// clientAddress relies on middleware.RealIP having already rewritten RemoteAddr.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func buildAccountPayload(a services.Account) accountPayload {
	return accountPayload{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Role:      string(a.Role),
		Active:    a.Active,
		CreatedAt: formatTime(a.CreatedAt),
	}
}
