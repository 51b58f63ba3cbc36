package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/crackersbazaar/api/internal/domain"
)

func newTestTokenService(t *testing.T, now time.Time) *TokenService {
	t.Helper()
	svc, err := NewTokenService("test-secret", "bazaar-test", time.Hour, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}
	return svc
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestTokenService(t, now)

	token, err := svc.Issue(domain.Account{ID: "acc-1", Username: "sparkle", Email: "s@example.com", Role: domain.RoleManufacturer})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !token.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %s", token.ExpiresAt)
	}

	identity, err := svc.Verify(context.Background(), token.Value)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.UID != "acc-1" || identity.Username != "sparkle" || identity.Role != domain.RoleManufacturer {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestTokenService_VerifyRejects(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	issuer := newTestTokenService(t, now)
	token, err := issuer.Issue(domain.Account{ID: "acc-1", Username: "u", Role: domain.RoleRetailer})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	t.Run("expired", func(t *testing.T) {
		later := newTestTokenService(t, now.Add(2*time.Hour))
		if _, err := later.Verify(context.Background(), token.Value); !errors.Is(err, ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, _ := NewTokenService("other-secret", "bazaar-test", time.Hour, WithClock(func() time.Time { return now }))
		if _, err := other.Verify(context.Background(), token.Value); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid, got %v", err)
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, _ := NewTokenService("test-secret", "someone-else", time.Hour, WithClock(func() time.Time { return now }))
		if _, err := other.Verify(context.Background(), token.Value); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid, got %v", err)
		}
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "acc-1", "role": "ADMIN"})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("failed to build unsigned token: %v", err)
		}
		if _, err := issuer.Verify(context.Background(), raw); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid, got %v", err)
		}
	})
}

func TestRequireAuth(t *testing.T) {
	now := time.Now()
	svc := newTestTokenService(t, now)
	retailer, _ := svc.Issue(domain.Account{ID: "r-1", Username: "shop", Role: domain.RoleRetailer})
	admin, _ := svc.Issue(domain.Account{ID: "a-1", Username: "root", Role: domain.RoleAdmin})

	authn := NewAuthenticator(svc)
	var seen *Identity
	handler := authn.RequireAuth(domain.RoleAdmin, domain.RoleDashboardAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized, code: "unauthenticated"},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized, code: "unauthenticated"},
		{name: "garbage token", header: "Bearer nope", status: http.StatusUnauthorized, code: "invalid_token"},
		{name: "insufficient role", header: "Bearer " + retailer.Value, status: http.StatusForbidden, code: "insufficient_role"},
		{name: "admin", header: "bearer " + admin.Value, status: http.StatusNoContent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			if tc.code == "" {
				if seen == nil || seen.UID != "a-1" {
					t.Fatalf("expected admin identity in context, got %+v", seen)
				}
				return
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected error %s, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestRequireAuth_AccountStatus(t *testing.T) {
	now := time.Now()
	svc := newTestTokenService(t, now)
	maker, _ := svc.Issue(domain.Account{ID: "m-1", Username: "maker", Role: domain.RoleManufacturer})
	suspended, _ := svc.Issue(domain.Account{ID: "m-2", Username: "dormant", Role: domain.RoleManufacturer})
	broken, _ := svc.Issue(domain.Account{ID: "m-3", Username: "broken", Role: domain.RoleManufacturer})
	retailer, _ := svc.Issue(domain.Account{ID: "r-1", Username: "shop", Role: domain.RoleRetailer})

	var checked []string
	status := func(_ context.Context, accountID string) (bool, error) {
		checked = append(checked, accountID)
		switch accountID {
		case "m-2":
			return false, nil
		case "m-3":
			return false, errors.New("store offline")
		}
		return true, nil
	}
	authn := NewAuthenticator(svc, WithAccountStatus(status, domain.RoleManufacturer))
	handler := authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		token  string
		status int
		code   string
	}{
		{name: "active manufacturer", token: maker.Value, status: http.StatusNoContent},
		{name: "inactive manufacturer", token: suspended.Value, status: http.StatusForbidden, code: "account_inactive"},
		{name: "status lookup fails", token: broken.Value, status: http.StatusServiceUnavailable, code: "auth_unavailable"},
		{name: "retailer not checked", token: retailer.Value, status: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/catalog/products", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			if tc.code == "" {
				return
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected error %s, got %v", tc.code, body["error"])
			}
		})
	}
	if len(checked) != 3 {
		t.Fatalf("expected only manufacturer identities to be checked, got %v", checked)
	}
}
