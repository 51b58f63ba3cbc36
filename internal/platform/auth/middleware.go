package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/httpx"
	"github.com/crackersbazaar/api/internal/platform/requestctx"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// AccountStatusFunc reports whether the account behind a verified token may still act. A missing account
// reports false without an error.
type AccountStatusFunc func(ctx context.Context, accountID string) (bool, error)

// Authenticator wires token verification into HTTP middleware.
type Authenticator struct {
	verifier    TokenVerifier
	status      AccountStatusFunc
	statusRoles []domain.Role
}

// AuthenticatorOption customises an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithAccountStatus re-checks the account on every request for identities holding one of roles, so a
// deactivated account loses access before its token expires.
func WithAccountStatus(fn AccountStatusFunc, roles ...domain.Role) AuthenticatorOption {
	return func(a *Authenticator) {
		a.status = fn
		a.statusRoles = roles
	}
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{verifier: verifier}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireAuth verifies the Authorization bearer token. When roles are given the identity must hold one
// of them, otherwise 403 is returned.
func (a *Authenticator) RequireAuth(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
				return
			}
			if a == nil || a.verifier == nil {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusUnauthorized))
				return
			}

			identity, err := a.verifier.Verify(ctx, raw)
			if err != nil {
				code, message := "invalid_token", "token verification failed"
				if errors.Is(err, ErrTokenExpired) {
					code, message = "token_expired", "token expired"
				}
				httpx.WriteError(ctx, w, httpx.NewError(code, message, http.StatusUnauthorized))
				return
			}
			if len(roles) > 0 && !identity.HasRole(roles...) {
				httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "identity does not have required role", http.StatusForbidden))
				return
			}

			if a.status != nil && identity.HasRole(a.statusRoles...) {
				active, err := a.status(ctx, identity.UID)
				if err != nil {
					httpx.WriteError(ctx, w, httpx.NewError("auth_unavailable", "account status could not be checked", http.StatusServiceUnavailable))
					return
				}
				if !active {
					httpx.WriteError(ctx, w, httpx.NewError("account_inactive", "account is inactive", http.StatusForbidden))
					return
				}
			}

			ctx = WithIdentity(ctx, identity)
			if requestctx.HasLogger(ctx) {
				ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("user_id", identity.UID)))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
