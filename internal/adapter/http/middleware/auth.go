package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/authgate"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
)

// Auth verifies the bearer token and injects the resulting principal
// into the request context. A request with no Authorization header
// proceeds without a principal, and RequireRoles rejects it downstream;
// a malformed header or a token that fails verification is rejected
// here with 401.
func (a *Middleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(header)
		if err != nil {
			errorResponse(w, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.verifier.Verify(ctx, token)
		if err != nil {
			a.log.Error(wrap.ErrorCtx(ctx, err), "failed to verify bearer token", err)
			errorResponse(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(authgate.WithPrincipal(ctx, principal)))
	})
}

// RequireRoles wraps a handler and allows only requests whose verified
// principal has one of the given roles.
func (a *Middleware) RequireRoles(next http.HandlerFunc, allowedRoles ...types.UserRole) http.Handler {
	allowed := make(map[types.UserRole]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := authgate.FromContext(r.Context())
		if principal == nil {
			errorResponse(w, http.StatusUnauthorized, "authorization required")
			return
		}
		if len(allowed) > 0 {
			if _, ok := allowed[principal.Role]; !ok {
				errorResponse(w, http.StatusForbidden, "forbidden: insufficient role")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	return parts[1], nil
}
