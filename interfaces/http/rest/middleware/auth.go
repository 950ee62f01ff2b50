package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/VadimShubkin/ii/pkg/auth"
	"github.com/VadimShubkin/ii/pkg/common"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"go.uber.org/zap"
)

// Authenticate resolves the caller of a request.
// A request without credentials continues as anonymous; a request with a
// bad token is rejected. When trustGateway is set, identity headers added
// by an API Gateway authorizer are accepted in place of a token.
func Authenticate(validator *auth.Validator, trustGateway bool, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if trustGateway && r.Header.Get("X-API-Gateway-Authorized") == "true" {
				userID := r.Header.Get("X-User-ID")
				if userID == "" {
					respondUnauthorized(w, "Missing user context from API Gateway")
					return
				}
				next.ServeHTTP(w, r.WithContext(withUser(r, userID, splitRoles(r.Header.Get("X-User-Roles")))))
				return
			}

			token, present, ok := extractToken(r)
			if !present {
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				respondUnauthorized(w, "Invalid authorization header format")
				return
			}
			if validator == nil {
				respondUnauthorized(w, "Token authentication is not configured")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Debug("rejected token",
					zap.String("clientIP", getClientIP(r)),
					zap.Error(err),
				)
				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					respondUnauthorized(w, "Token has expired")
				case errors.Is(err, auth.ErrInvalidSignature):
					respondUnauthorized(w, "Invalid token signature")
				default:
					respondUnauthorized(w, "Invalid token")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r, claims.UserID, claims.Roles)))
		})
	}
}

// RequireRole lets the request through only when the caller holds one of roles
func RequireRole(roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := common.GetUserID(r.Context()); !ok {
				respondUnauthorized(w, "Authentication required")
				return
			}
			if !common.HasAnyRole(r.Context(), roles...) {
				common.RespondError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withUser(r *http.Request, userID string, roles []string) context.Context {
	ctx := common.WithUserID(r.Context(), userID)
	return common.WithUserRoles(ctx, roles)
}

// extractToken reports whether an Authorization header was sent and whether
// it carries a bearer token
func extractToken(r *http.Request) (token string, present, ok bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false, false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", true, false
	}
	return strings.TrimSpace(parts[1]), true, true
}

func splitRoles(raw string) []string {
	var roles []string
	for _, role := range strings.Split(raw, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="topics"`)
	err := apperrors.NewUnauthorizedError(message)
	common.RespondError(w, err.HTTPStatus, string(err.Type), err.Message)
}
