package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
)

// ActorHeader carries the caller identity asserted by the upstream gateway
const ActorHeader = "X-Actor-ID"

// AuditContextKey is the context key for audit information
type AuditContextKey string

const (
	// ClientIPKey is the context key for client IP
	ClientIPKey AuditContextKey = "client_ip"
	// UserAgentKey is the context key for user agent
	UserAgentKey AuditContextKey = "user_agent"
	// ActorKey is the context key for the calling actor
	ActorKey AuditContextKey = "actor"
)

// AuditContext captures client IP, User-Agent and the gateway actor for audit logging
func AuditContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if clientIP := getClientIP(r); clientIP != "" {
			ctx = context.WithValue(ctx, ClientIPKey, clientIP)
		}
		if userAgent := r.Header.Get("User-Agent"); userAgent != "" {
			ctx = context.WithValue(ctx, UserAgentKey, userAgent)
		}
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			ctx = context.WithValue(ctx, ActorKey, actor)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireActor rejects requests that reach it without a gateway actor
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetActor(r.Context()) == "" {
			WriteError(w, apperrors.NewWithDetail(
				apperrors.ErrCodeUnauthorized,
				apperrors.ErrUnauthorized.Message,
				ActorHeader+" header is required",
				http.StatusUnauthorized,
			))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP from the request.
// X-Forwarded-For may hold "client, proxy1, proxy2"; the first entry wins.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if net.ParseIP(r.RemoteAddr) != nil {
			return r.RemoteAddr
		}
		return ""
	}
	return ip
}

// GetClientIP retrieves the client IP from context
func GetClientIP(ctx context.Context) *string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return &ip
	}
	return nil
}

// GetUserAgent retrieves the user agent from context
func GetUserAgent(ctx context.Context) *string {
	if ua, ok := ctx.Value(UserAgentKey).(string); ok {
		return &ua
	}
	return nil
}

// GetActor retrieves the calling actor from context, or ""
func GetActor(ctx context.Context) string {
	actor, _ := ctx.Value(ActorKey).(string)
	return actor
}
