package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/mini-oms/internal/core/domain"
	"github.com/rl1809/mini-oms/internal/core/service"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}

func bearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// authenticate rejects requests without a valid bearer token and stores the caller in the
// request context.
func (h *HTTPHandler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := h.svc.Auth.Authenticate(bearerToken(r.Header.Get("Authorization")))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}

// authorize checks the caller against a capability and writes the failure response itself.
func (h *HTTPHandler) authorize(w http.ResponseWriter, r *http.Request, c domain.Capability) (domain.Principal, bool) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		h.writeError(w, r, fmt.Errorf("%w: missing token", service.ErrUnauthenticated))
		return domain.Principal{}, false
	}
	if !principal.Role.Can(c) {
		h.writeError(w, r, fmt.Errorf("%w: role %s may not %s", service.ErrForbidden, principal.Role, c))
		return domain.Principal{}, false
	}
	return principal, true
}

func (h *HTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			h.logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
