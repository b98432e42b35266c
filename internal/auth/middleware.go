package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/castellan-platform/castellan/internal/platform/httpx"
	"github.com/castellan-platform/castellan/internal/shared"
)

// Middleware attaches the resolved identity to every request context.
// Requests without credentials proceed anonymously; policy evaluation
// decides what an anonymous identity may do.
func Middleware(resolver *Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity, ok := resolver.ResolveSystem(r.Header.Get(SystemTokenHeader)); ok {
				next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
				return
			}

			identity, err := resolver.Resolve(r.Context(), bearerToken(r))
			if err != nil {
				if logger != nil && !errors.Is(err, shared.ErrInvalidCredentials) {
					logger.Error("resolve identity", slog.Any("error", err))
				}
				httpx.RespondError(w, shared.ErrInvalidCredentials)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
