package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
)

// RequestID tags the request and attaches a logger carrying the id.
func RequestID(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get("X-Request-ID")
			if _, err := uuid.Parse(rid); err != nil {
				rid = uuid.NewString()
			}
			ctx := context.WithValue(r.Context(), requestIDKey, rid)
			ctx = base.With().Str("request_id", rid).Logger().WithContext(ctx)
			w.Header().Set("X-Request-ID", rid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
