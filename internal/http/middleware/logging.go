package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const contextKeyAccessLog contextKey = "access_log"

// accessLog é preenchido pelos middlewares internos (ex.: Auth) e lido ao fim da requisição.
type accessLog struct {
	userID string
}

// Logging escreve um evento http_request por requisição e injeta um logger
// com request_id no contexto, recuperável com log.Ctx.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		reqID := middleware.GetReqID(r.Context())
		logger := log.With().Str("request_id", reqID).Logger()
		entry := &accessLog{}

		ctx := logger.WithContext(r.Context())
		ctx = context.WithValue(ctx, contextKeyAccessLog, entry)

		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		event := logger.WithLevel(levelFor(status)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start))

		if ip := r.Header.Get("X-Real-IP"); ip != "" {
			event = event.Str("ip", ip)
		} else {
			event = event.Str("ip", r.RemoteAddr)
		}
		if ua := r.Header.Get("User-Agent"); ua != "" {
			event = event.Str("user_agent", ua)
		}
		if entry.userID != "" {
			event = event.Str("user_id", entry.userID)
		}

		event.Msg("http_request")
	})
}

func levelFor(status int) zerolog.Level {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

func recordUser(ctx context.Context, userID string) {
	if entry, ok := ctx.Value(contextKeyAccessLog).(*accessLog); ok {
		entry.userID = userID
	}
}
