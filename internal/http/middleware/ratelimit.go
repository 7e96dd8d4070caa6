package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gestaozabele/receitas/internal/http/response"
)

// RateLimiter mantém um token bucket por chave; chaves ociosas expiram.
type RateLimiter struct {
	limit      rate.Limit
	burst      int
	maxAge     time.Duration
	now        func() time.Time
	mu         sync.Mutex
	store      map[string]*limiterEntry
	lastSweep  time.Time
	retryAfter string
}

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewRateLimiter cria o limiter com reqPerSec requisições por segundo e rajada burst.
func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	retry := 1
	if reqPerSec > 0 && reqPerSec < 1 {
		retry = int(math.Ceil(1 / reqPerSec))
	}
	return &RateLimiter{
		limit:      rate.Limit(reqPerSec),
		burst:      burst,
		maxAge:     10 * time.Minute,
		now:        time.Now,
		store:      make(map[string]*limiterEntry),
		retryAfter: strconv.Itoa(retry),
	}
}

// Allow consome um token da chave.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) > r.maxAge {
		for k, entry := range r.store {
			if now.Sub(entry.seen) > r.maxAge {
				delete(r.store, k)
			}
		}
		r.lastSweep = now
	}

	entry, ok := r.store[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.store[key] = entry
	}
	entry.seen = now
	return entry.limiter.AllowN(now, 1)
}

// Len informa quantas chaves estão em memória.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.store)
}

// LimitByKey aplica o limite à chave extraída; ok=false libera a requisição.
func (r *RateLimiter) LimitByKey(next http.Handler, keyFunc func(*http.Request) (string, bool)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key, ok := keyFunc(req)
		if !ok || key == "" {
			next.ServeHTTP(w, req)
			return
		}

		if !r.Allow(key) {
			w.Header().Set("Retry-After", r.retryAfter)
			response.WriteError(w, http.StatusTooManyRequests, response.CodeRateLimit, "limite de requisições excedido", nil)
			return
		}

		next.ServeHTTP(w, req)
	})
}

// IPRateLimit usa o IP do cliente como chave.
func IPRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			return "ip:" + realIPFromRequest(r), true
		})
	}
}

// UserRateLimit usa o usuário autenticado como chave.
func UserRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			subject := GetSubject(r.Context())
			return "user:" + subject, subject != ""
		})
	}
}

func realIPFromRequest(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
