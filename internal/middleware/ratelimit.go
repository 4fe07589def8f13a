package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/rpattn/impactdash/internal/auth"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OwnerRateLimit throttles writes per owner: perMinute sustained with burst
// headroom. GET and HEAD pass through, as do requests for any of the exempt
// paths. Must run inside auth.OwnerScope. perMinute <= 0 disables the limit.
func OwnerRateLimit(perMinute, burst int, logger *zap.Logger, exempt ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if burst <= 0 {
		burst = 1
	}
	limiters := &ownerLimiters{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		limiters: map[uuid.UUID]*rate.Limiter{},
	}
	skip := make(map[string]struct{}, len(exempt))
	for _, path := range exempt {
		skip[path] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		if perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			ownerID, ok := auth.OrganizationIDFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			reservation := limiters.get(ownerID).Reserve()
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				retryAfter := int(math.Ceil(delay.Seconds()))
				logger.Warn("Rate limited request",
					zap.String("owner_id", ownerID.String()),
					zap.String("path", r.URL.Path),
					zap.Duration("retry_after", delay))
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "too many uploads, retry later"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type ownerLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[uuid.UUID]*rate.Limiter
}

func (o *ownerLimiters) get(ownerID uuid.UUID) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()
	limiter, ok := o.limiters[ownerID]
	if !ok {
		limiter = rate.NewLimiter(o.limit, o.burst)
		o.limiters[ownerID] = limiter
	}
	return limiter
}
