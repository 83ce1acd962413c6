package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Hata214/BackEnd/internal/http/respond"
	"github.com/Hata214/BackEnd/internal/metrics"
)

// maxTrackedClients bounds the limiter table; idle clients are evicted first.
const maxTrackedClients = 10_000

// RateLimiter throttles requests per client address with a token bucket.
// It guards credential endpoints in front of the per-account lockout.
type RateLimiter struct {
	perMinute int
	burst     int
	metrics   *metrics.Metrics
	log       logrus.FieldLogger

	mu      sync.Mutex
	clients *lru.LRU[string, *rate.Limiter]
}

// NewRateLimiter allows perMinute requests per client with the given burst.
func NewRateLimiter(perMinute, burst int, m *metrics.Metrics, log logrus.FieldLogger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 20
	}
	if burst <= 0 {
		burst = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RateLimiter{
		perMinute: perMinute,
		burst:     burst,
		metrics:   m,
		log:       log,
		clients:   lru.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, 15*time.Minute),
	}
}

// Limit wraps next with the per-client bucket.
func (l *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientAddress(r)
		reservation := l.limiter(client).Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			l.metrics.AuthFailure("rate_limited")
			l.log.WithFields(logrus.Fields{"client": client, "path": r.URL.Path}).Warn("request rate limited")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			respond.Error(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) limiter(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.clients.Get(client); ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.burst)
	l.clients.Add(client, lim)
	return lim
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
