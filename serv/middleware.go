package serv

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	cache "github.com/go-pkgz/expirable-cache"
	"github.com/go-http-utils/headers"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/xid"
	"golang.org/x/time/rate"
)

const headerRequestID = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

// ipLimiter keeps one token bucket per client ip. Idle buckets expire.
type ipLimiter struct {
	conf  RateLimiter
	mu    sync.Mutex
	cache cache.Cache
}

func newIPLimiter(conf RateLimiter) (*ipLimiter, error) {
	c, err := cache.NewCache(cache.LRU(), cache.MaxKeys(10000), cache.TTL(5*time.Minute))
	if err != nil {
		return nil, err
	}
	return &ipLimiter{conf: conf, cache: c}, nil
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.cache.Get(ip); ok {
		return v.(*rate.Limiter)
	}
	rl := rate.NewLimiter(rate.Limit(l.conf.Rate), l.conf.Bucket)
	l.cache.Set(ip, rl, 0)
	return rl
}

// clientIP reads the client ip from the configured header or the remote
// address
func (l *ipLimiter) clientIP(r *http.Request) string {
	if h := l.conf.IPHeader; h != "" {
		if v := r.Header.Get(h); v != "" {
			if i := strings.IndexByte(v, ','); i != -1 {
				v = v[:i]
			}
			return strings.TrimSpace(v)
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func rateLimiter(s1 *HttpService, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := s1.load()
		if s.limiter != nil && !s.limiter.get(s.limiter.clientIP(r)).Allow() {
			s.renderErr(r.Context(), w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		h.ServeHTTP(w, r)
	})
}

// requestID tags every request with an id, reusing the caller's when set
func requestID(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = xid.New().String()
		}
		w.Header().Set(headerRequestID, id)
		h.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(c context.Context) string {
	id, _ := c.Value(requestIDKey).(string)
	return id
}

func corsHandler(conf *Config, h http.Handler) http.Handler {
	if len(conf.AllowedOrigins) == 0 {
		return h
	}

	allowedHeaders := []string{
		headers.ContentType,
		headers.Authorization,
		conf.APIKeyHeader,
		headerRequestID,
	}
	allowedHeaders = append(allowedHeaders, conf.AllowedHeaders...)

	c := cors.New(cors.Options{
		AllowedOrigins:   conf.AllowedOrigins,
		AllowedHeaders:   allowedHeaders,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowCredentials: true,
		Debug:            conf.DebugCORS,
	})
	return c.Handler(h)
}

func compressHandler(conf *Config, h http.Handler) http.Handler {
	if !conf.HTTPGZip {
		return h
	}
	return gzhttp.GzipHandler(h)
}

// Set the server header
func setServerHeader(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headers.Server, serverName)
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}
