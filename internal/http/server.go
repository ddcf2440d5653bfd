package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"presupuesto/internal/cache"
	"presupuesto/internal/forecast"
	applog "presupuesto/internal/log"
	"presupuesto/internal/middleware/ratelimit"
	"presupuesto/internal/middleware/security"
	"presupuesto/internal/middleware/trace"
	"presupuesto/internal/services"
)

// Options tunes the server-side caches and rate limiting.
type Options struct {
	TotalsCacheSize   int
	TotalsCacheTTL    time.Duration
	RequestsPerMinute int
}

// DefaultOptions returns sensible defaults
func DefaultOptions() Options {
	return Options{
		TotalsCacheSize:   100,
		TotalsCacheTTL:    5 * time.Minute,
		RequestsPerMinute: 60,
	}
}

type Server struct {
	http.Server

	service     *services.ForecastService
	limiter     *ratelimit.Limiter
	extractor   *security.ClientIPExtractor
	totalsCache *cache.LRUCache[forecast.Totals]
	cacheMgr    *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *services.ForecastService, opts Options) *Server {
	if opts.TotalsCacheSize <= 0 || opts.TotalsCacheTTL <= 0 {
		opts = DefaultOptions()
	}

	mux := http.NewServeMux()

	s := &Server{
		service:     svc,
		limiter:     ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		extractor:   security.NewClientIPExtractor(),
		totalsCache: cache.NewLRUCache[forecast.Totals](opts.TotalsCacheSize, opts.TotalsCacheTTL),
		cacheMgr:    cache.NewManager(),
	}

	s.cacheMgr.Register(s.totalsCache)
	s.cacheMgr.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/projects/{project}/rubros", s.handleProjectRubros)
	mux.HandleFunc("GET /api/projects/{project}/totals", s.handleProjectTotals)
	mux.HandleFunc("GET /api/projects/{project}/variance", s.handleProjectVariance)
	mux.HandleFunc("POST /api/projects/{project}/forecast", s.handleSaveForecast)
	mux.HandleFunc("POST /api/projects/{project}/allocations", s.handleSaveAllocation)
	mux.HandleFunc("POST /api/projects/{project}/prefacturas", s.handleSavePrefactura)

	traceMW := trace.NewMiddleware(s.extractor.ExtractClientIP)
	headersMW := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limitMW := s.limiter.Middleware(s.extractor.ExtractClientIP, nil)
	httpLogger := applog.New(applog.Config{Component: applog.ComponentHTTP})

	// Rate limiting applies to writes only; reads are served from cache
	// and cheap aggregation.
	var handler http.Handler = mux
	handler = onPost(limitMW(handler), handler)
	handler = headersMW.Middleware(handler)
	handler = applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = applog.Middleware(httpLogger)(handler)
	handler = traceMW.Middleware(handler)

	s.Server = http.Server{
		Addr:    addr,
		Handler: handler,
	}

	return s
}

// onPost routes POST requests through limited, everything else through plain.
func onPost(limited, plain http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			limited.ServeHTTP(w, r)
			return
		}
		plain.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheMgr.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
