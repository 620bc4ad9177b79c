package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/todos/internal/service/auth"
	"github.com/splax/todos/internal/service/todo"
	"github.com/splax/todos/internal/service/user"
	"github.com/splax/todos/pkg/config"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	users    user.Service
	todos    todo.Service
	limiter  RateLimiter
	cfg      config.APIConfig
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	authAttempts       *prometheus.CounterVec
}

const (
	rateWindowAuth     = time.Minute
	rateWindowTodos    = time.Minute
	healthCheckTimeout = 2 * time.Second
	requestIDHeader    = "X-Request-ID"
	routeUnmatched     = "unmatched"
)

// NewRouter assembles routes with dependencies. A nil limiter falls back to
// an in-memory one; a nil dbHealth skips the store check in /healthz.
func NewRouter(logger *slog.Logger, authSvc auth.Service, userSvc user.Service, todoSvc todo.Service, limiter RateLimiter, cfg config.APIConfig, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		users:    userSvc,
		todos:    todoSvc,
		limiter:  limiter,
		cfg:      cfg,
		dbHealth: dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())

	r.mux.HandleFunc("/auth/signup", r.audit(r.limited(r.withRateLimit("auth_signup", r.cfg.LoginRateLimit, rateWindowAuth, rateLimitKeyIP, r.handleSignup))))
	r.mux.HandleFunc("/auth/login", r.audit(r.limited(r.withRateLimit("auth_login", r.cfg.LoginRateLimit, rateWindowAuth, rateLimitKeyIP, r.handleLogin))))
	r.mux.HandleFunc("/auth/refresh", r.audit(r.limited(r.handleRefresh)))
	r.mux.HandleFunc("/auth/logout", r.audit(r.limited(r.handleLogout)))

	r.mux.HandleFunc("/todos", r.audit(r.limited(r.requireAuth(r.handleListTodos))))
	r.mux.HandleFunc("/todos/addTodos", r.audit(r.limited(r.handlerAuthRate("todos_write", r.cfg.TodoRateLimit, rateWindowTodos, r.handleAddTodo))))
	r.mux.HandleFunc("/todos/updateTodos/{id}", r.audit(r.limited(r.handlerAuthRate("todos_write", r.cfg.TodoRateLimit, rateWindowTodos, r.handleUpdateTodo))))
	r.mux.HandleFunc("/todos/deleteTodos/{id}", r.audit(r.limited(r.handlerAuthRate("todos_write", r.cfg.TodoRateLimit, rateWindowTodos, r.handleDeleteTodo))))

	r.mux.HandleFunc("/users", r.audit(r.limited(r.requireAuth(r.authorize(r.handleUsers)))))
	r.mux.HandleFunc("/users/{id}", r.audit(r.limited(r.requireAuth(r.authorize(r.handleUser)))))

	r.mux.HandleFunc("/", r.audit(r.limited(r.handleRouteNotFound)))
}

// limited applies the global per-client budget shared by every API route.
func (r *Router) limited(next http.HandlerFunc) http.HandlerFunc {
	return r.withRateLimit("global", r.cfg.RateLimitMax, r.cfg.RateLimitWindow, rateLimitKeyIP, next)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["store"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["store"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) handleRouteNotFound(w http.ResponseWriter, _ *http.Request) {
	r.notFound(w)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reqID := strings.TrimSpace(req.Header.Get(requestIDHeader))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)

		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		route := req.Pattern
		if route == "" || route == "/" {
			route = routeUnmatched
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
			"request_id", reqID,
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

// clientIP reports the caller as claimed by X-Forwarded-For, for logging only.
// The header is client supplied; rate limiting keys on remoteHost instead.
func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	return remoteHost(req)
}

func remoteHost(req *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

// identity returns the caller decoded by requireAuth.
func (r *Router) identity(w http.ResponseWriter, req *http.Request) (authInfo, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return authInfo{}, false
	}
	return info, true
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "Route not found")
}
