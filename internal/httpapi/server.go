// Package httpapi is the thin net/http adapter over the session
// runtime (spec §6): it maps connect/send/echo/login/register
// requests onto internal/session.Registry and internal/engine.Machine
// calls. It carries no conversational logic of its own.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ehrlich-b/scriptbot/internal/engine"
	"github.com/ehrlich-b/scriptbot/internal/logger"
	"github.com/ehrlich-b/scriptbot/internal/session"
)

// Server wires the registry and state-machine interpreter behind
// net/http. machine is held behind an atomic pointer so a config
// watcher can hot-swap a reloaded StateGraph without taking the
// server down (spec §6's script-reload supplement).
type Server struct {
	registry  *session.Registry
	machine   atomic.Pointer[engine.Machine]
	mux       *http.ServeMux
	rateLimit *RateLimiter
}

// New builds a Server bound to registry, initially driving m.
func New(registry *session.Registry, m *engine.Machine) *Server {
	s := &Server{
		registry:  registry,
		rateLimit: NewRateLimiter(20, 40),
	}
	s.machine.Store(m)

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /", s.handleConnect)
	s.mux.HandleFunc("GET /send", s.handleSend)
	s.mux.HandleFunc("GET /echo", s.handleEcho)
	s.mux.HandleFunc("GET /login", s.handleLogin)
	s.mux.HandleFunc("GET /register", s.handleRegister)

	return s
}

// SwapMachine atomically replaces the interpreter a reloaded script
// should now be driven by. Live sessions keep their stateIndex
// unchanged; it is not re-mapped against the new graph, so it names
// the same state only if the reloaded script kept the same state
// ordering.
func (s *Server) SwapMachine(m *engine.Machine) {
	s.machine.Store(m)
}

func (s *Server) currentMachine() *engine.Machine {
	return s.machine.Load()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()
	ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
	r = r.WithContext(ctx)

	ip := clientIP(r)
	if !s.rateLimit.Allow(ip) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	start := time.Now()
	s.mux.ServeHTTP(w, r)
	logger.Debug("httpapi: request", "method", r.Method, "path", r.URL.Path, "request_id", reqID, "dur", time.Since(start))
}

type ctxKey int

const ctxKeyRequestID ctxKey = iota

// RateLimiter applies per-IP request rate limiting, grounded on the
// teacher's internal/relay bandwidth-metering limiter.
type RateLimiter struct {
	mu    sync.Mutex
	rate  rate.Limit
	burst int
	byIP  map[string]*rate.Limiter
}

func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	return &RateLimiter{rate: rate.Limit(reqPerSec), burst: burst, byIP: make(map[string]*rate.Limiter)}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	l, ok := rl.byIP[ip]
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.byIP[ip] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
