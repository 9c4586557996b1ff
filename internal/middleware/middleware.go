// Package middleware holds HTTP middleware for the terminal-facing API:
// terminal-token authentication, request logging, and CORS.
//
// Built around a header-parse-then-validate shape and a request-id
// wrapper. Terminals authenticate with a single opaque bearer token
// compared by sha256, not a JWT, so there is no blacklist or claim set
// here — only a terminal lookup.
package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/domain"
	"github.com/technosupport/canteen-authz/internal/ratelimit"
)

type ctxKey int

const terminalCtxKey ctxKey = iota

// terminalCacheTTL bounds how stale a cached terminal lookup can be: a
// freshly-blocked terminal is rejected again within this window rather than
// only on its next cache eviction.
const terminalCacheTTL = 30 * time.Second

// TerminalLookup is the subset of internal/data needed to authenticate a
// terminal token.
type TerminalLookup interface {
	GetByTokenHash(ctx context.Context, hash string) (*domain.Terminal, error)
}

type cachedTerminal struct {
	terminal *domain.Terminal
	at       time.Time
}

// TerminalAuth verifies the X-Terminal-Token header against every request.
// Every terminal-protected route hits this, so a token-hash -> Terminal LRU
// cache sits in front of the DB lookup, sized and TTL'd the same way a
// dedup-key cache bounds staleness against a fixed key set.
type TerminalAuth struct {
	terminals TerminalLookup
	cache     *lru.Cache[string, cachedTerminal]
}

func NewTerminalAuth(terminals TerminalLookup) *TerminalAuth {
	cache, _ := lru.New[string, cachedTerminal](1024)
	return &TerminalAuth{terminals: terminals, cache: cache}
}

// Middleware verifies the X-Terminal-Token header against the stored
// sha256 hash and injects the resolved Terminal into the request context.
func (m *TerminalAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Terminal-Token")
		if token == "" {
			writeUnauthorized(w)
			return
		}

		sum := sha256.Sum256([]byte(token))
		hash := hex.EncodeToString(sum[:])

		terminal, err := m.lookup(r.Context(), hash)
		if err != nil {
			writeUnauthorized(w)
			return
		}
		if !terminal.IsActive() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"ok":false,"code":"TERMINAL_BLOCKED","message":"terminal is blocked"}`))
			return
		}

		ctx := context.WithValue(r.Context(), terminalCtxKey, terminal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *TerminalAuth) lookup(ctx context.Context, hash string) (*domain.Terminal, error) {
	if cached, ok := m.cache.Get(hash); ok && time.Since(cached.at) < terminalCacheTTL {
		return cached.terminal, nil
	}

	terminal, err := m.terminals.GetByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	m.cache.Add(hash, cachedTerminal{terminal: terminal, at: time.Now()})
	return terminal, nil
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"ok":false,"code":"TERMINAL_UNAUTHORIZED","message":"missing or unknown terminal token"}`))
}

// TerminalFromContext returns the authenticated terminal injected by
// TerminalAuth.Middleware, if any.
func TerminalFromContext(ctx context.Context) (*domain.Terminal, bool) {
	t, ok := ctx.Value(terminalCtxKey).(*domain.Terminal)
	return t, ok
}

// CORS allows cross-origin requests from cashier terminal front-ends.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Terminal-Token")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit rejects requests once the authenticated terminal exceeds config
// for the given scope — bounds a misbehaving terminal, not an end-user.
// Must run after TerminalAuth.Middleware.
func RateLimit(limiter *ratelimit.Limiter, scope ratelimit.Scope, config ratelimit.LimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			terminal, ok := TerminalFromContext(r.Context())
			key := "anonymous"
			if ok {
				key = terminal.ID.String()
			}

			decision, err := limiter.Check(r.Context(), scope, key, config)
			if err != nil {
				// Redis unavailable: fail open rather than block payments.
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"ok":false,"code":"RATE_LIMITED","message":"too many requests"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestLogger stamps every request with an id and logs method, path,
// status, and duration.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.New().String()
		start := time.Now()
		w.Header().Set("X-Request-ID", reqID)

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		log.Printf("[REQ:%s] %s %s -> %d in %v", reqID, r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}
