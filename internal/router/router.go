// internal/router/router.go
package router

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"game-bridge/internal/protocol"

	"go.uber.org/zap"
)

// Event describes a finished request for the global hooks.
type Event struct {
	Status   int
	Method   string
	URI      string
	Duration time.Duration
}

// Hook observes every request. It cannot change the response.
type Hook func(Event)

type route struct {
	method  string
	path    string
	handler http.Handler
}

// Router matches (method, literal path) in registration order. Routes and
// hooks are registered during startup; after Seal the tables are read
// without locking.
type Router struct {
	mu     sync.Mutex
	routes []route
	hooks  []Hook
	sealed atomic.Bool
	logger *zap.Logger
}

func New(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{logger: logger}
}

func (r *Router) Register(method, path string, h http.Handler) error {
	if h == nil {
		return fmt.Errorf("route %s %s: nil handler", method, path)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return fmt.Errorf("route %s %s: router sealed", method, path)
	}
	for _, rt := range r.routes {
		if rt.method == method && rt.path == path {
			return fmt.Errorf("route %s %s already registered", method, path)
		}
	}
	r.routes = append(r.routes, route{method: method, path: path, handler: h})
	return nil
}

func (r *Router) Get(path string, h http.HandlerFunc) error {
	return r.Register(http.MethodGet, path, h)
}

func (r *Router) Post(path string, h http.HandlerFunc) error {
	return r.Register(http.MethodPost, path, h)
}

// EveryMatch adds a hook fired once per request, matched or not.
func (r *Router) EveryMatch(h Hook) error {
	if h == nil {
		return errors.New("nil hook")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return errors.New("router sealed")
	}
	r.hooks = append(r.hooks, h)
	return nil
}

// Seal ends registration. ServeHTTP refuses traffic until then.
func (r *Router) Seal() {
	r.mu.Lock()
	r.sealed.Store(true)
	r.mu.Unlock()
}

func (r *Router) Sealed() bool {
	return r.sealed.Load()
}

// Match returns the first handler registered for method and path.
func (r *Router) Match(method, path string) (http.Handler, bool) {
	for _, rt := range r.routes {
		if rt.method == method && rt.path == path {
			return rt.handler, true
		}
	}
	return nil, false
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w}
	var hooks []Hook
	defer func() {
		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		r.fireHooks(hooks, Event{
			Status:   status,
			Method:   req.Method,
			URI:      req.RequestURI,
			Duration: time.Since(start),
		})
	}()

	if !r.sealed.Load() {
		r.mu.Lock()
		hooks = append([]Hook(nil), r.hooks...)
		r.mu.Unlock()
		_ = protocol.WriteError(sw, protocol.NewError(protocol.CodeHostUnavailable, "router not ready"))
		return
	}
	hooks = r.hooks
	r.serve(sw, req)
}

func (r *Router) serve(sw *statusWriter, req *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			r.logger.Error("route handler panic",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Any("reason", rec),
			)
			if sw.status == 0 {
				_ = protocol.WriteError(sw, protocol.NewError(protocol.CodeInternal, "handler failed"))
			}
		}
	}()

	h, ok := r.Match(req.Method, req.URL.Path)
	if !ok {
		_ = protocol.WriteError(sw, protocol.NewError(protocol.CodeRouteNotFound, req.Method+" "+req.URL.Path))
		return
	}
	h.ServeHTTP(sw, req)
}

func (r *Router) fireHooks(hooks []Hook, ev Event) {
	for _, h := range hooks {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Warn("route hook panic",
						zap.String("uri", ev.URI),
						zap.Any("reason", rec),
					)
				}
			}()
			h(ev)
		}()
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	if w.status == 0 {
		w.status = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}
