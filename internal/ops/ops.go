// Package ops serves liveness and readiness probes for orchestrators.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/esimbot/core/buildinfo"
	"github.com/m3rciful/esimbot/core/logger"
)

const probeTimeout = 3 * time.Second

// Pinger is a dependency whose health gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// NewRouter builds the probe router. Checks are keyed by name.
func NewRouter(checks map[string]Pinger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(2 * probeTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"version": buildinfo.Version,
		})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		failed := probe(req.Context(), checks)
		status, code := "ok", http.StatusOK
		if len(failed) > 0 {
			status, code = "fail", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": status, "failed": failed})
	})
	return r
}

// probe runs all checks concurrently and returns the failing ones with their errors.
func probe(ctx context.Context, checks map[string]Pinger) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		failed = map[string]string{}
	)
	g, gctx := errgroup.WithContext(ctx)
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		name, check := name, checks[name]
		if check == nil {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			err := check.Ping(gctx)
			if err != nil {
				mu.Lock()
				failed[name] = logger.ErrAttr(err)
				mu.Unlock()
				logger.LogEvent(ctx, logger.Ops, slog.LevelWarn, "ops.ready",
					slog.String("status", "fail"),
					slog.String("check", name),
					slog.Duration("duration", logger.Took(start)),
					slog.String("err", logger.ErrAttr(err)),
				)
			}
			// Collected, not propagated: siblings keep running.
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Server runs the probe router until stopped.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr. An empty addr disables the server and returns nil.
func Listen(addr string, checks map[string]Pinger) (*Server, error) {
	if addr == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ops: listen %s: %w", addr, err)
	}
	return &Server{
		srv: &http.Server{
			Handler:           NewRouter(checks),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln: ln,
	}, nil
}

// Addr reports the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		logger.LogEvent(context.Background(), logger.Ops, slog.LevelInfo, "ops.start",
			slog.String("status", "ok"),
			slog.String("listen", s.Addr()),
		)
		if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogEvent(context.Background(), logger.Ops, slog.LevelError, "ops.serve",
				slog.String("status", "fail"),
				slog.String("err", logger.ErrAttr(err)),
			)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight probes.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
