// Package server implements the inspector: a single-process HTTP service
// holding the content-addressed object store, the callable registry, the
// breakpoint table, and the table of in-flight paused calls.
package server

import (
	"context"
	"net/http"
	"time"

	golog "github.com/ipfs/go-log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = golog.Logger("cideldill-server")

// Server wires together the content store, breakpoint table, pause
// controller, call table, and callable registry behind an HTTP surface.
type Server struct {
	cfg Config

	content   *ContentStore
	callables *CallableRegistry
	breaks    *BreakpointTable
	pauses    *PauseController
	calls     *CallTable
	ids       *callIDGenerator
	metrics   *metrics

	httpServer *http.Server
}

// New constructs a Server from cfg, validating it first.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Each Server gets its own registry rather than prometheus.
	// DefaultRegisterer: tests routinely construct more than one Server in
	// a process, and a shared default registry would
	// panic on the second registration of the same metric names.
	registry := prometheus.NewRegistry()

	s := &Server{
		cfg:       cfg,
		content:   NewContentStore(),
		callables: newCallableRegistry(),
		breaks:    newBreakpointTable(),
		pauses:    newPauseController(),
		calls:     NewCallTable(),
		ids:       newCallIDGenerator(),
		metrics:   newMetrics(registry),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.httpServer = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	return s, nil
}

// Breakpoints exposes the breakpoint table for operator-facing code: the
// UI layer mutates it, and tests drive it directly.
func (s *Server) Breakpoints() *BreakpointTable { return s.breaks }

// PendingCalls returns the call_ids currently paused awaiting an
// operator-delivered action, for operator-facing listings.
func (s *Server) PendingCalls() []string { return s.pauses.CallIDs() }

// Calls exposes the call table for operator-facing code and tests.
func (s *Server) Calls() *CallTable { return s.calls }

// Content exposes the content store directly, for operator-facing code and
// tests. The store is append-only: it offers no way to remove a block.
func (s *Server) Content() *ContentStore { return s.content }

// Handler returns the server's HTTP handler without binding a listener,
// for use with httptest.NewServer in tests and any embedder that wants to
// mount the inspector behind its own listener.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ListenAndServe starts the HTTP server and blocks until it stops or ctx is
// canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warnf("cideldill: server shutdown: %s", err)
		}
	}()

	if s.cfg.RendezvousTimeout > 0 {
		go s.sweepRendezvous(ctx, time.Duration(s.cfg.RendezvousTimeout)*time.Second)
	}

	log.Infof("cideldill: inspector listening on %s", s.cfg.ListenAddr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// sweepRendezvous periodically abandons rendezvous older than maxAge, the
// server-side counterpart to the client's poll deadline (§4.7's GC valve).
func (s *Server) sweepRendezvous(ctx context.Context, maxAge time.Duration) {
	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if abandoned := s.pauses.Sweep(maxAge); len(abandoned) > 0 {
				log.Warnf("cideldill: swept %d abandoned rendezvous (%v)", len(abandoned), abandoned)
			}
		}
	}
}
