package httpapi

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Paintersrp/workit/internal/api"
	"github.com/Paintersrp/workit/internal/metrics"
)

// DefaultAddr is where `workit run --control-addr` listens and where
// `workit status` and `workit stop` look for it.
const DefaultAddr = "127.0.0.1:7663"

const shutdownGrace = 2 * time.Second

// Config controls construction of the API server.
type Config struct {
	// Addr is rebound to loopback when it names every interface.
	Addr       string
	Controller api.Controller
	// Listener, when set, is served instead of binding Addr.
	Listener net.Listener
}

// Server exposes the supervisor of one `workit run` over local HTTP.
type Server struct {
	ctrl     api.Controller
	addr     string
	srv      *http.Server
	listener net.Listener
}

// NewServer constructs a Server. Nothing is bound until Listen or Run.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Controller == nil {
		return nil, errors.New("controller is required")
	}
	s := &Server{
		ctrl:     cfg.Controller,
		addr:     loopbackAddr(cfg.Addr),
		listener: cfg.Listener,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("POST /api/v1/shutdown", s.handleShutdown)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s, nil
}

// Listen binds the server address so that bind failures surface before
// serving starts. Calling it again is a no-op.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx stdcontext.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.srv.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := stdcontext.WithTimeout(stdcontext.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Addr reports the bound address once listening, the configured one before.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Handler exposes the route multiplexer.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.ctrl.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	result, err := s.ctrl.RequestShutdown(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"shutdown": result})
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	if errors.Is(err, api.ErrNotRunning) {
		status, code = http.StatusConflict, "not_running"
	}
	writeJSON(w, status, errorBody{Code: code, Message: err.Error()})
}

// loopbackAddr keeps the control API off external interfaces.
func loopbackAddr(addr string) string {
	if strings.TrimSpace(addr) == "" {
		return DefaultAddr
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
