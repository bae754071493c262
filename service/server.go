// Package service exposes the test runner over HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/sync/semaphore"

	"github.com/ethereum-optimism/infra/op-cyrunner/metrics"
	"github.com/ethereum-optimism/infra/op-cyrunner/runner"
)

const (
	RunTestRoute = "/run-test"
	HealthzRoute = "/healthz"

	DefaultMaxUploadSize int64 = 10 << 20

	readHeaderTimeout = 10 * time.Second
)

// Runner executes one uploaded spec. *runner.Runner implements it.
type Runner interface {
	Run(ctx context.Context, runID string, upload runner.Upload) (*runner.Outcome, error)
}

type Config struct {
	ListenAddr string
	ListenPort int
	// UploadDir is where request bodies are spooled before staging.
	UploadDir string
	// MaxUploadSize bounds the request body. Zero means DefaultMaxUploadSize.
	MaxUploadSize int64
	// MaxConcurrentRuns bounds concurrent runs. Zero means unlimited.
	MaxConcurrentRuns int64
}

func (c Config) Check() error {
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port %d", c.ListenPort)
	}
	if c.UploadDir == "" {
		return errors.New("upload directory is required")
	}
	if c.MaxUploadSize < 0 {
		return errors.New("max upload size must not be negative")
	}
	if c.MaxConcurrentRuns < 0 {
		return errors.New("max concurrent runs must not be negative")
	}
	return nil
}

type Server struct {
	log    log.Logger
	runner Runner

	listenAddr    string
	uploadDir     string
	maxUploadSize int64
	sem           *semaphore.Weighted

	handler  http.Handler
	server   *http.Server
	listener net.Listener
}

func New(logger log.Logger, cfg Config, r Runner) (*Server, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errors.New("runner is required")
	}
	s := &Server{
		log:           logger,
		runner:        r,
		listenAddr:    net.JoinHostPort(cfg.ListenAddr, strconv.Itoa(cfg.ListenPort)),
		uploadDir:     cfg.UploadDir,
		maxUploadSize: cfg.MaxUploadSize,
	}
	if s.maxUploadSize == 0 {
		s.maxUploadSize = DefaultMaxUploadSize
	}
	if cfg.MaxConcurrentRuns > 0 {
		s.sem = semaphore.NewWeighted(cfg.MaxConcurrentRuns)
	}

	router := mux.NewRouter()
	router.HandleFunc(RunTestRoute, s.handleRunTest).Methods(http.MethodPost)
	router.HandleFunc(HealthzRoute, s.handleHealthz).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	})
	s.handler = c.Handler(router)
	return s, nil
}

// Handler is the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listenAddr, err)
	}
	s.listener = listener
	// No write timeout: a response is only written once the run finishes.
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server stopped unexpectedly", "err", err)
			metrics.RecordError(metrics.ErrorHTTPServer)
		}
	}()
	return nil
}

// Addr is the bound listen address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop waits for in-flight runs until ctx is done, then closes the remaining connections.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.Join(err, s.server.Close())
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respond(w, HealthzRoute, http.StatusOK, "text/plain; charset=utf-8", []byte("OK"))
}

func (s *Server) respond(w http.ResponseWriter, route string, status int, contentType string, body []byte) {
	metrics.RecordHTTPResponse(route, status)
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.log.Debug("Failed to write response", "route", route, "err", err)
	}
}
