package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/qiongqiongyuren/co2yuan3/internal/engine"
	"github.com/qiongqiongyuren/co2yuan3/internal/metrics"
	applog "github.com/qiongqiongyuren/co2yuan3/internal/platform/log"
)

// ServerConfig configures the query listener.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig listens on every interface, port 8000. The write
// timeout leaves room for slow local models.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:         "0.0.0.0",
		Port:         8000,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
}

// Querier answers questions; *engine.Gate is the production implementation.
type Querier interface {
	Query(ctx context.Context, question string) (*engine.Response, error)
}

// Server serves POST /query.
type Server struct {
	config  *ServerConfig
	querier Querier
	metrics *metrics.Metrics
	httpSrv *http.Server
}

// NewServer creates the query server. m may be nil.
func NewServer(config *ServerConfig, querier Querier, m *metrics.Metrics) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	return &Server{config: config, querier: querier, metrics: m}
}

// Start binds the listener and serves until Stop. The returned channel
// yields the serve error, if any, once serving ends.
func (s *Server) Start() (<-chan error, error) {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("query listener: %w", err)
	}
	s.httpSrv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		applog.Info("query server listening", "addr", ln.Addr().String())
		err := s.httpSrv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
		close(errCh)
	}()
	return errCh, nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(applog.With("component", "http")))
	if s.metrics != nil {
		r.Use(instrument(s.metrics))
	}
	r.Use(middleware.Recoverer)

	NewQueryHandler(s.querier, s.metrics).RegisterRoutes(r)
	return r
}
