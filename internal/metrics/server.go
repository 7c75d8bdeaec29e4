package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	applog "github.com/qiongqiongyuren/co2yuan3/internal/platform/log"
)

// ReadinessChecker reports whether the service can answer questions.
type ReadinessChecker interface {
	Ready() bool
}

// AdminServer serves /metrics, /healthz and /readyz on its own port.
type AdminServer struct {
	port    int
	metrics *Metrics
	ready   ReadinessChecker
	httpSrv *http.Server
}

func NewAdminServer(port int, m *Metrics, ready ReadinessChecker) *AdminServer {
	return &AdminServer{port: port, metrics: m, ready: ready}
}

// Start binds the port and serves in the background. Bind errors are
// returned; later serve errors are logged.
func (s *AdminServer) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin listener: %w", err)
	}
	s.httpSrv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		applog.Info("admin server listening", "addr", ln.Addr().String())
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error("admin server error", "error", err)
		}
	}()
	return nil
}

func (s *AdminServer) Stop(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

func (s *AdminServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.ready == nil || !s.ready.Ready() {
			writeStatus(w, http.StatusServiceUnavailable, "initializing")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	return mux
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
