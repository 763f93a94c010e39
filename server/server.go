package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"cinethos/core/session"
	"cinethos/logger"
	"cinethos/metrics"
	"cinethos/notify"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Controller is the part of session.Controller the status API exposes.
type Controller interface {
	Snapshot() session.Snapshot
	SelectQuality(index int) error
	SelectSubtitle(index int) error
	Subscribe() (<-chan session.Snapshot, func())
}

// Options wires optional collaborators into the status server.
type Options struct {
	Metrics       *metrics.Metrics
	Notifications *notify.Recorder
	Logger        *zap.Logger
}

// Server exposes the watch session over HTTP and websocket.
type Server struct {
	ctrl    Controller
	metrics *metrics.Metrics
	notes   *notify.Recorder
	log     *zap.Logger
	router  *mux.Router
	http    *http.Server
}

// New builds the router. Nothing listens until Start.
func New(ctrl Controller, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.Named("server")
	}
	s := &Server{
		ctrl:    ctrl,
		metrics: opts.Metrics,
		notes:   opts.Notifications,
		log:     opts.Logger,
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// CORS middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if req.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/session", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/session/quality", s.handleSelect(s.ctrl.SelectQuality)).Methods(http.MethodPost)
	r.HandleFunc("/api/session/subtitle", s.handleSelect(s.ctrl.SelectSubtitle)).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications", s.handleNotifications).Methods(http.MethodGet)
	r.HandleFunc("/ws/session", s.handleSessionSocket).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background. It returns once the
// listener is bound, so the address is usable immediately.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.http = &http.Server{
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server stopped", zap.Error(err))
		}
	}()
	s.log.Info("status server listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

// Shutdown stops a started server. Open websockets are closed by the caller
// stopping the controller, which ends every subscription.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	items := []notify.Notification{}
	if s.notes != nil {
		items = s.notes.Items()
	}
	writeJSON(w, http.StatusOK, items)
}

type selectRequest struct {
	Index *int `json:"index"`
}

func (s *Server) handleSelect(apply func(int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
			writeError(w, http.StatusBadRequest, "body must be {\"index\": n}")
			return
		}
		if err := apply(*req.Index); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidQuality), errors.Is(err, session.ErrInvalidSubtitle):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("write response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
