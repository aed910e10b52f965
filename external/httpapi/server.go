package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/foxseedlab/telesession/internal/metrics"
	"github.com/foxseedlab/telesession/internal/session"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 60 * time.Second
	idleTimeout     = 90 * time.Second
	maxRequestBytes = 1 << 20
)

// Server exposes the session operations to UI and consumer layers.
type Server struct {
	manager *session.Manager
	router  *mux.Router
	server  *http.Server
}

func NewServer(addr string, allowedOrigins []string, manager *session.Manager) *Server {
	s := &Server{
		manager: manager,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s.server = &http.Server{
		Addr:         addr,
		Handler:      c.Handler(s.router),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)

	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)

	api := s.router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/sessions", s.createSessionHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.getSessionHandler).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/start", s.startSessionHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/end", s.endSessionHandler).Methods(http.MethodPost)

	api.HandleFunc("/sessions/{id}/participants", s.addParticipantHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/participants/{pid}", s.removeParticipantHandler).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/participants/{pid}/disconnect", s.disconnectParticipantHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/participants/{pid}/reconnect", s.reconnectParticipantHandler).Methods(http.MethodPost)

	api.HandleFunc("/sessions/{id}/consents", s.logConsentHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/recording/start", s.startRecordingHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/recording/stop", s.stopRecordingHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/messages", s.recordMessageHandler).Methods(http.MethodPost)

	api.HandleFunc("/sessions/{id}/invitations", s.listInvitationsHandler).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/invitations", s.inviteParticipantHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/invitations/{iid}/resolve", s.resolveInvitationHandler).Methods(http.MethodPost)

	api.HandleFunc("/sessions/{id}/compliance-report", s.complianceReportHandler).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("http server shutting down")
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
