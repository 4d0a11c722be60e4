// Package api exposes the monitor's on-demand status query over a small
// read-only HTTP surface: the multi-operator liveness report, per-operator
// status, the retained alert history, and a health probe.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/kelbelss/heartbeat-avs/monitor"
)

var log = logrus.WithField("prefix", "api")

// StatusProvider is the query capability the API serves. The monitor service
// satisfies it.
type StatusProvider interface {
	Report(ctx context.Context) (*monitor.StatusReport, error)
	RecentAlerts() []string
}

// Server is the read-only HTTP API server.
type Server struct {
	provider StatusProvider
	router   *mux.Router
	server   *http.Server
	addr     string
}

// NewServer creates an API server listening on addr.
func NewServer(provider StatusProvider, addr string) *Server {
	s := &Server{
		provider: provider,
		addr:     addr,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/operators", s.getReport).Methods("GET")
	api.HandleFunc("/operators/{address}", s.getOperator).Methods("GET")
	api.HandleFunc("/alerts", s.getAlerts).Methods("GET")
	api.HandleFunc("/health", s.getHealth).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	s.router.Use(c.Handler)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(jsonMiddleware)
}

// Start the HTTP server. Serves until Stop is called.
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.WithField("addr", s.addr).Info("Status API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("Status API server stopped")
	}
}

// Stop the HTTP server.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// Status of the API service.
func (_ *Server) Status() error {
	return nil
}

// Router returns the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.provider.Report(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) getOperator(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	report, err := s.provider.Report(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	for _, op := range report.Operators {
		if strings.EqualFold(op.Operator, address) {
			writeJSON(w, http.StatusOK, op)
			return
		}
	}
	writeError(w, http.StatusNotFound, "operator not observed")
}

func (s *Server) getAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": s.provider.RecentAlerts(),
	})
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"elapsed": time.Since(start),
		}).Debug("Handled request")
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Could not encode response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
