// internal/infra/webhook/server.go
package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"psirt_report_bot/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	tokenHeader       = "X-Webhook-Token"
	defaultRunTimeout = 5 * time.Minute
)

// Server accepts run triggers from the messaging service's webhook and serves
// health and metrics endpoints. Triggers arriving during a run coalesce into one follow-up run.
type Server struct {
	reports    app.ReportService
	token      string
	logger     *logrus.Entry
	triggers   chan struct{}
	runTimeout time.Duration
	mux        *chi.Mux
	srv        *http.Server
}

func NewServer(addr string, reports app.ReportService, token string, gatherer prometheus.Gatherer, logger *logrus.Entry) *Server {
	s := &Server{
		reports:    reports,
		token:      token,
		logger:     logger,
		triggers:   make(chan struct{}, 1),
		runTimeout: defaultRunTimeout,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.With(s.requireToken).Post("/webhook", s.handleWebhook)
	s.mux = r

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves HTTP and processes triggers until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.processTriggers(ctx)

	s.logger.WithField("addr", s.srv.Addr).Info("HTTP server listening")
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) processTriggers(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.triggers:
			s.runOnce(ctx)
		}
	}
}

func (s *Server) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()
	summary, err := s.reports.Run(runCtx)
	if err != nil {
		s.logger.WithError(err).Error("Webhook-triggered run failed")
		return
	}
	s.logger.WithField("run_id", summary.RunID).Info("Webhook-triggered run finished")
}

// trigger queues a run; it reports false when one is already queued.
func (s *Server) trigger() bool {
	select {
	case s.triggers <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(tokenHeader)), []byte(s.token)) != 1 {
			s.logger.WithField("remote", r.RemoteAddr).Warn("Webhook call with invalid token")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	queued := s.trigger()
	s.logger.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"queued":     queued,
	}).Info("Webhook received")
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
