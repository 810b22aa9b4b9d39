// internal/webhook/server.go
package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"application-sync/internal/common/config"
	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/common/logger"
	"application-sync/internal/common/metrics"
	"application-sync/internal/common/observability"
	"application-sync/internal/models"
)

const (
	signatureHeader = "X-Discourse-Event-Signature"
	eventHeader     = "X-Discourse-Event"

	maxBodyBytes = 1 << 20
)

// EventHandler is the engine surface the webhook server drives.
type EventHandler interface {
	HandleTopicEvent(ctx context.Context, ev models.TopicEvent) error
}

// Server is the inbound HTTP surface: the forum webhook endpoint plus
// health and metrics.
type Server struct {
	handler      EventHandler
	secrets      []string
	categoryID   int64
	forumBaseURL string
	obs          *observability.Observability
	log          logger.Logger
	mux          *http.ServeMux
	srv          *http.Server
}

// NewServer builds the webhook server from configuration.
func NewServer(cfg *config.Config, handler EventHandler, obs *observability.Observability, log logger.Logger) *Server {
	s := &Server{
		handler:      handler,
		secrets:      cfg.Forum.WebhookSecrets,
		categoryID:   cfg.Forum.TargetCategoryID(cfg.Chat.Mode),
		forumBaseURL: cfg.Forum.BaseURL,
		obs:          obs,
		log:          log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/forum", s.handleForumEvent)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	s.mux = mux

	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.ListenHost, cfg.Server.ListenPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the route mux for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Register mounts an additional route, e.g. the interaction endpoint.
func (s *Server) Register(path string, h http.Handler) {
	s.mux.Handle(path, h)
}

// Start blocks serving HTTP until Shutdown or a listen failure.
func (s *Server) Start() error {
	s.log.Info("Webhook server listening", map[string]interface{}{
		"addr": s.srv.Addr,
	})
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","time":%q}`, time.Now().UTC().Format(time.RFC3339))
}

func (s *Server) handleForumEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	outcome := s.processForumEvent(w, r)
	metrics.WebhookEventsReceived.WithLabelValues(outcome).Inc()
	if s.obs != nil {
		s.obs.RecordEventHandled(r.Context(), "webhook", outcome)
		s.obs.RecordEventDuration(r.Context(), time.Since(start), "webhook")
	}
}

func (s *Server) processForumEvent(w http.ResponseWriter, r *http.Request) string {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return "read_error"
	}

	if !VerifySignature(body, r.Header.Get(signatureHeader), s.secrets) {
		serr := apperrors.NewInvalidSignatureError("signature matched no configured webhook secret")
		s.log.Warn("Webhook signature rejected", map[string]interface{}{
			"remote": r.RemoteAddr,
			"code":   string(serr.Code),
		})
		http.Error(w, serr.Message, http.StatusUnauthorized)
		return "invalid_signature"
	}

	ev, err := ParseTopicEvent(body, r.Header.Get(eventHeader), s.forumBaseURL)
	if err != nil {
		s.log.Warn("Webhook payload rejected", map[string]interface{}{
			"error": err.Error(),
		})
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return "malformed_payload"
	}

	// Events outside the watched category are acknowledged and dropped.
	if s.categoryID != 0 && ev.CategoryID != s.categoryID {
		w.WriteHeader(http.StatusOK)
		return "dropped"
	}

	if err := s.handler.HandleTopicEvent(r.Context(), ev); err != nil {
		s.log.Error("Event handling failed", map[string]interface{}{
			"topic_id": ev.TopicID,
			"error":    err.Error(),
			"code":     string(apperrors.CodeOf(err)),
		})
		http.Error(w, "event handling failed", http.StatusInternalServerError)
		return "error"
	}

	w.WriteHeader(http.StatusOK)
	return "success"
}
