// Package server is the HTTP and WebSocket API: raw conversation snapshots,
// hosted viewer sessions with new-message tracking, the notification inbox,
// the hook receiver and a change feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"claudeview/internal/ingest"
	"claudeview/internal/logs"
	"claudeview/internal/notify"
	"claudeview/internal/types"
)

// Conversations is the snapshot source the API reads from.
type Conversations interface {
	ingest.Source
	Stats(ctx context.Context) (logs.Stats, error)
}

// Config tunes the server.
type Config struct {
	Version       string
	HookRateLimit float64 // requests per second, 0 = unlimited
	HookBurst     int
}

// Server wires the API routes to their collaborators.
type Server struct {
	conversations Conversations
	views         *ingest.Registry
	inbox         *notify.Inbox
	hub           *Hub
	logger        *zap.Logger
	cfg           Config

	hooksReceived *prometheus.CounterVec
	router        *mux.Router
}

// New builds the router. reg receives the server's own collectors; pass nil
// to skip registration.
func New(cfg Config, conversations Conversations, views *ingest.Registry, inbox *notify.Inbox, hub *Hub, reg prometheus.Registerer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	s := &Server{
		conversations: conversations,
		views:         views,
		inbox:         inbox,
		hub:           hub,
		logger:        logger,
		cfg:           cfg,
		hooksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claudeview",
			Subsystem: "hooks",
			Name:      "received_total",
			Help:      "Hook requests received, by event and outcome.",
		}, []string{"event", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(s.hooksReceived)
	}
	s.router = s.routes()
	return s
}

// Hub returns the change feed hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/ws", s.hub)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(logRequests(s.logger))

	api.HandleFunc("/conversations", s.handleConversations).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	api.HandleFunc("/views", s.handleCreateView).Methods(http.MethodPost)
	api.HandleFunc("/views/{id}", s.handleGetView).Methods(http.MethodGet)
	api.HandleFunc("/views/{id}", s.handleDeleteView).Methods(http.MethodDelete)
	api.HandleFunc("/views/{id}/query", s.handleSetViewQuery).Methods(http.MethodPut)
	api.HandleFunc("/views/{id}/threads/{threadID}/show", s.handleShowThread).Methods(http.MethodPost)
	api.HandleFunc("/views/{id}/show", s.handleShowAll).Methods(http.MethodPost)

	// read-all and stats before {id} so they are not captured as ids
	api.HandleFunc("/notifications", s.handleListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/stats", s.handleNotificationStats).Methods(http.MethodGet)
	api.HandleFunc("/notifications/read-all", s.handleMarkAllRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}/read", s.handleMarkRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}", s.handleDeleteNotification).Methods(http.MethodDelete)

	var limiter *rate.Limiter
	if s.cfg.HookRateLimit > 0 {
		burst := max(s.cfg.HookBurst, 1)
		limiter = rate.NewLimiter(rate.Limit(s.cfg.HookRateLimit), burst)
	}
	api.Handle("/hooks", rateLimit(limiter, http.HandlerFunc(s.handleHook))).Methods(http.MethodPost)

	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// ConversationsChanged tells every client to refetch.
func (s *Server) ConversationsChanged() {
	s.hub.Broadcast(types.EventEnvelope{EventType: types.EventConversationsChanged})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.cfg.Version,
		"views":   s.views.Len(),
		"clients": s.hub.Len(),
	})
}
