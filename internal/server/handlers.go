package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"claudeview/internal/ingest"
	"claudeview/internal/notify"
	"claudeview/internal/types"
)

// =============================================================================
// CONVERSATIONS
// =============================================================================

// handleConversations handles GET /api/conversations: a raw snapshot with
// no read state. Remote clients diff it themselves.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	threads, err := s.conversations.FetchThreads(r.Context(), q)
	if err != nil {
		s.logger.Error("fetch conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read conversations")
		return
	}
	if threads == nil {
		threads = []types.Thread{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.conversations.Stats(r.Context())
	if err != nil {
		s.logger.Error("conversation stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// =============================================================================
// VIEWS
// =============================================================================

// handleCreateView handles POST /api/views. The body is an optional Query.
func (s *Server) handleCreateView(w http.ResponseWriter, r *http.Request) {
	var q types.Query
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := s.views.Create(r.Context(), q)
	if err != nil {
		// the view exists; the client may retry with PUT .../query
		s.logger.Warn("initial view load failed", zap.String("view", v.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, v.Snapshot())
}

func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	v, err := s.views.Get(mux.Vars(r)["id"])
	if err != nil {
		s.viewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

func (s *Server) handleSetViewQuery(w http.ResponseWriter, r *http.Request) {
	var q types.Query
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := s.views.SetQuery(r.Context(), mux.Vars(r)["id"], q)
	if err != nil {
		s.viewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

func (s *Server) handleShowThread(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	moved, err := s.views.Reveal(vars["id"], vars["threadID"])
	if err != nil {
		s.viewError(w, err)
		return
	}
	v, err := s.views.Get(vars["id"])
	if err != nil {
		s.viewError(w, err)
		return
	}
	view := v.Pipeline().Store()
	writeJSON(w, http.StatusOK, map[string]any{
		"revealed":    moved,
		"threadId":    vars["threadID"],
		"unreadCount": view.UnreadCount(vars["threadID"]),
		"totalUnread": view.TotalUnread(),
	})
}

func (s *Server) handleShowAll(w http.ResponseWriter, r *http.Request) {
	moved, err := s.views.RevealAll(mux.Vars(r)["id"])
	if err != nil {
		s.viewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revealed": moved, "totalUnread": 0})
}

func (s *Server) handleDeleteView(w http.ResponseWriter, r *http.Request) {
	if err := s.views.Remove(mux.Vars(r)["id"]); err != nil {
		s.viewError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) viewError(w http.ResponseWriter, err error) {
	if errors.Is(err, ingest.ErrViewNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("view operation", zap.Error(err))
	writeError(w, http.StatusBadGateway, err.Error())
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := parseInt(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	list, err := s.inbox.List(notify.Filter{
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Event:      r.URL.Query().Get("event"),
		Limit:      limit,
	})
	if err != nil {
		s.notificationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *Server) handleNotificationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.inbox.Stats()
	if err != nil {
		s.notificationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.MarkRead(mux.Vars(r)["id"]); err != nil {
		s.notificationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.inbox.MarkAllRead()
	if err != nil {
		s.notificationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.Delete(mux.Vars(r)["id"]); err != nil {
		s.notificationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) notificationError(w http.ResponseWriter, err error) {
	if errors.Is(err, notify.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("notification operation", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "notification store error")
}

// =============================================================================
// HOOKS
// =============================================================================

// handleHook handles POST /api/hooks, the target of a Claude Code hook
// command such as `curl -s -X POST --data-binary @- http://.../api/hooks`.
func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	n, err := s.inbox.AddHook(body)
	if err != nil {
		if errors.Is(err, notify.ErrInvalidHook) {
			s.hooksReceived.WithLabelValues("", "invalid").Inc()
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.hooksReceived.WithLabelValues("", "error").Inc()
		s.notificationError(w, err)
		return
	}
	s.hooksReceived.WithLabelValues(n.Event, "stored").Inc()
	writeJSON(w, http.StatusAccepted, n)
}
