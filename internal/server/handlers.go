package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/gearbase/geartrack/internal/models"
)

// requireSynced guards projection-backed endpoints. Before the historical
// batch has been ingested an empty projection means "state unknown", not
// "nothing checked out", so the server refuses to answer instead.
func (s *HTTPServer) requireSynced(w http.ResponseWriter) bool {
	if s.tracker.Synced() {
		return true
	}

	s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
		"error":     "state unknown",
		"synced":    false,
		"message":   "Historical log batch has not been ingested yet",
		"timestamp": time.Now().UTC(),
	})
	return false
}

// Health Handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"synced":          s.tracker.Synced(),
		"metrics_enabled": s.config.EnableMetrics,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// detailedHealthHandler returns detailed health status
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	storageHealthy := s.storage.Ping() == nil

	status := "healthy"
	if !storageHealthy || !s.tracker.IsRunning() {
		status = "degraded"
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"components": map[string]interface{}{
			"storage": storageHealthy,
			"tracker": s.tracker.IsRunning(),
			"synced":  s.tracker.Synced(),
		},
	}

	s.writeJSON(w, http.StatusOK, health)
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	stats := map[string]interface{}{
		"timestamp":       time.Now().UTC(),
		"storage":         storageStats,
		"tracker":         s.tracker.Status(),
		"catalog_refresh": s.catalog.LastRefresh(),
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// Projection Handlers

// listItemsHandler returns the projected items, optionally narrowed by a
// case-insensitive name query and a status filter
func (s *HTTPServer) listItemsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireSynced(w) {
		return
	}

	query := r.URL.Query().Get("q")
	statusParam := r.URL.Query().Get("status")

	var status models.ItemStatus
	if statusParam != "" {
		status = models.ItemStatus(statusParam)
		if status != models.StatusInOffice && status != models.StatusCheckedOut {
			s.writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
			return
		}
	}

	items := s.tracker.Search(query, status)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
		"query": query,
	})
}

// getItemHandler returns the projection for one item
func (s *HTTPServer) getItemHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireSynced(w) {
		return
	}

	vars := mux.Vars(r)
	item, ok := s.tracker.Item(vars["id"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "Item not found", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, item)
}

// countsHandler returns summary counts over the projection
func (s *HTTPServer) countsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireSynced(w) {
		return
	}

	s.writeJSON(w, http.StatusOK, s.tracker.Counts())
}

// holdersHandler returns checked-out items grouped by holder
func (s *HTTPServer) holdersHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireSynced(w) {
		return
	}

	groups := s.tracker.Holders()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"holders": groups,
		"total":   len(groups),
	})
}

// overdueHandler returns the overdue report, evaluated at as_of when given
func (s *HTTPServer) overdueHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireSynced(w) {
		return
	}

	now := time.Now().UTC()
	if asOf := r.URL.Query().Get("as_of"); asOf != "" {
		parsed, err := time.Parse(time.RFC3339, asOf)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid as_of timestamp, expected RFC3339", err)
			return
		}
		now = parsed
	}

	s.writeJSON(w, http.StatusOK, s.tracker.Overdue(now))
}

// statusHandler returns ingest progress. Unlike the projection endpoints it
// answers before sync so clients can poll for readiness.
func (s *HTTPServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.Status())
}

// Log Handlers

// listLogsHandler lists log entries, newest first
func (s *HTTPServer) listLogsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	filter := models.LogFilter{
		Limit:  limit,
		Offset: offset,
	}
	if itemID := r.URL.Query().Get("item_id"); itemID != "" {
		filter.ItemID = &itemID
	}
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		filter.UserID = &userID
	}
	if actionParam := r.URL.Query().Get("action"); actionParam != "" {
		action := models.Action(actionParam)
		if !action.Valid() {
			s.writeError(w, http.StatusBadRequest, "Invalid action filter", nil)
			return
		}
		filter.Action = &action
	}

	entries, err := s.storage.GetLogEntries(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve log entries", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   entries,
		"limit":  limit,
		"offset": offset,
		"total":  len(entries),
	})
}

// appendLogHandler appends one log entry. The projection picks it up on the
// next feed poll rather than synchronously.
func (s *HTTPServer) appendLogHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ItemID    string        `json:"item_id"`
		ItemName  string        `json:"item_name"`
		Action    models.Action `json:"action"`
		UserID    string        `json:"user_id"`
		UserName  string        `json:"user_name"`
		Timestamp time.Time     `json:"timestamp"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if request.ItemID == "" {
		s.writeError(w, http.StatusBadRequest, "item_id is required", nil)
		return
	}
	if !request.Action.Valid() {
		s.writeError(w, http.StatusBadRequest, "action must be check_in or check_out", nil)
		return
	}
	if request.Timestamp.IsZero() {
		request.Timestamp = time.Now().UTC()
	}

	entry := &models.LogEntry{
		ItemID:    request.ItemID,
		ItemName:  request.ItemName,
		Action:    request.Action,
		UserID:    request.UserID,
		UserName:  request.UserName,
		Timestamp: request.Timestamp,
	}

	if err := s.storage.AppendLogEntry(r.Context(), entry); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to append log entry", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Log entry appended",
		"id":      entry.ID,
	})
}

// Catalog Handlers

// catalogItemsHandler lists catalog items
func (s *HTTPServer) catalogItemsHandler(w http.ResponseWriter, r *http.Request) {
	items := s.catalog.ItemList()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

// catalogUsersHandler lists catalog users
func (s *HTTPServer) catalogUsersHandler(w http.ResponseWriter, r *http.Request) {
	users := s.catalog.UserList()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"total": len(users),
	})
}
