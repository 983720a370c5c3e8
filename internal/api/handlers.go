// Package api is the HTTP management surface: the command layer for
// creating, editing and cancelling scheduled messages, plus scheduler
// lifecycle and health.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"schedbot/internal/model"
	"schedbot/internal/schedule"
	"schedbot/internal/scheduler"
)

type Handler struct {
	svc   *schedule.Service
	sched *scheduler.Scheduler
}

func NewHandler(svc *schedule.Service, sched *scheduler.Scheduler) *Handler {
	return &Handler{svc: svc, sched: sched}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schedulerState(h.sched))
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, schedulerState(h.sched))
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, schedulerState(h.sched))
}

func schedulerState(s *scheduler.Scheduler) map[string]any {
	state := map[string]any{
		"running": s.IsRunning(),
		"ticks":   s.Ticks(),
	}
	if last := s.LastTick(); !last.IsZero() {
		state["lastTick"] = last
	}
	return state
}

type messageJSON struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	TargetKind  string     `json:"targetKind"`
	TargetID    string     `json:"targetId"`
	TopicID     *int       `json:"topicId,omitempty"`
	GroupID     *string    `json:"groupId,omitempty"`
	Content     string     `json:"content"`
	ScheduledAt time.Time  `json:"scheduledAt"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retryCount"`
	LastError   *string    `json:"lastError,omitempty"`
	ExecutedAt  *time.Time `json:"executedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func toMessageJSON(m model.ScheduledMessage) messageJSON {
	return messageJSON{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		TargetKind:  string(m.TargetKind),
		TargetID:    m.TargetID,
		TopicID:     m.TopicID,
		GroupID:     m.GroupID,
		Content:     m.Content,
		ScheduledAt: m.ScheduledAt,
		Status:      string(m.Status),
		RetryCount:  m.RetryCount,
		LastError:   m.LastError,
		ExecutedAt:  m.ExecutedAt,
		CreatedAt:   m.CreatedAt,
	}
}

type createMessageRequest struct {
	OwnerID     string    `json:"ownerId"`
	TargetKind  string    `json:"targetKind"`
	TargetID    string    `json:"targetId"`
	TopicID     *int      `json:"topicId"`
	GroupID     *string   `json:"groupId"`
	Content     string    `json:"content"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	msg, err := h.svc.Create(r.Context(), schedule.CreateRequest{
		OwnerID:     req.OwnerID,
		TargetKind:  model.TargetKind(req.TargetKind),
		TargetID:    req.TargetID,
		TopicID:     req.TopicID,
		GroupID:     req.GroupID,
		Content:     req.Content,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageJSON(msg))
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}

	var status *model.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := model.Status(raw)
		status = &s
	}
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.svc.List(r.Context(), owner, status, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]messageJSON, 0, len(items))
	for _, m := range items {
		out = append(out, toMessageJSON(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}

	msg, err := h.svc.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageJSON(msg))
}

type editMessageRequest struct {
	OwnerID     string     `json:"ownerId"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	Content     *string    `json:"content"`
}

func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	msg, err := h.svc.Edit(r.Context(), schedule.EditRequest{
		OwnerID:     req.OwnerID,
		ID:          chi.URLParam(r, "id"),
		ScheduledAt: req.ScheduledAt,
		Content:     req.Content,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageJSON(msg))
}

type cancelMessageRequest struct {
	OwnerID string `json:"ownerId"`
}

func (h *Handler) CancelMessage(w http.ResponseWriter, r *http.Request) {
	var req cancelMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	if err := h.svc.Cancel(r.Context(), req.OwnerID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (h *Handler) MessageLogs(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 50)

	logs, err := h.svc.Logs(r.Context(), owner, chi.URLParam(r, "id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": logs})
}

type preferencesJSON struct {
	OwnerID              string    `json:"ownerId"`
	Timezone             string    `json:"timezone"`
	MaxPending           int       `json:"maxPending"`
	NotificationsEnabled bool      `json:"notificationsEnabled"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

func toPreferencesJSON(p model.UserPreferences) preferencesJSON {
	return preferencesJSON{
		OwnerID:              p.OwnerID,
		Timezone:             p.Timezone,
		MaxPending:           p.MaxPending,
		NotificationsEnabled: p.NotificationsEnabled,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.svc.Preferences(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreferencesJSON(prefs))
}

type updatePreferencesRequest struct {
	Timezone             *string `json:"timezone"`
	MaxPending           *int    `json:"maxPending"`
	NotificationsEnabled *bool   `json:"notificationsEnabled"`
}

func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req updatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	prefs, err := h.svc.UpdatePreferences(r.Context(), chi.URLParam(r, "owner"), model.PreferencePatch{
		Timezone:             req.Timezone,
		MaxPending:           req.MaxPending,
		NotificationsEnabled: req.NotificationsEnabled,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreferencesJSON(prefs))
}

// writeServiceError maps schedule-service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, schedule.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, schedule.ErrNotPending):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, schedule.ErrPendingLimit):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, schedule.ErrTimeNotFuture),
		errors.Is(err, schedule.ErrOwnerEmpty),
		errors.Is(err, schedule.ErrContentEmpty),
		errors.Is(err, schedule.ErrContentTooLong),
		errors.Is(err, schedule.ErrInvalidTarget),
		errors.Is(err, schedule.ErrNothingToEdit),
		errors.Is(err, schedule.ErrInvalidPrefs):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
