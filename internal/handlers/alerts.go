// Package handlers exposes the dashboard HTTP API consumed by the UI. The
// UI reads alerts and thresholds and issues dismiss, purge, threshold
// updates, and on-demand evaluations; it never constructs alerts itself.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"centinela/internal/alertstore"
	"centinela/internal/models"
	"centinela/internal/storage"
)

// AlertService is the alert lifecycle surface. Implemented by
// alertstore.Store.
type AlertService interface {
	List(ctx context.Context) ([]models.Alert, error)
	Dismiss(ctx context.Context, id string) error
	PurgeDismissed(ctx context.Context) (int, error)
}

// ThresholdRepository persists the singleton rule configuration.
// Implemented by storage.DB.
type ThresholdRepository interface {
	Thresholds(ctx context.Context) (models.Thresholds, error)
	PutThresholds(ctx context.Context, t models.Thresholds) error
}

// EvaluationRunner triggers an on-demand evaluation pass. Implemented by
// service.Service.
type EvaluationRunner interface {
	RunEvaluation(ctx context.Context, trigger string) (int, error)
}

// Handler serves the dashboard API.
type Handler struct {
	alerts     AlertService
	thresholds ThresholdRepository
	evaluator  EvaluationRunner
}

// New creates a Handler.
func New(alerts AlertService, thresholds ThresholdRepository, evaluator EvaluationRunner) *Handler {
	return &Handler{alerts: alerts, thresholds: thresholds, evaluator: evaluator}
}

// Register wires the API routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /alerts", h.listAlerts)
	mux.HandleFunc("POST /alerts/{id}/dismiss", h.dismissAlert)
	mux.HandleFunc("POST /alerts/purge", h.purgeAlerts)
	mux.HandleFunc("GET /thresholds", h.getThresholds)
	mux.HandleFunc("PUT /thresholds", h.putThresholds)
	mux.HandleFunc("POST /evaluate", h.evaluate)
}

// listAlerts returns all alerts, newest first. ?active=1 filters to
// non-dismissed alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if r.URL.Query().Get("active") == "1" {
		active := alerts[:0]
		for _, a := range alerts {
			if !a.Dismissed {
				active = append(active, a)
			}
		}
		alerts = active
	}

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})

	if alerts == nil {
		alerts = []models.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *Handler) dismissAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "alert id is required")
		return
	}

	if err := h.alerts.Dismiss(r.Context(), id); err != nil {
		if errors.Is(err, alertstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) purgeAlerts(w http.ResponseWriter, r *http.Request) {
	n, err := h.alerts.PurgeDismissed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "purged": n})
}

func (h *Handler) getThresholds(w http.ResponseWriter, r *http.Request) {
	t, err := h.thresholds.Thresholds(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNoThresholds) {
			writeJSON(w, http.StatusOK, models.DefaultThresholds())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// putThresholds replaces the configuration. Fields absent from the payload
// disable their rule; the update takes effect on the next evaluation.
func (h *Handler) putThresholds(w http.ResponseWriter, r *http.Request) {
	var t models.Thresholds
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.thresholds.PutThresholds(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	created, err := h.evaluator.RunEvaluation(r.Context(), "manual")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "created": created})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
