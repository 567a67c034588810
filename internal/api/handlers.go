// Package api exposes the dispatch surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/Cobiozo/essential-gem-clone-sub008/internal/mailer"
	"github.com/Cobiozo/essential-gem-clone-sub008/internal/pkg/logger"
)

// BatchDispatcher runs one dispatch batch to completion.
type BatchDispatcher interface {
	Dispatch(ctx context.Context, req mailer.Request) (*mailer.Batch, error)
}

// ProgressReader reads in-flight batch counters.
type ProgressReader interface {
	Snapshot(ctx context.Context, batchID uuid.UUID) (*mailer.ProgressSnapshot, error)
}

// Handlers provides HTTP handlers for the mailing API.
type Handlers struct {
	dispatcher BatchDispatcher
	progress   ProgressReader
}

// NewHandlers creates the mailing API handlers. progress may be nil when
// no progress backend is configured.
func NewHandlers(dispatcher BatchDispatcher, progress ProgressReader) *Handlers {
	return &Handlers{dispatcher: dispatcher, progress: progress}
}

// Router assembles the public API router.
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", h.HandleHealth)
	r.Route("/api/mailing", func(r chi.Router) {
		r.Post("/dispatch", h.HandleDispatch)
		r.Get("/batches/{batchID}", h.HandleBatchProgress)
	})
	return r
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// dispatchRequest is the wire shape of a dispatch order. A request names
// its content either by template id or by inline subject and HTML.
type dispatchRequest struct {
	TemplateID string            `json:"template_id,omitempty"`
	Subject    string            `json:"subject,omitempty"`
	HTML       string            `json:"html,omitempty"`
	Roles      []string          `json:"roles"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// dispatchResponse is the batch result payload.
type dispatchResponse struct {
	Success    bool               `json:"success"`
	BatchID    string             `json:"batch_id"`
	SentCount  int                `json:"sent_count"`
	TotalCount int                `json:"total_count"`
	Errors     []mailer.SendError `json:"errors,omitempty"`
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleDispatch decodes a dispatch order, runs the batch synchronously,
// and returns the aggregate result.
func (h *Handlers) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	var body dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var source mailer.MessageSource
	if body.TemplateID != "" {
		id, err := uuid.Parse(body.TemplateID)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid template_id")
			return
		}
		source = mailer.TemplateRef{ID: id}
	} else {
		source = mailer.Custom{Subject: body.Subject, HTML: body.HTML}
	}

	batch, err := h.dispatcher.Dispatch(r.Context(), mailer.Request{
		Source:    source,
		Roles:     body.Roles,
		Variables: body.Variables,
	})
	if err != nil {
		var confErr *mailer.ConfigurationError
		if errors.As(err, &confErr) {
			respondError(w, http.StatusUnprocessableEntity, confErr.Error())
			return
		}
		logger.Error("dispatch failed", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}

	respondJSON(w, http.StatusOK, dispatchResponse{
		Success:    batch.Outcome() != mailer.TotalFailure,
		BatchID:    batch.ID.String(),
		SentCount:  batch.SentCount,
		TotalCount: batch.TotalCount,
		Errors:     batch.Errors(),
	})
}

// HandleBatchProgress returns the polled counters for a running or recent
// batch.
func (h *Handlers) HandleBatchProgress(w http.ResponseWriter, r *http.Request) {
	if h.progress == nil {
		respondError(w, http.StatusNotFound, "progress tracking not enabled")
		return
	}

	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	snap, err := h.progress.Snapshot(r.Context(), batchID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "progress lookup failed")
		return
	}
	if snap == nil {
		respondError(w, http.StatusNotFound, "batch not found")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}
