package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nkoval/go-fit-bridge/internal/domain"
	"github.com/nkoval/go-fit-bridge/internal/downloads"
	"github.com/nkoval/go-fit-bridge/internal/efforts"
	"github.com/nkoval/go-fit-bridge/internal/intervals"
	"github.com/nkoval/go-fit-bridge/internal/webhooks"
)

// REST exposes the bridge's core operations over HTTP to the
// tool-dispatch layer.
type REST struct {
	orch     *downloads.Orchestrator
	resolver *efforts.Resolver
	ingestor *webhooks.Ingestor
	logger   *slog.Logger
}

// NewREST creates a new REST handler.
func NewREST(orch *downloads.Orchestrator, resolver *efforts.Resolver, ingestor *webhooks.Ingestor, logger *slog.Logger) *REST {
	return &REST{orch: orch, resolver: resolver, ingestor: ingestor, logger: logger}
}

// StartDownloadRequest is the JSON body for POST /api/v1/downloads.
type StartDownloadRequest struct {
	ActivityID string `json:"activity_id"`
	// DestKey is the bucket key to write to. Empty means the file is
	// returned in memory, base64-encoded, via the status path field.
	DestKey string `json:"dest_key,omitempty"`
}

// StartDownloadResponse is the 202 response body.
type StartDownloadResponse struct {
	DownloadID string `json:"download_id"`
	State      string `json:"state"`
}

// StartDownload handles POST /api/v1/downloads.
func (h *REST) StartDownload(w http.ResponseWriter, r *http.Request) {
	var req StartDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ActivityID) == "" {
		writeError(w, http.StatusBadRequest, "field 'activity_id' is required")
		return
	}

	id := h.orch.Start(req.ActivityID, req.DestKey)
	writeJSON(w, http.StatusAccepted, StartDownloadResponse{
		DownloadID: id,
		State:      string(domain.StatePending),
	})
}

// GetDownload handles GET /api/v1/downloads/{id}.
func (h *REST) GetDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := h.orch.GetStatus(id)
	if !ok {
		notFound := &domain.DownloadNotFoundError{DownloadID: id}
		writeError(w, http.StatusNotFound, notFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ListDownloads handles GET /api/v1/downloads.
func (h *REST) ListDownloads(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.List())
}

// CancelDownload handles DELETE /api/v1/downloads/{id}. Cancellation is
// advisory; the 200 response only means the status store now reports
// Cancelled.
func (h *REST) CancelDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.orch.Cancel(id) {
		notFound := &domain.DownloadNotFoundError{DownloadID: id}
		writeError(w, http.StatusNotFound, notFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// BestEfforts handles GET /api/v1/activities/{id}/best-efforts. With no
// query parameters the resolver runs its fallback search; with explicit
// parameters exactly one upstream query is issued.
func (h *REST) BestEfforts(w http.ResponseWriter, r *http.Request) {
	activityID := chi.URLParam(r, "id")

	opts, err := effortOptionsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.resolver.Resolve(r.Context(), activityID, opts)
	if err != nil {
		h.writeEffortError(w, activityID, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func (h *REST) writeEffortError(w http.ResponseWriter, activityID string, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, validation.Error())
	case intervals.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case intervals.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("best-efforts resolution failed",
			slog.String("activity_id", activityID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "upstream query failed")
	}
}

// effortOptionsFromQuery returns nil when no best-efforts parameters are
// present, which asks the resolver for its adaptive fallback search.
func effortOptionsFromQuery(r *http.Request) (*intervals.BestEffortOptions, error) {
	q := r.URL.Query()
	if len(q) == 0 {
		return nil, nil
	}

	opts := &intervals.BestEffortOptions{Stream: q.Get("stream")}
	var err error
	if opts.Duration, err = intParam(q.Get("duration")); err != nil {
		return nil, errors.New("parameter 'duration' must be an integer")
	}
	if opts.Distance, err = intParam(q.Get("distance")); err != nil {
		return nil, errors.New("parameter 'distance' must be an integer")
	}
	if opts.Count, err = intParam(q.Get("count")); err != nil {
		return nil, errors.New("parameter 'count' must be an integer")
	}
	if opts.StartIndex, err = intParam(q.Get("start_index")); err != nil {
		return nil, errors.New("parameter 'start_index' must be an integer")
	}
	if opts.EndIndex, err = intParam(q.Get("end_index")); err != nil {
		return nil, errors.New("parameter 'end_index' must be an integer")
	}
	if raw := q.Get("min_value"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.New("parameter 'min_value' must be a number")
		}
		opts.MinValue = &v
	}
	if raw := q.Get("exclude_intervals"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.New("parameter 'exclude_intervals' must be a boolean")
		}
		opts.ExcludeIntervals = &v
	}
	return opts, nil
}

func intParam(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Webhook handles POST /webhooks/intervals. The signature arrives in the
// X-Signature header, optionally prefixed with "sha256=".
func (h *REST) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	signature := strings.TrimPrefix(r.Header.Get("X-Signature"), "sha256=")
	result, err := h.ingestor.Process(r.Context(), signature, payload)
	if err != nil {
		switch {
		case errors.Is(err, webhooks.ErrSecretNotConfigured):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, webhooks.ErrSignatureMismatch):
			writeError(w, http.StatusUnauthorized, err.Error())
		default:
			h.logger.Error("webhook processing failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to process event")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SetSecretRequest is the JSON body for PUT /api/v1/admin/webhook-secret.
type SetSecretRequest struct {
	Secret string `json:"secret"`
}

// SetWebhookSecret handles PUT /api/v1/admin/webhook-secret.
func (h *REST) SetWebhookSecret(w http.ResponseWriter, r *http.Request) {
	var req SetSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Secret == "" {
		writeError(w, http.StatusBadRequest, "field 'secret' is required")
		return
	}
	h.ingestor.SetSecret(req.Secret)
	w.WriteHeader(http.StatusNoContent)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
