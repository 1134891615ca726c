package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/harrier/internal/alerts"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/features"
	"github.com/opensource-finance/harrier/internal/ingest"
	"github.com/opensource-finance/harrier/internal/model"
	"github.com/opensource-finance/harrier/internal/pipeline"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/risk"
)

// GlobalTenantID is used for tag rules that apply to all tenants.
const GlobalTenantID = "*"

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	scheduler *pipeline.Scheduler
	registry  *model.Registry
	tagger    *risk.Tagger
	maxUpload int64
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, scheduler *pipeline.Scheduler, registry *model.Registry, tagger *risk.Tagger, maxUpload int64, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		scheduler: scheduler,
		registry:  registry,
		tagger:    tagger,
		maxUpload: maxUpload,
		version:   version,
	}
}

// IngestResponse is the response for POST /ingest.
type IngestResponse struct {
	TaskID       string `json:"taskId"`
	Status       string `json:"status"`
	TotalRecords int    `json:"totalRecords"`
	Error        string `json:"error,omitempty"`
}

// Ingest handles POST /ingest requests. The body is either a raw CSV
// stream or a multipart form with a "file" field. Decoding and schema
// mapping happen synchronously so the caller gets an immediate rejection
// for malformed uploads; scoring runs asynchronously under the returned
// task ID.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	table, useSaved, ok := h.decodeUpload(w, r)
	if !ok {
		return
	}

	if table.RowCount() == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "uploaded file contains no data rows",
		})
		return
	}

	task, err := h.scheduler.Submit(ctx, tenantID, table, useSaved)
	if err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "ingestion queue is full, retry later",
			})
			return
		}
		slog.Error("failed to submit ingestion task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to accept upload",
		})
		return
	}

	resp := IngestResponse{
		TaskID:       task.TaskID,
		Status:       task.Status,
		TotalRecords: task.TotalRecords,
		Error:        task.ErrorMessage,
	}

	// Schema mapping failures surface as an already-failed task.
	if task.Status == domain.TaskFailed {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// TaskStatus handles GET /tasks/{id} requests.
func (h *Handler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	taskID := chi.URLParam(r, "id")

	if taskID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "task id is required",
		})
		return
	}

	task, err := h.scheduler.GetTask(ctx, tenantID, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "task not found",
			})
			return
		}
		slog.Error("failed to get task", "id", taskID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get task",
		})
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// ListAlerts handles GET /alerts requests.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	alertList, err := h.repo.ListAlerts(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alertList,
		"count":  len(alertList),
	})
}

// AlertStats handles GET /alerts/stats requests.
func (h *Handler) AlertStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	accounts, err := h.repo.ListAccounts(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list accounts for stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute stats",
		})
		return
	}

	alertList, err := h.repo.ListAlerts(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list alerts for stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute stats",
		})
		return
	}

	stats := alerts.ComputeStats(accounts, alertList, time.Now().UTC())
	writeJSON(w, http.StatusOK, stats)
}

// UpdateAlertStatusRequest is the request body for PATCH /alerts/{id}/status.
type UpdateAlertStatusRequest struct {
	Status string `json:"status"`
}

// UpdateAlertStatus handles PATCH /alerts/{id}/status requests.
func (h *Handler) UpdateAlertStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	alertID := chi.URLParam(r, "id")

	if alertID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alert id is required",
		})
		return
	}

	var req UpdateAlertStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	switch req.Status {
	case domain.AlertStatusOpen, domain.AlertStatusUnderReview, domain.AlertStatusClosed:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "status must be one of: Open, Under Review, Closed",
		})
		return
	}

	if err := h.repo.UpdateAlertStatus(ctx, tenantID, alertID, req.Status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "alert not found",
			})
			return
		}
		slog.Error("failed to update alert status", "id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update alert status",
		})
		return
	}

	slog.Info("alert status updated", "id", alertID, "status", req.Status, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]string{
		"alertId": alertID,
		"status":  req.Status,
	})
}

// ListAccounts handles GET /accounts requests.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	accounts, err := h.repo.ListAccounts(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list accounts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list accounts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// AccountTransactions handles GET /accounts/{id}/transactions requests.
func (h *Handler) AccountTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	accountID := chi.URLParam(r, "id")

	if accountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "account id is required",
		})
		return
	}

	if _, err := h.repo.GetAccount(ctx, tenantID, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "account not found",
			})
			return
		}
		slog.Error("failed to get account", "id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get account",
		})
		return
	}

	txs, err := h.repo.ListTransactionsByAccount(ctx, tenantID, accountID)
	if err != nil {
		slog.Error("failed to list transactions", "account_id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list transactions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accountId":    accountID,
		"transactions": txs,
		"count":        len(txs),
	})
}

// TrainModel handles POST /model/train requests. With a CSV body it fits
// the isolation forest on the uploaded file; with an empty body it trains
// over the tenant's stored transactions. Either way the result replaces
// the process-wide artifact used by subsequent scoring runs.
func (h *Handler) TrainModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var txs []domain.Transaction

	if r.ContentLength == 0 {
		stored, err := h.repo.ListTransactions(ctx, tenantID)
		if err != nil {
			slog.Error("failed to list transactions for training", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to load stored transactions",
			})
			return
		}
		if len(stored) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "no stored transactions to train on; upload a file",
			})
			return
		}
		txs = fromStored(stored)
	} else {
		table, _, ok := h.decodeUpload(w, r)
		if !ok {
			return
		}

		cols, err := ingest.MapColumns(table.Columns)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		txs = ingest.Normalize(table, cols)
	}

	vectors := features.Extract(txs)
	if len(vectors) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "no analyzable rows to train on",
		})
		return
	}

	if err := h.registry.Train(vectors); err != nil {
		slog.Error("model training failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "model training failed",
		})
		return
	}

	if h.bus != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"accounts":  len(vectors),
			"trainedAt": time.Now().UTC(),
		})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicModelTrained, payload); err != nil {
			slog.Warn("failed to publish model trained event", "error", err)
		}
	}

	slog.Info("model trained", "accounts", len(vectors), "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "model trained and saved",
		"accounts": len(vectors),
	})
}

// fromStored converts persisted evidence transactions back into the
// normalized form the feature extractor works on.
func fromStored(stored []*domain.StoredTransaction) []domain.Transaction {
	txs := make([]domain.Transaction, 0, len(stored))
	for _, s := range stored {
		ts := s.DateTime
		txs = append(txs, domain.Transaction{
			AccountID:      s.AccountID,
			Timestamp:      &ts,
			Type:           s.Type,
			Amount:         ingest.ParseAmount(s.Amount),
			RelatedAccount: s.RelatedAccount,
			Flagged:        s.Flagged,
		})
	}
	return txs
}

// ListRules returns the tag rules currently loaded in the tagger.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.tagger.Rules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// CreateRuleRequest is the request body for creating a tag rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Tag         string `json:"tag"`
	Expression  string `json:"expression"`
	Fallback    bool   `json:"fallback"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule validates and saves a tag rule to the database. Rules are
// saved globally (tenant_id = "*") so they apply to all tenants. After
// saving, call POST /rules/reload to hot-reload into the tagger.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Tag == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, tag, and expression are required",
		})
		return
	}

	rule := &domain.TagRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Tag:         req.Tag,
		Expression:  req.Expression,
		Fallback:    req.Fallback,
		Enabled:     req.Enabled,
	}

	if err := h.tagger.ValidateRule(*rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveTagRule(ctx, GlobalTenantID, rule); err != nil {
		slog.Error("failed to save tag rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("tag rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads tag rules from the database into the tagger.
// An empty database reinstalls the built-in defaults.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListTagRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list tag rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	rules := risk.DefaultTagRules()
	if len(dbRules) > 0 {
		rules = make([]domain.TagRule, 0, len(dbRules))
		for _, rule := range dbRules {
			rules = append(rules, *rule)
		}
	}

	if err := h.tagger.LoadRules(rules); err != nil {
		slog.Error("failed to reload tag rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("tag rules reloaded", "count", h.tagger.RuleCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   h.tagger.RuleCount(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// decodeUpload reads a CSV table from the request body. It accepts either
// a raw CSV stream or a multipart form with a "file" field, capped at the
// configured upload limit. On failure it writes the error response and
// returns ok=false.
func (h *Handler) decodeUpload(w http.ResponseWriter, r *http.Request) (table *domain.RawTable, useSaved bool, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	// A trained artifact is used whenever one exists; callers opt out
	// with ?useSavedModel=false to force an ephemeral fit.
	useSaved = r.URL.Query().Get("useSavedModel") != "false"

	var src = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "multipart form must include a \"file\" field",
			})
			return nil, false, false
		}
		defer file.Close()
		if v := r.FormValue("useSavedModel"); v != "" {
			useSaved = v != "false"
		}
		src = file
	}

	table, err := ingest.DecodeCSV(src)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "uploaded file exceeds the size limit",
			})
			return nil, false, false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to decode CSV: " + err.Error(),
		})
		return nil, false, false
	}

	return table, useSaved, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
