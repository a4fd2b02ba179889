package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/alerts"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/analysis"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/registry"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Analyzer runs a wallet analysis.
type Analyzer interface {
	Analyze(ctx context.Context, address string) (*domain.Analysis, error)
}

// EntryReader fetches decoded registry entries.
type EntryReader interface {
	GetEntry(ctx context.Context, address string) (*domain.DrainerRegistryEntry, error)
}

// Invalidator drops cached registry answers.
type Invalidator interface {
	Invalidate(ctx context.Context, address string) error
}

// Handler holds dependencies for API handlers.
type Handler struct {
	analyzer Analyzer
	entries  EntryReader
	program  *registry.Program
	oracle   Invalidator
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	policies *alerts.Engine
	cacheTTL time.Duration
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(cfg domain.ServerConfig, deps Deps) *Handler {
	return &Handler{
		analyzer: deps.Analyzer,
		entries:  deps.Registry,
		program:  deps.Program,
		oracle:   deps.Oracle,
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		policies: deps.Policies,
		cacheTTL: cfg.ReportCacheTTL,
		version:  deps.Version,
	}
}

// AnalyzeWallet handles GET /api/v1/wallets/{address}/analysis.
// A recent report is served from cache unless ?refresh=true.
func (h *Handler) AnalyzeWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := chi.URLParam(r, "address")

	if err := analysis.ValidateAddress(address); err != nil {
		writeError(w, err)
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	if h.cache != nil && !refresh {
		cached, err := h.cache.GetReport(ctx, address)
		if err != nil {
			slog.Warn("report cache read failed", "wallet", address, "error", err)
		} else if cached != nil {
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}
	w.Header().Set("X-Cache", "MISS")

	if h.analyzer == nil {
		writeError(w, domain.ErrProviderMisconfigured)
		return
	}

	res, err := h.analyzer.Analyze(ctx, address)
	if res != nil {
		h.persist(ctx, res)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	// Partial reports are never cached so the next request retries the full window.
	if h.cache != nil && !res.Partial && h.cacheTTL > 0 {
		if err := h.cache.SetReport(ctx, address, res, h.cacheTTL); err != nil {
			slog.Warn("report cache write failed", "wallet", address, "error", err)
		}
	}
	h.publishCompleted(ctx, res)

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) persist(ctx context.Context, res *domain.Analysis) {
	if h.repo == nil {
		return
	}
	if err := h.repo.SaveAnalysis(ctx, res); err != nil {
		slog.Error("failed to save analysis", "analysis_id", res.ID, "error", err)
	}
}

func (h *Handler) publishCompleted(ctx context.Context, res *domain.Analysis) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.AnalysisCompletedEvent{
		AnalysisID: res.ID,
		Wallet:     res.Wallet,
		Report:     res.Report,
		Partial:    res.Partial,

		LookupFailures: res.LookupFailures,
		Warnings:       res.Warnings,
	})
	if err != nil {
		slog.Error("failed to encode analysis event", "analysis_id", res.ID, "error", err)
		return
	}
	if err := h.bus.Publish(ctx, domain.TopicAnalysisCompleted, payload); err != nil {
		slog.Error("failed to publish analysis event", "analysis_id", res.ID, "error", err)
	}
}

// GetAnalysis retrieves a stored analysis by ID.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	a, err := h.repo.GetAnalysis(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListWalletAnalyses handles GET /api/v1/wallets/{address}/analyses.
func (h *Handler) ListWalletAnalyses(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := analysis.ValidateAddress(address); err != nil {
		writeError(w, err)
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.repo.ListAnalysesByWallet(r.Context(), address, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": list,
		"count":    len(list),
	})
}

// GetDrainer returns the registry entry for a reported address.
func (h *Handler) GetDrainer(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if _, err := registry.ParseAddress("address", address); err != nil {
		writeError(w, err)
		return
	}
	if h.entries == nil {
		writeError(w, domain.ErrProviderMisconfigured)
		return
	}

	entry, err := h.entries.GetEntry(r.Context(), address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ReportRequest is the request body for POST /api/v1/reports.
type ReportRequest struct {
	DrainerAddress  string `json:"drainerAddress"`
	ReporterAddress string `json:"reporterAddress"`

	// AmountStolen is in SOL, as a JSON number or string.
	AmountStolen *decimal.Decimal `json:"amountStolen,omitempty"`
}

// ReportResponse carries the unsigned instruction for the reporter to sign.
type ReportResponse struct {
	IntentID    string                   `json:"intentId"`
	Instruction registry.InstructionView `json:"instruction"`
}

// CreateReport builds an unsigned report_drainer instruction.
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if h.program == nil {
		writeError(w, registry.ErrAuthorityNotConfigured)
		return
	}

	ix, err := h.program.BuildReportInstruction(req.DrainerAddress, req.ReporterAddress, req.AmountStolen)
	if err != nil {
		writeError(w, err)
		return
	}

	intent := &domain.ReportIntent{
		ID:        uuid.New().String(),
		Drainer:   ix.Drainer.String(),
		Reporter:  ix.Reporter.String(),
		Lamports:  ix.Lamports,
		PDA:       ix.PDA.String(),
		CreatedAt: time.Now().UTC(),
	}
	if h.repo != nil {
		if err := h.repo.SaveReportIntent(ctx, intent); err != nil {
			slog.Error("failed to save report intent", "intent_id", intent.ID, "error", err)
		}
	}

	if h.bus != nil {
		payload, err := json.Marshal(domain.ReportPreparedEvent{
			IntentID: intent.ID,
			Drainer:  intent.Drainer,
			Reporter: intent.Reporter,
			Lamports: intent.Lamports,
			PDA:      intent.PDA,
		})
		if err != nil {
			slog.Error("failed to encode report event", "intent_id", intent.ID, "error", err)
		} else if err := h.bus.Publish(ctx, domain.TopicReportPrepared, payload); err != nil {
			slog.Error("failed to publish report event", "intent_id", intent.ID, "error", err)
		}
	}

	// A fresh report may flip a cached negative answer.
	if h.oracle != nil {
		if err := h.oracle.Invalidate(ctx, intent.Drainer); err != nil {
			slog.Warn("failed to invalidate registry cache", "drainer", intent.Drainer, "error", err)
		}
	}

	slog.Info("report instruction prepared",
		"intent_id", intent.ID,
		"drainer", intent.Drainer,
		"reporter", intent.Reporter,
		"pda", intent.PDA,
	)
	writeJSON(w, http.StatusCreated, ReportResponse{
		IntentID:    intent.ID,
		Instruction: ix.View(),
	})
}

// AlertRequest is the request body for POST /api/v1/alerts.
type AlertRequest struct {
	Wallet string `json:"wallet"`
	Email  string `json:"email"`

	// Policy is a CEL expression; empty uses the service default.
	Policy string `json:"policy,omitempty"`
}

// CreateAlert subscribes an email address to a wallet's analyses.
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req AlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := analysis.ValidateAddress(req.Wallet); err != nil {
		writeError(w, domain.NewValidationError("wallet", "not a base58 encoded 32-byte public key"))
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, domain.NewValidationError("email", "not a valid email address"))
		return
	}
	if req.Policy != "" && h.policies != nil {
		if err := h.policies.Validate(req.Policy); err != nil {
			writeError(w, domain.NewValidationError("policy", err.Error()))
			return
		}
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	sub := &domain.AlertSubscription{
		ID:        uuid.New().String(),
		Wallet:    req.Wallet,
		Email:     req.Email,
		Policy:    req.Policy,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.repo.SaveSubscription(r.Context(), sub); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("alert subscription created", "id", sub.ID, "wallet", sub.Wallet)
	writeJSON(w, http.StatusCreated, sub)
}

// ListAlerts returns the active subscriptions for ?wallet=.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if err := analysis.ValidateAddress(wallet); err != nil {
		writeError(w, domain.NewValidationError("wallet", "query parameter must be a valid address"))
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	subs, err := h.repo.ListSubscriptionsByWallet(r.Context(), wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	if subs == nil {
		subs = []*domain.AlertSubscription{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": subs,
		"count":  len(subs),
	})
}

// DeleteAlert disables a subscription.
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if err := h.repo.DeleteSubscription(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("alert subscription deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	components := map[string]string{}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			status = "degraded"
			components[name] = "unavailable"
			return
		}
		components[name] = "ok"
	}
	if h.repo != nil {
		check("repository", h.repo.Ping)
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("eventBus", h.bus.Ping)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
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
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func errorStatus(err error) (int, string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, repository.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrDrainerNotFound):
		return http.StatusNotFound, "address has not been reported"
	case errors.Is(err, domain.ErrProviderMisconfigured):
		return http.StatusServiceUnavailable, "transaction provider not configured"
	case errors.Is(err, registry.ErrAuthorityNotConfigured):
		return http.StatusServiceUnavailable, "registry program authority not configured"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
