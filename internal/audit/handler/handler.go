// Package handler exposes the audit ledger's compliance surfaces: paged
// queries and chain integrity verification. These endpoints are for auditors
// and operators, not patients or providers.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"medledger/internal/platform/metrics"
	"medledger/internal/platform/middleware"
	"medledger/internal/transport/http/shared"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/audit"
	"medledger/pkg/requestcontext"
)

const auditorRole = "auditor"

// Handler handles audit ledger endpoints.
type Handler struct {
	logger       *slog.Logger
	reader       *audit.Reader
	verifier     *audit.Verifier
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(reader *audit.Reader, verifier *audit.Verifier, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		reader:       reader,
		verifier:     verifier,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the audit routes with their middleware chain.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(ar chi.Router) {
		ar.Use(middleware.Recovery(h.logger))
		ar.Use(middleware.RequestID)
		ar.Use(middleware.Logger(h.logger))
		ar.Use(middleware.Timeout(60 * time.Second))
		ar.Use(middleware.Latency(h.metrics))
		ar.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		ar.Get("/audit/entries", h.handleQuery)
		ar.Get("/audit/verify", h.handleVerify)
	})
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if requestcontext.UserRole(ctx) != auditorRole {
		shared.WriteError(w, dErrors.New(dErrors.CodeDenied, "auditor role required"))
		return
	}

	filter := audit.Filter{
		UserID:    r.URL.Query().Get("user_id"),
		PageToken: r.URL.Query().Get("page_token"),
	}
	for _, raw := range r.URL.Query()["event_type"] {
		et := audit.EventType(raw)
		if !et.IsValid() {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event type: "+raw))
			return
		}
		filter.EventTypes = append(filter.EventTypes, et)
	}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid page size"))
			return
		}
		filter.PageSize = size
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid from timestamp"))
			return
		}
		filter.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid to timestamp"))
			return
		}
		filter.To = t
	}

	page, err := h.reader.Query(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit query failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error())
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if requestcontext.UserRole(ctx) != auditorRole {
		shared.WriteError(w, dErrors.New(dErrors.CodeDenied, "auditor role required"))
		return
	}

	var fromBlock, toBlock uint64
	if raw := r.URL.Query().Get("from_block"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid from_block"))
			return
		}
		fromBlock = v
	}
	if raw := r.URL.Query().Get("to_block"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid to_block"))
			return
		}
		toBlock = v
	}

	report, err := h.verifier.VerifyIntegrity(ctx, fromBlock, toBlock)
	if err != nil {
		h.logger.ErrorContext(ctx, "integrity verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error())
		shared.WriteError(w, err)
		return
	}
	if !report.Verified {
		h.logger.ErrorContext(ctx, "audit chain integrity violation detected",
			"request_id", requestcontext.RequestID(ctx),
			"tampered_entries", len(report.TamperedEntries))
	}
	shared.WriteJSON(w, http.StatusOK, report)
}
