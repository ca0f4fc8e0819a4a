// Package handler exposes record access and creation over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medledger/internal/platform/metrics"
	"medledger/internal/platform/middleware"
	"medledger/internal/records"
	"medledger/internal/transport/http/shared"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/requestcontext"
)

// Service defines the record operations the handler delegates to.
type Service interface {
	AccessRecord(ctx context.Context, recordID domain.RecordID, requesterID domain.ProviderID) (*records.AccessResult, error)
	CreateRecord(ctx context.Context, req records.CreateRecordRequest) (*records.Metadata, error)
	ListByPatient(ctx context.Context, patientID domain.PatientID) ([]*records.Metadata, error)
}

// Handler handles record endpoints.
type Handler struct {
	logger       *slog.Logger
	records      Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(recordsSvc Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		records:      recordsSvc,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the record routes with their middleware chain.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(rr chi.Router) {
		rr.Use(middleware.Recovery(h.logger))
		rr.Use(middleware.RequestID)
		rr.Use(middleware.Logger(h.logger))
		rr.Use(middleware.Timeout(30 * time.Second))
		rr.Use(middleware.ContentTypeJSON)
		rr.Use(middleware.Latency(h.metrics))
		rr.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		rr.Get("/records/{recordID}", h.handleAccess)
		rr.Post("/records", h.handleCreate)
		rr.Get("/patients/me/records", h.handleListMine)
	})
}

// accessResponse returns the ciphertext as stored; decryption happens
// client-side.
type accessResponse struct {
	Metadata   *records.Metadata `json:"metadata"`
	Ciphertext []byte            `json:"ciphertext"`
}

func (h *Handler) handleAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requesterID := domain.ProviderID(requestcontext.UserID(ctx))
	if requesterID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	recordID := domain.RecordID(chi.URLParam(r, "recordID"))
	if recordID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "record id is required"))
		return
	}

	result, err := h.records.AccessRecord(ctx, recordID, requesterID)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeDenied) {
			h.logger.InfoContext(ctx, "record access denied",
				"request_id", requestcontext.RequestID(ctx),
				"record_id", recordID.String())
		} else {
			h.logger.ErrorContext(ctx, "record access failed",
				"request_id", requestcontext.RequestID(ctx),
				"record_id", recordID.String(),
				"error", err.Error())
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, accessResponse{Metadata: result.Metadata, Ciphertext: result.Ciphertext})
}

type createRequest struct {
	PatientID    string `json:"patient_id"`
	ResourceType string `json:"resource_type"`
	Ciphertext   []byte `json:"ciphertext"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerID := domain.ProviderID(requestcontext.UserID(ctx))
	if providerID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	rt, err := domain.ParseResourceType(req.ResourceType)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	meta, err := h.records.CreateRecord(ctx, records.CreateRecordRequest{
		PatientID:    domain.PatientID(req.PatientID),
		ProviderID:   providerID,
		ResourceType: rt,
		Ciphertext:   req.Ciphertext,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "record creation failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error())
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, meta)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := domain.PatientID(requestcontext.UserID(ctx))
	if patientID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	metas, err := h.records.ListByPatient(ctx, patientID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, metas)
}
