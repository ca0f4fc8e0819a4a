// Package handler exposes the consent lifecycle over HTTP. Handlers stay
// thin: decode, delegate, encode. Authorization context comes from the auth
// middleware; business rules live in the service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medledger/internal/consent"
	"medledger/internal/consent/service"
	"medledger/internal/platform/metrics"
	"medledger/internal/platform/middleware"
	"medledger/internal/transport/http/shared"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/requestcontext"
)

// Service defines the consent operations the handler delegates to.
type Service interface {
	Grant(ctx context.Context, req service.GrantRequest) (*consent.Token, error)
	Revoke(ctx context.Context, tokenID domain.TokenID, requesterID domain.PatientID, requesterSignature []byte) (*consent.RevocationResult, error)
	Get(ctx context.Context, tokenID domain.TokenID) (*consent.Token, error)
	ListByPatient(ctx context.Context, patientID domain.PatientID) ([]*consent.Token, error)
	ListByProvider(ctx context.Context, providerID domain.ProviderID) ([]*consent.Token, error)
}

// Handler handles consent endpoints.
type Handler struct {
	logger       *slog.Logger
	consent      Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(consent Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		consent:      consent,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the consent routes with their middleware chain.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(cr chi.Router) {
		cr.Use(middleware.Recovery(h.logger))
		cr.Use(middleware.RequestID)
		cr.Use(middleware.Logger(h.logger))
		cr.Use(middleware.Timeout(30 * time.Second))
		cr.Use(middleware.ContentTypeJSON)
		cr.Use(middleware.Latency(h.metrics))
		cr.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		cr.Post("/consents", h.handleGrant)
		cr.Post("/consents/{tokenID}/revoke", h.handleRevoke)
		cr.Get("/consents/{tokenID}", h.handleGet)
		cr.Get("/patients/me/consents", h.handleListMine)
		cr.Get("/providers/me/consents", h.handleListGrantedToMe)
	})
}

type grantRequest struct {
	ProviderID  string `json:"provider_id"`
	Permissions []struct {
		ResourceType string `json:"resource_type"`
		AccessLevel  string `json:"access_level"`
	} `json:"permissions"`
	ExpirationTime   *time.Time `json:"expiration_time,omitempty"`
	PatientSignature []byte     `json:"patient_signature"`
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := authenticatedPatient(ctx)
	if patientID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	perms := make([]consent.Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		rt, err := domain.ParseResourceType(p.ResourceType)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		al, err := domain.ParseAccessLevel(p.AccessLevel)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		perms = append(perms, consent.Permission{ResourceType: rt, AccessLevel: al})
	}

	token, err := h.consent.Grant(ctx, service.GrantRequest{
		PatientID:        patientID,
		ProviderID:       domain.ProviderID(req.ProviderID),
		Permissions:      perms,
		ExpirationTime:   req.ExpirationTime,
		PatientSignature: req.PatientSignature,
	})
	if err != nil {
		h.logWriteError(ctx, "grant consent", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, token)
}

type revokeRequest struct {
	RequesterSignature []byte `json:"requester_signature"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := authenticatedPatient(ctx)
	if patientID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	tokenID, err := domain.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.consent.Revoke(ctx, tokenID, patientID, req.RequesterSignature)
	if err != nil {
		h.logWriteError(ctx, "revoke consent", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tokenID, err := domain.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	token, err := h.consent.Get(ctx, tokenID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// Tokens are visible only to their two parties.
	userID := requestcontext.UserID(ctx)
	if userID != token.PatientID.String() && userID != token.ProviderID.String() {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "consent token not found"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, token)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := authenticatedPatient(ctx)
	if patientID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	tokens, err := h.consent.ListByPatient(ctx, patientID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) handleListGrantedToMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerID := domain.ProviderID(requestcontext.UserID(ctx))
	if providerID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	tokens, err := h.consent.ListByProvider(ctx, providerID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, tokens)
}

func authenticatedPatient(ctx context.Context) domain.PatientID {
	return domain.PatientID(requestcontext.UserID(ctx))
}

func (h *Handler) logWriteError(ctx context.Context, op string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	}
	if dErrors.Is(err, dErrors.CodeBadRequest) || dErrors.Is(err, dErrors.CodeInvalidExpiration) {
		h.logger.WarnContext(ctx, "rejected "+op+" request", attrs...)
		return
	}
	h.logger.ErrorContext(ctx, "failed to "+op, attrs...)
}
