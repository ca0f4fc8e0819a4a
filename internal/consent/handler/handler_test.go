package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medledger/internal/consent"
	"medledger/internal/consent/handler/mocks"
	"medledger/internal/consent/service"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/consent-mocks.go -package=mocks Service

type ConsentHandlerSuite struct {
	suite.Suite
}

func TestConsentHandlerSuite(t *testing.T) {
	suite.Run(t, new(ConsentHandlerSuite))
}

func newTestHandler(t *testing.T) (*Handler, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(mockService, logger, nil, nil), mockService
}

func authedRequest(method, target, userID string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func (s *ConsentHandlerSuite) TestHandleGrant() {
	handler, mockService := newTestHandler(s.T())
	expiry := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

	granted := &consent.Token{
		TokenID:    domain.NewTokenID(),
		PatientID:  "patient-1",
		ProviderID: "provider-1",
		Permissions: []consent.Permission{
			{ResourceType: domain.ResourceDiagnosis, AccessLevel: domain.AccessRead},
		},
		ExpirationTime: &expiry,
		IsActive:       true,
	}
	mockService.EXPECT().Grant(gomock.Any(), service.GrantRequest{
		PatientID:  "patient-1",
		ProviderID: "provider-1",
		Permissions: []consent.Permission{
			{ResourceType: domain.ResourceDiagnosis, AccessLevel: domain.AccessRead},
		},
		ExpirationTime:   &expiry,
		PatientSignature: []byte("signature"),
	}).Return(granted, nil)

	body, err := json.Marshal(map[string]any{
		"provider_id": "provider-1",
		"permissions": []map[string]string{
			{"resource_type": "diagnosis", "access_level": "read"},
		},
		"expiration_time":   expiry,
		"patient_signature": []byte("signature"),
	})
	s.Require().NoError(err)

	w := httptest.NewRecorder()
	handler.handleGrant(w, authedRequest(http.MethodPost, "/consents", "patient-1", body))

	s.Equal(http.StatusCreated, w.Code)
	var resp consent.Token
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(granted.TokenID, resp.TokenID)
	s.True(resp.IsActive)
}

func (s *ConsentHandlerSuite) TestHandleGrant_Rejections() {
	s.Run("malformed body", func() {
		handler, _ := newTestHandler(s.T())
		w := httptest.NewRecorder()
		handler.handleGrant(w, authedRequest(http.MethodPost, "/consents", "patient-1", []byte("{not json")))
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("unknown resource type", func() {
		handler, _ := newTestHandler(s.T())
		body := []byte(`{"provider_id":"d1","permissions":[{"resource_type":"genome","access_level":"read"}]}`)
		w := httptest.NewRecorder()
		handler.handleGrant(w, authedRequest(http.MethodPost, "/consents", "patient-1", body))
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("past expiration maps to 400", func() {
		handler, mockService := newTestHandler(s.T())
		mockService.EXPECT().Grant(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvalidExpiration, "expiration time must be in the future"))
		body := []byte(`{"provider_id":"d1","permissions":[{"resource_type":"diagnosis","access_level":"read"}]}`)
		w := httptest.NewRecorder()
		handler.handleGrant(w, authedRequest(http.MethodPost, "/consents", "patient-1", body))
		s.Equal(http.StatusBadRequest, w.Code)
		var resp map[string]string
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal("invalid_expiration", resp["error"])
	})
}

func (s *ConsentHandlerSuite) TestHandleRevoke() {
	tokenID := domain.NewTokenID()
	revokedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	s.Run("ok", func() {
		handler, mockService := newTestHandler(s.T())
		mockService.EXPECT().Revoke(gomock.Any(), tokenID, domain.PatientID("patient-1"), []byte("signature")).
			Return(&consent.RevocationResult{TokenID: tokenID, RevokedAt: revokedAt}, nil)

		body, _ := json.Marshal(map[string]any{"requester_signature": []byte("signature")})
		req := withURLParam(authedRequest(http.MethodPost, "/consents/"+tokenID.String()+"/revoke", "patient-1", body), "tokenID", tokenID.String())
		w := httptest.NewRecorder()
		handler.handleRevoke(w, req)

		s.Equal(http.StatusOK, w.Code)
		var resp consent.RevocationResult
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(tokenID, resp.TokenID)
	})

	s.Run("second revoke maps to 409", func() {
		handler, mockService := newTestHandler(s.T())
		mockService.EXPECT().Revoke(gomock.Any(), tokenID, domain.PatientID("patient-1"), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeAlreadyRevoked, "consent token is already revoked"))

		body, _ := json.Marshal(map[string]any{"requester_signature": []byte("signature")})
		req := withURLParam(authedRequest(http.MethodPost, "/consents/"+tokenID.String()+"/revoke", "patient-1", body), "tokenID", tokenID.String())
		w := httptest.NewRecorder()
		handler.handleRevoke(w, req)

		s.Equal(http.StatusConflict, w.Code)
	})

	s.Run("malformed token id maps to 400", func() {
		handler, _ := newTestHandler(s.T())
		req := withURLParam(authedRequest(http.MethodPost, "/consents/nope/revoke", "patient-1", []byte("{}")), "tokenID", "nope")
		w := httptest.NewRecorder()
		handler.handleRevoke(w, req)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *ConsentHandlerSuite) TestHandleGet_VisibilityLimitedToParties() {
	tokenID := domain.NewTokenID()
	token := &consent.Token{TokenID: tokenID, PatientID: "patient-1", ProviderID: "provider-1", IsActive: true}

	cases := []struct {
		name   string
		userID string
		status int
	}{
		{"patient sees own token", "patient-1", http.StatusOK},
		{"provider sees granted token", "provider-1", http.StatusOK},
		{"third party gets not found", "someone-else", http.StatusNotFound},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			handler, mockService := newTestHandler(s.T())
			mockService.EXPECT().Get(gomock.Any(), tokenID).Return(token, nil)

			req := withURLParam(authedRequest(http.MethodGet, "/consents/"+tokenID.String(), tc.userID, nil), "tokenID", tokenID.String())
			w := httptest.NewRecorder()
			handler.handleGet(w, req)
			s.Equal(tc.status, w.Code)
		})
	}
}

func (s *ConsentHandlerSuite) TestHandleListMine() {
	handler, mockService := newTestHandler(s.T())
	tokens := []*consent.Token{
		{TokenID: domain.NewTokenID(), PatientID: "patient-1", ProviderID: "provider-1", IsActive: true},
		{TokenID: domain.NewTokenID(), PatientID: "patient-1", ProviderID: "provider-2", IsActive: false},
	}
	mockService.EXPECT().ListByPatient(gomock.Any(), domain.PatientID("patient-1")).Return(tokens, nil)

	w := httptest.NewRecorder()
	handler.handleListMine(w, authedRequest(http.MethodGet, "/patients/me/consents", "patient-1", nil))

	s.Equal(http.StatusOK, w.Code)
	var resp []consent.Token
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Len(resp, 2)
}
