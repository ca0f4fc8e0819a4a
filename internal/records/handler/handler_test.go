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

	"medledger/internal/records"
	"medledger/internal/records/handler/mocks"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/records-mocks.go -package=mocks Service

type RecordHandlerSuite struct {
	suite.Suite
}

func TestRecordHandlerSuite(t *testing.T) {
	suite.Run(t, new(RecordHandlerSuite))
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

func (s *RecordHandlerSuite) TestHandleAccess() {
	recordID := domain.NewRecordID()
	meta := &records.Metadata{
		RecordID:     recordID,
		PatientID:    "patient-1",
		ProviderID:   "d-author",
		ResourceType: domain.ResourceDiagnosis,
		ContentHash:  "abc123",
		CreatedAt:    time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}

	s.Run("granted returns ciphertext and metadata", func() {
		handler, mockService := newTestHandler(s.T())
		mockService.EXPECT().AccessRecord(gomock.Any(), recordID, domain.ProviderID("provider-1")).
			Return(&records.AccessResult{Ciphertext: []byte("encrypted"), Metadata: meta}, nil)

		req := withURLParam(authedRequest(http.MethodGet, "/records/"+recordID.String(), "provider-1", nil), "recordID", recordID.String())
		w := httptest.NewRecorder()
		handler.handleAccess(w, req)

		s.Equal(http.StatusOK, w.Code)
		var resp accessResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal([]byte("encrypted"), resp.Ciphertext)
		s.Equal(recordID, resp.Metadata.RecordID)
	})

	s.Run("denial maps to 403", func() {
		handler, mockService := newTestHandler(s.T())
		mockService.EXPECT().AccessRecord(gomock.Any(), recordID, domain.ProviderID("provider-2")).
			Return(nil, dErrors.New(dErrors.CodeDenied, "access denied"))

		req := withURLParam(authedRequest(http.MethodGet, "/records/"+recordID.String(), "provider-2", nil), "recordID", recordID.String())
		w := httptest.NewRecorder()
		handler.handleAccess(w, req)

		s.Equal(http.StatusForbidden, w.Code)
		var resp map[string]string
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal("denied", resp["error"])
	})

	s.Run("storage failure maps to 503", func() {
		handler, mockService := newTestHandler(s.T())
		mockService.EXPECT().AccessRecord(gomock.Any(), recordID, domain.ProviderID("provider-1")).
			Return(nil, dErrors.New(dErrors.CodeUnavailable, "record storage unavailable"))

		req := withURLParam(authedRequest(http.MethodGet, "/records/"+recordID.String(), "provider-1", nil), "recordID", recordID.String())
		w := httptest.NewRecorder()
		handler.handleAccess(w, req)

		s.Equal(http.StatusServiceUnavailable, w.Code)
	})
}

func (s *RecordHandlerSuite) TestHandleCreate() {
	s.Run("created", func() {
		handler, mockService := newTestHandler(s.T())
		meta := &records.Metadata{
			RecordID:     domain.NewRecordID(),
			PatientID:    "patient-1",
			ProviderID:   "provider-1",
			ResourceType: domain.ResourcePrescription,
			ContentHash:  "hash",
		}
		mockService.EXPECT().CreateRecord(gomock.Any(), records.CreateRecordRequest{
			PatientID:    "patient-1",
			ProviderID:   "provider-1",
			ResourceType: domain.ResourcePrescription,
			Ciphertext:   []byte("encrypted"),
		}).Return(meta, nil)

		body, _ := json.Marshal(map[string]any{
			"patient_id":    "patient-1",
			"resource_type": "prescription",
			"ciphertext":    []byte("encrypted"),
		})
		w := httptest.NewRecorder()
		handler.handleCreate(w, authedRequest(http.MethodPost, "/records", "provider-1", body))

		s.Equal(http.StatusCreated, w.Code)
		var resp records.Metadata
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(meta.RecordID, resp.RecordID)
	})

	s.Run("missing write consent maps to 403", func() {
		handler, mockService := newTestHandler(s.T())
		mockService.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeDenied, "access denied"))

		body := []byte(`{"patient_id":"patient-1","resource_type":"prescription","ciphertext":"ZW5j"}`)
		w := httptest.NewRecorder()
		handler.handleCreate(w, authedRequest(http.MethodPost, "/records", "provider-1", body))
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("bad resource type maps to 400", func() {
		handler, _ := newTestHandler(s.T())
		body := []byte(`{"patient_id":"patient-1","resource_type":"genome","ciphertext":"ZW5j"}`)
		w := httptest.NewRecorder()
		handler.handleCreate(w, authedRequest(http.MethodPost, "/records", "provider-1", body))
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *RecordHandlerSuite) TestHandleListMine() {
	handler, mockService := newTestHandler(s.T())
	metas := []*records.Metadata{
		{RecordID: domain.NewRecordID(), PatientID: "patient-1", ResourceType: domain.ResourceDiagnosis},
		{RecordID: domain.NewRecordID(), PatientID: "patient-1", ResourceType: domain.ResourceImaging},
	}
	mockService.EXPECT().ListByPatient(gomock.Any(), domain.PatientID("patient-1")).Return(metas, nil)

	w := httptest.NewRecorder()
	handler.handleListMine(w, authedRequest(http.MethodGet, "/patients/me/records", "patient-1", nil))

	s.Equal(http.StatusOK, w.Code)
	var resp []records.Metadata
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Len(resp, 2)
}
