package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/app"
	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/domain"
	httptransport "github.com/chatbridge/wabalink/golang_services/internal/verification_service/transport/http"
)

type MockVerificationService struct {
	mock.Mock
}

func (m *MockVerificationService) CreateVerification(ctx context.Context, in app.CreateVerificationInput) (*app.CreateVerificationResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*app.CreateVerificationResult), args.Error(1)
}

func (m *MockVerificationService) GetVerification(ctx context.Context, id uuid.UUID) (*domain.VerificationRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VerificationRecord), args.Error(1)
}

func (m *MockVerificationService) ListCompanyVerifications(ctx context.Context, companyID uuid.UUID) ([]*domain.VerificationRecord, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.VerificationRecord), args.Error(1)
}

func (m *MockVerificationService) RequestVerificationCode(ctx context.Context, in app.RequestCodeInput) (*app.RequestCodeResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*app.RequestCodeResult), args.Error(1)
}

func (m *MockVerificationService) VerifyCode(ctx context.Context, verificationID uuid.UUID, code string) (*app.LinkResult, error) {
	args := m.Called(ctx, verificationID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*app.LinkResult), args.Error(1)
}

func (m *MockVerificationService) RegisterWithPin(ctx context.Context, verificationID uuid.UUID, pin string) (*app.LinkResult, error) {
	args := m.Called(ctx, verificationID, pin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*app.LinkResult), args.Error(1)
}

func setupHandlerTest(t *testing.T) (*MockVerificationService, *chi.Mux) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := new(MockVerificationService)
	handler := httptransport.NewVerificationHandler(service, logger)
	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return service, router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandleCreate_NewRecord(t *testing.T) {
	service, router := setupHandlerTest(t)
	companyID := uuid.New()
	verificationID := uuid.New()

	service.On("CreateVerification", mock.Anything, app.CreateVerificationInput{
		CompanyID:   companyID,
		PhoneNumber: "+85296062000",
		Certificate: "cert-blob",
	}).Return(&app.CreateVerificationResult{
		VerificationID: verificationID,
		URL:            "https://admin.example.com/verifications/" + verificationID.String(),
	}, nil)

	rr := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/companies/%s/verifications", companyID),
		map[string]string{"phone_number": "+85296062000", "certificate": "cert-blob"})

	assert.Equal(t, http.StatusCreated, rr.Code)
	var resp httptransport.CreateVerificationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, verificationID.String(), resp.VerificationID)
	assert.False(t, resp.Existing)
}

func TestHandleCreate_ExistingRecordReturns200(t *testing.T) {
	service, router := setupHandlerTest(t)
	companyID := uuid.New()
	verificationID := uuid.New()

	service.On("CreateVerification", mock.Anything, mock.Anything).
		Return(&app.CreateVerificationResult{VerificationID: verificationID, Existing: true}, nil)

	rr := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/companies/%s/verifications", companyID),
		map[string]string{"phone_number": "+85296062000"})

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleCreate_BadCompanyID(t *testing.T) {
	_, router := setupHandlerTest(t)
	rr := doJSON(t, router, http.MethodPost, "/companies/not-a-uuid/verifications",
		map[string]string{"phone_number": "+85296062000"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleRequestCode_NeedsPin(t *testing.T) {
	service, router := setupHandlerTest(t)
	verificationID := uuid.New()

	service.On("RequestVerificationCode", mock.Anything, app.RequestCodeInput{
		VerificationID: verificationID,
		CodeMethod:     domain.CodeMethodSMS,
	}).Return(&app.RequestCodeResult{
		Status:        domain.StatusVerified,
		RequiresPin:   true,
		PhoneNumberID: "pnid-1",
	}, nil)

	rr := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/verifications/%s/request-code", verificationID),
		map[string]string{"code_method": "SMS"})

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp httptransport.RequestCodeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.RequiresPin)
	assert.Equal(t, domain.StatusVerified, resp.Status)
}

func TestHandleRequestCode_BusinessErrorMapsTo422(t *testing.T) {
	service, router := setupHandlerTest(t)
	verificationID := uuid.New()

	service.On("RequestVerificationCode", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: certificate has expired", domain.ErrBusiness))

	rr := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/verifications/%s/request-code", verificationID),
		map[string]string{})

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHandleVerifyCode_Linked(t *testing.T) {
	service, router := setupHandlerTest(t)
	verificationID := uuid.New()

	service.On("VerifyCode", mock.Anything, verificationID, "384729").
		Return(&app.LinkResult{Status: app.StatusLinked, PhoneNumberID: "pnid-1"}, nil)

	rr := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/verifications/%s/verify-code", verificationID),
		map[string]string{"code": "384729"})

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp httptransport.LinkResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "linked", resp.Status)
	assert.Equal(t, "pnid-1", resp.PhoneNumberID)
}

func TestHandleVerifyCode_MissingCodeRejectedByValidator(t *testing.T) {
	service, router := setupHandlerTest(t)
	verificationID := uuid.New()

	rr := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/verifications/%s/verify-code", verificationID),
		map[string]string{})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	service.AssertNotCalled(t, "VerifyCode")
}

func TestHandleRegisterPin_BadPinRejectedByValidator(t *testing.T) {
	service, router := setupHandlerTest(t)
	verificationID := uuid.New()

	rr := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/verifications/%s/register-pin", verificationID),
		map[string]string{"pin": "12ab56"})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	service.AssertNotCalled(t, "RegisterWithPin")
}

func TestHandleGet_NotFound(t *testing.T) {
	service, router := setupHandlerTest(t)
	verificationID := uuid.New()

	service.On("GetVerification", mock.Anything, verificationID).
		Return(nil, domain.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/verifications/%s", verificationID), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleList_EmptyIsJSONArray(t *testing.T) {
	service, router := setupHandlerTest(t)
	companyID := uuid.New()

	service.On("ListCompanyVerifications", mock.Anything, companyID).
		Return([]*domain.VerificationRecord{}, nil)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/companies/%s/verifications", companyID), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}
