package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/app"
	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/domain"
)

// VerificationService is the application surface this handler exposes.
type VerificationService interface {
	CreateVerification(ctx context.Context, in app.CreateVerificationInput) (*app.CreateVerificationResult, error)
	GetVerification(ctx context.Context, id uuid.UUID) (*domain.VerificationRecord, error)
	ListCompanyVerifications(ctx context.Context, companyID uuid.UUID) ([]*domain.VerificationRecord, error)
	RequestVerificationCode(ctx context.Context, in app.RequestCodeInput) (*app.RequestCodeResult, error)
	VerifyCode(ctx context.Context, verificationID uuid.UUID, code string) (*app.LinkResult, error)
	RegisterWithPin(ctx context.Context, verificationID uuid.UUID, pin string) (*app.LinkResult, error)
}

// VerificationHandler handles the verification admin API.
type VerificationHandler struct {
	service  VerificationService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewVerificationHandler(service VerificationService, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{
		service:  service,
		logger:   logger.With("handler", "verification"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts the verification routes on the given router.
func (h *VerificationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/companies/{companyID}/verifications", h.handleCreate)
	r.Get("/companies/{companyID}/verifications", h.handleList)
	r.Get("/verifications/{verificationID}", h.handleGet)
	r.Post("/verifications/{verificationID}/request-code", h.handleRequestCode)
	r.Post("/verifications/{verificationID}/verify-code", h.handleVerifyCode)
	r.Post("/verifications/{verificationID}/register-pin", h.handleRegisterPin)
}

func (h *VerificationHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.uuidParam(w, r, "companyID")
	if !ok {
		return
	}

	var req CreateVerificationRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.CreateVerification(r.Context(), app.CreateVerificationInput{
		CompanyID:   companyID,
		PhoneNumber: req.PhoneNumber,
		Certificate: req.Certificate,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Existing {
		status = http.StatusOK
	}
	h.writeJSON(w, status, CreateVerificationResponse{
		VerificationID: result.VerificationID.String(),
		URL:            result.URL,
		Existing:       result.Existing,
	})
}

func (h *VerificationHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "verificationID")
	if !ok {
		return
	}
	rec, err := h.service.GetVerification(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *VerificationHandler) handleList(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.uuidParam(w, r, "companyID")
	if !ok {
		return
	}
	records, err := h.service.ListCompanyVerifications(r.Context(), companyID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []*domain.VerificationRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

func (h *VerificationHandler) handleRequestCode(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "verificationID")
	if !ok {
		return
	}

	var req RequestCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.RequestVerificationCode(r.Context(), app.RequestCodeInput{
		VerificationID: id,
		PhoneNumber:    req.PhoneNumber,
		CodeMethod:     domain.CodeMethod(req.CodeMethod),
		Language:       req.Language,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, RequestCodeResponse{
		Status:        result.Status,
		CodeMethod:    result.CodeMethod,
		CodeExpiresAt: result.CodeExpiresAt,
		RequiresPin:   result.RequiresPin,
		PhoneNumberID: result.PhoneNumberID,
	})
}

func (h *VerificationHandler) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "verificationID")
	if !ok {
		return
	}

	var req VerifyCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.VerifyCode(r.Context(), id, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, LinkResponse{Status: result.Status, PhoneNumberID: result.PhoneNumberID})
}

func (h *VerificationHandler) handleRegisterPin(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "verificationID")
	if !ok {
		return
	}

	var req RegisterPinRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.RegisterWithPin(r.Context(), id, req.Pin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, LinkResponse{Status: result.Status, PhoneNumberID: result.PhoneNumberID})
}

// --- helpers ---

func (h *VerificationHandler) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.jsonError(w, "Invalid "+name, "must be a UUID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *VerificationHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			h.jsonError(w, "Request body is empty", "", http.StatusBadRequest)
			return false
		}
		h.jsonError(w, "Invalid request payload", err.Error(), http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.jsonError(w, "Validation failed", err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *VerificationHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		h.jsonError(w, "Validation failed", err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		h.jsonError(w, "Not found", err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrConflict):
		h.jsonError(w, "Conflict", err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrBusiness):
		h.jsonError(w, "Verification failed", err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrRemoteTransient):
		h.jsonError(w, "Messaging platform unreachable", err.Error(), http.StatusBadGateway)
	default:
		h.logger.ErrorContext(r.Context(), "Unhandled error in verification handler", "error", err)
		h.jsonError(w, "Internal server error", "", http.StatusInternalServerError)
	}
}

func (h *VerificationHandler) jsonError(w http.ResponseWriter, message, details string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(GenericErrorResponse{Error: message, Details: details}); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}

func (h *VerificationHandler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}
