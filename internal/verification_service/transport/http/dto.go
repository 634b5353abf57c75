package http

import (
	"time"

	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/domain"
)

// CreateVerificationRequest starts a verification attempt for a company.
type CreateVerificationRequest struct {
	PhoneNumber string `json:"phone_number,omitempty"`
	Certificate string `json:"certificate,omitempty"`
	CreatedBy   string `json:"created_by,omitempty" validate:"omitempty,max=255"`
}

// CreateVerificationResponse reports the backing record and the admin URL
// for the remaining steps.
type CreateVerificationResponse struct {
	VerificationID string `json:"verification_id"`
	URL            string `json:"url"`
	Existing       bool   `json:"existing"`
}

// RequestCodeRequest asks the platform to deliver a one-time passcode.
type RequestCodeRequest struct {
	PhoneNumber string `json:"phone_number,omitempty"`
	CodeMethod  string `json:"code_method,omitempty" validate:"omitempty,oneof=SMS VOICE"`
	Language    string `json:"language,omitempty" validate:"omitempty,max=10"`
}

// RequestCodeResponse mirrors app.RequestCodeResult. requires_pin signals
// the soft-success path: no code was sent, the flow continues with a PIN.
type RequestCodeResponse struct {
	Status        domain.VerificationStatus `json:"status"`
	CodeMethod    domain.CodeMethod         `json:"code_method,omitempty"`
	CodeExpiresAt *time.Time                `json:"code_expires_at,omitempty"`
	RequiresPin   bool                      `json:"requires_pin,omitempty"`
	PhoneNumberID string                    `json:"phone_number_id,omitempty"`
}

// VerifyCodeRequest submits the passcode the user received.
type VerifyCodeRequest struct {
	Code string `json:"code" validate:"required,numeric,min=4,max=8"`
}

// RegisterPinRequest finishes linking with a user-chosen 6-digit PIN.
type RegisterPinRequest struct {
	Pin string `json:"pin" validate:"required,len=6,numeric"`
}

// LinkResponse reports a completed link.
type LinkResponse struct {
	Status        string `json:"status"`
	PhoneNumberID string `json:"phone_number_id"`
}

// GenericErrorResponse is the error envelope for all API failures.
type GenericErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
