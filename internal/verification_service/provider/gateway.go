package provider

import (
	"context"
	"encoding/json"

	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/domain"
)

// Credentials carries the per-company authentication material for the
// remote messaging platform. Every call is bearer-token authenticated.
type Credentials struct {
	BusinessAccountID string
	AccessToken       string
}

// PlatformError is the structured error object the platform embeds in
// response bodies. It can arrive under any HTTP status, including 200.
type PlatformError struct {
	Message     string `json:"message"`
	Type        string `json:"type"`
	Code        int    `json:"code"`
	Subcode     int    `json:"error_subcode"`
	UserTitle   string `json:"error_user_title"`
	UserMessage string `json:"error_user_msg"`
}

// BestMessage returns the most specific human-readable message available.
func (e *PlatformError) BestMessage() string {
	if e == nil {
		return ""
	}
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// CallResult is the raw outcome of one platform call: the HTTP status, the
// unmodified body, and the parsed error object if the body carried one.
// Interpretation belongs to Classify, not to the gateway.
type CallResult struct {
	StatusCode  int
	RawBody     json.RawMessage
	PlatformErr *PlatformError
}

// NumberInfo is the platform's view of a registered number.
type NumberInfo struct {
	ID            string `json:"id"`
	DisplayNumber string `json:"display_phone_number"`
	VerifiedName  string `json:"verified_name"`
}

// RegisterNumberRequest carries the fields for registering a new phone
// number under the company's business account.
type RegisterNumberRequest struct {
	VerifiedName string
	PhoneNumber  string
	CountryCode  string
	Certificate  string
}

// Gateway abstracts the remote verification/messaging platform. Methods
// return a non-nil *CallResult whenever an HTTP response was received; a
// non-nil error only for transport-level failures (after bounded retries).
// No business interpretation happens here.
type Gateway interface {
	LookupNumber(ctx context.Context, creds Credentials, phoneNumberID string) (*NumberInfo, *CallResult, error)
	RegisterNumber(ctx context.Context, creds Credentials, req RegisterNumberRequest) (string, *CallResult, error)
	ListNumbers(ctx context.Context, creds Credentials) ([]NumberInfo, *CallResult, error)
	RequestCode(ctx context.Context, creds Credentials, phoneNumberID string, method domain.CodeMethod, language string) (*CallResult, error)
	VerifyCode(ctx context.Context, creds Credentials, phoneNumberID, code string) (*CallResult, error)
	FinalizeLink(ctx context.Context, creds Credentials, phoneNumberID, pin string) (*CallResult, error)
}
