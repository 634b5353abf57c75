package domain

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus is the closed set of states a verification attempt can
// be in. Every transition point must switch exhaustively over these values.
type VerificationStatus string

const (
	StatusPending   VerificationStatus = "pending"
	StatusRequested VerificationStatus = "requested"
	StatusVerified  VerificationStatus = "verified"
	StatusFailed    VerificationStatus = "failed"
	StatusExpired   VerificationStatus = "expired"
)

// IsValid reports whether s is one of the defined statuses.
func (s VerificationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusRequested, StatusVerified, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// InFlight reports whether a record in this status blocks a new attempt for
// the same company/number. Verified counts: the record still owes a PIN or a
// final link confirmation until the flow completes.
func (s VerificationStatus) InFlight() bool {
	switch s {
	case StatusPending, StatusRequested, StatusVerified:
		return true
	case StatusFailed, StatusExpired:
		return false
	}
	return false
}

// CodeMethod is the delivery channel for the one-time passcode.
type CodeMethod string

const (
	CodeMethodSMS   CodeMethod = "SMS"
	CodeMethodVoice CodeMethod = "VOICE"
)

// IsValid reports whether m is a supported delivery channel.
func (m CodeMethod) IsValid() bool {
	return m == CodeMethodSMS || m == CodeMethodVoice
}

// VerificationRecord is one phone-number verification attempt. Records are
// an audit trail: they are never deleted, only advanced through the status
// DAG.
type VerificationRecord struct {
	ID                   uuid.UUID          `json:"id"`
	CompanyID            uuid.UUID          `json:"company_id"`
	PhoneNumber          string             `json:"phone_number"`
	PhoneNumberID        *string            `json:"phone_number_id,omitempty"`
	Certificate          *string            `json:"-"`
	CertificateExpiresAt *time.Time         `json:"certificate_expires_at,omitempty"`
	Status               VerificationStatus `json:"status"`
	CodeMethod           CodeMethod         `json:"code_method"`
	CodeExpiresAt        *time.Time         `json:"code_expires_at,omitempty"`
	ErrorMessage         *string            `json:"error_message,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
	CreatedBy            *string            `json:"created_by,omitempty"`
}

// NewVerificationRecord creates a pending record for a fresh attempt.
// certificate and createdBy may be nil.
func NewVerificationRecord(id, companyID uuid.UUID, phoneNumber string, certificate *string, certificateExpiresAt *time.Time, createdBy *string) *VerificationRecord {
	now := time.Now().UTC()
	return &VerificationRecord{
		ID:                   id,
		CompanyID:            companyID,
		PhoneNumber:          phoneNumber,
		Certificate:          certificate,
		CertificateExpiresAt: certificateExpiresAt,
		Status:               StatusPending,
		CodeMethod:           CodeMethodSMS,
		CreatedAt:            now,
		UpdatedAt:            now,
		CreatedBy:            createdBy,
	}
}

// CertificateExpired reports whether the intake certificate existed and its
// validity window has passed.
func (r *VerificationRecord) CertificateExpired(now time.Time) bool {
	return r.CertificateExpiresAt != nil && r.CertificateExpiresAt.Before(now)
}

// SetFailed moves the record to failed, keeping the platform's message for
// diagnosis.
func (r *VerificationRecord) SetFailed(message string) {
	r.Status = StatusFailed
	r.ErrorMessage = &message
}
