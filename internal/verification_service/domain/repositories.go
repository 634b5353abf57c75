package domain

import (
	"context"

	"github.com/google/uuid"
)

// VerificationRepository manages VerificationRecord persistence.
type VerificationRepository interface {
	Create(ctx context.Context, rec *VerificationRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*VerificationRecord, error)
	// Update persists rec with a compare-and-set on updated_at; it returns
	// ErrConflict when the stored row changed since rec was loaded, and
	// refreshes rec.UpdatedAt on success.
	Update(ctx context.Context, rec *VerificationRecord) error
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*VerificationRecord, error)
	// ListInFlightByCompany returns the company's records whose status still
	// blocks a new attempt (pending, requested, verified).
	ListInFlightByCompany(ctx context.Context, companyID uuid.UUID) ([]*VerificationRecord, error)
}

// CompanyConfigRepository reads company messaging configuration and writes
// back the single field this subsystem owns.
type CompanyConfigRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*CompanyConfig, error)
	// SetPhoneNumberID caches the platform-assigned phone-number id on the
	// company. Last write wins.
	SetPhoneNumberID(ctx context.Context, companyID uuid.UUID, phoneNumberID string) error
}
