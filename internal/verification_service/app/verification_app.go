package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chatbridge/wabalink/golang_services/internal/platform/locker"
	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/domain"
	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/provider"
)

const (
	certificateValidity = 7 * 24 * time.Hour
	codeValidity        = 10 * time.Minute
	// Fallback window when a record reaches code verification without one;
	// the authoritative expiry lives on the remote platform.
	lenientCodeValidity = 30 * time.Minute

	recordLockTTL = 30 * time.Second
)

// StatusLinked is the terminal result reported once a number is verified and
// registered for messaging.
const StatusLinked = "linked"

// Application drives the verification state machine: certificate intake,
// code request, code verification and PIN registration. All record mutation
// goes through here, serialized per record.
type Application struct {
	verifications domain.VerificationRepository
	companies     domain.CompanyConfigRepository
	gateway       provider.Gateway
	locks         locker.Locker
	logger        *slog.Logger

	verificationURLBase string
	defaultLanguage     string
}

func NewApplication(
	verifications domain.VerificationRepository,
	companies domain.CompanyConfigRepository,
	gateway provider.Gateway,
	locks locker.Locker,
	logger *slog.Logger,
	verificationURLBase string,
	defaultLanguage string,
) *Application {
	return &Application{
		verifications:       verifications,
		companies:           companies,
		gateway:             gateway,
		locks:               locks,
		logger:              logger.With("component", "verification_app"),
		verificationURLBase: verificationURLBase,
		defaultLanguage:     defaultLanguage,
	}
}

// CreateVerificationInput is the certificate intake request.
type CreateVerificationInput struct {
	CompanyID   uuid.UUID
	PhoneNumber string
	Certificate string
	CreatedBy   string
}

// CreateVerificationResult reports the record backing this attempt.
// Existing is true when an in-flight attempt was reused instead of creating
// a new one.
type CreateVerificationResult struct {
	VerificationID uuid.UUID
	URL            string
	Existing       bool
}

// CreateVerification validates the intake, resolves the display number,
// dedups against in-flight attempts and creates a pending record.
func (a *Application) CreateVerification(ctx context.Context, in CreateVerificationInput) (*CreateVerificationResult, error) {
	if in.CompanyID == uuid.Nil {
		return nil, fmt.Errorf("%w: company_id is required", domain.ErrValidation)
	}

	company, err := a.companies.GetByID(ctx, in.CompanyID)
	if err != nil {
		return nil, err
	}

	if company.PhoneNumberID == nil && in.PhoneNumber == "" {
		return nil, fmt.Errorf("%w: phone_number is required when the company has no registered number", domain.ErrValidation)
	}

	phoneNumber := in.PhoneNumber
	if phoneNumber == "" {
		phoneNumber = a.resolveDisplayNumber(ctx, company)
	}

	inFlight, err := a.verifications.ListInFlightByCompany(ctx, in.CompanyID)
	if err != nil {
		return nil, err
	}
	for _, rec := range inFlight {
		if a.matchesCandidate(rec, company.PhoneNumberID, phoneNumber) {
			a.logger.InfoContext(ctx, "Reusing in-flight verification",
				"verification_id", rec.ID, "company_id", in.CompanyID, "status", rec.Status)
			return &CreateVerificationResult{
				VerificationID: rec.ID,
				URL:            a.verificationURL(rec.ID),
				Existing:       true,
			}, nil
		}
	}

	var certificate *string
	var certificateExpiresAt *time.Time
	if in.Certificate != "" {
		certificate = &in.Certificate
		expiry := time.Now().UTC().Add(certificateValidity)
		certificateExpiresAt = &expiry
	}
	var createdBy *string
	if in.CreatedBy != "" {
		createdBy = &in.CreatedBy
	}

	rec := domain.NewVerificationRecord(uuid.New(), in.CompanyID, phoneNumber, certificate, certificateExpiresAt, createdBy)
	if err := a.verifications.Create(ctx, rec); err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "Verification created",
		"verification_id", rec.ID, "company_id", in.CompanyID, "phone_number", phoneNumber)
	return &CreateVerificationResult{
		VerificationID: rec.ID,
		URL:            a.verificationURL(rec.ID),
		Existing:       false,
	}, nil
}

// GetVerification returns one record by id.
func (a *Application) GetVerification(ctx context.Context, id uuid.UUID) (*domain.VerificationRecord, error) {
	return a.verifications.GetByID(ctx, id)
}

// ListCompanyVerifications returns every attempt for a company, newest first.
func (a *Application) ListCompanyVerifications(ctx context.Context, companyID uuid.UUID) ([]*domain.VerificationRecord, error) {
	return a.verifications.ListByCompany(ctx, companyID)
}

// resolveDisplayNumber finds the number to show for an intake that did not
// supply one: remote lookup by the cached phone-number id, then the
// company's on-file number, then empty.
func (a *Application) resolveDisplayNumber(ctx context.Context, company *domain.CompanyConfig) string {
	if company.PhoneNumberID != nil {
		info, _, err := a.gateway.LookupNumber(ctx, credentialsFor(company), *company.PhoneNumberID)
		if err == nil && info != nil && info.DisplayNumber != "" {
			return info.DisplayNumber
		}
		if err != nil {
			a.logger.WarnContext(ctx, "Remote number lookup failed; falling back to company record",
				"company_id", company.ID, "error", err)
		}
	}
	return company.PhoneNumber
}

func (a *Application) matchesCandidate(rec *domain.VerificationRecord, companyPhoneNumberID *string, phoneNumber string) bool {
	if companyPhoneNumberID != nil && rec.PhoneNumberID != nil && *rec.PhoneNumberID == *companyPhoneNumberID {
		return true
	}
	return phoneNumber != "" && rec.PhoneNumber == phoneNumber
}

func (a *Application) verificationURL(id uuid.UUID) string {
	return fmt.Sprintf("%s/%s", a.verificationURLBase, id)
}

// withRecordLock serializes all mutation of one record across concurrent
// requests and service instances. The repository's compare-and-set on
// updated_at remains the correctness backstop if the lock is ever lost.
func (a *Application) withRecordLock(ctx context.Context, id uuid.UUID, fn func() error) error {
	release, err := a.locks.Acquire(ctx, "verification:"+id.String(), recordLockTTL)
	if err != nil {
		if errors.Is(err, locker.ErrNotAcquired) {
			return fmt.Errorf("%w: verification is being processed by another request", domain.ErrConflict)
		}
		return err
	}
	defer release(ctx)
	return fn()
}

// persist writes a state transition. Mutations happen in memory first and
// hit the store exactly once, so a transition and its write are one unit.
func (a *Application) persist(ctx context.Context, rec *domain.VerificationRecord) error {
	if err := a.verifications.Update(ctx, rec); err != nil {
		a.logger.ErrorContext(ctx, "Failed to persist verification transition",
			"verification_id", rec.ID, "status", rec.Status, "error", err)
		return err
	}
	return nil
}

// propagatePhoneNumberID writes the assigned id back to the company cache.
// Last write wins; all records of a company converge to the same value.
func (a *Application) propagatePhoneNumberID(ctx context.Context, companyID uuid.UUID, phoneNumberID string) {
	if err := a.companies.SetPhoneNumberID(ctx, companyID, phoneNumberID); err != nil {
		a.logger.WarnContext(ctx, "Failed to propagate phone number id to company cache",
			"company_id", companyID, "phone_number_id", phoneNumberID, "error", err)
	}
}

func credentialsFor(company *domain.CompanyConfig) provider.Credentials {
	return provider.Credentials{
		BusinessAccountID: company.BusinessAccountID,
		AccessToken:       company.AccessToken,
	}
}
