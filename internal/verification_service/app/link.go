package app

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/domain"
	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/provider"
)

var pinPattern = regexp.MustCompile(`^[0-9]{6}$`)

// LinkResult reports a completed link: the number is verified and registered
// for messaging.
type LinkResult struct {
	Status        string `json:"status"`
	PhoneNumberID string `json:"phone_number_id"`
}

// VerifyCode submits the user's one-time passcode and, on success,
// immediately registers the number using the same code as the PIN.
func (a *Application) VerifyCode(ctx context.Context, verificationID uuid.UUID, code string) (*LinkResult, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", domain.ErrValidation)
	}

	var result *LinkResult
	err := a.withRecordLock(ctx, verificationID, func() error {
		var err error
		result, err = a.verifyCode(ctx, verificationID, code)
		return err
	})
	return result, err
}

func (a *Application) verifyCode(ctx context.Context, verificationID uuid.UUID, code string) (*LinkResult, error) {
	rec, err := a.verifications.GetByID(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	company, err := a.companies.GetByID(ctx, rec.CompanyID)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case domain.StatusPending, domain.StatusRequested:
		// Normal path.
	case domain.StatusFailed:
		// One automatic retry: a failed attempt may resubmit a code.
		rec.Status = domain.StatusPending
	case domain.StatusVerified:
		// Arrived via the soft-success path; the status only marks that a
		// PIN/code entry is still owed.
		rec.Status = domain.StatusRequested
	case domain.StatusExpired:
		return nil, fmt.Errorf("%w: verification expired; create a new verification to restart", domain.ErrBusiness)
	default:
		return nil, fmt.Errorf("%w: unknown verification status %q", domain.ErrValidation, rec.Status)
	}

	if rec.CodeExpiresAt == nil {
		// The platform owns the real expiry; keep a lenient local window
		// rather than rejecting the attempt.
		expiry := time.Now().UTC().Add(lenientCodeValidity)
		rec.CodeExpiresAt = &expiry
	}

	phoneNumberID, source := resolvePhoneNumberID(company, rec)
	if source == idNeedsRegistration {
		return nil, fmt.Errorf("%w: no phone number id on record; request a code first", domain.ErrValidation)
	}

	creds := credentialsFor(company)
	res, err := a.gateway.VerifyCode(ctx, creds, phoneNumberID, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteTransient, err)
	}
	if c := provider.Classify(res); c.Outcome == provider.OutcomeFailureHard {
		rec.SetFailed(c.Message)
		if err := a.persist(ctx, rec); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrBusiness, c.Message)
	}

	// Code accepted; finish the link right away using the code as the PIN.
	return a.finalizeLink(ctx, creds, company, rec, phoneNumberID, code)
}

// RegisterWithPin finishes linking with a user-chosen PIN. This is the path
// for numbers the platform reported as already verified.
func (a *Application) RegisterWithPin(ctx context.Context, verificationID uuid.UUID, pin string) (*LinkResult, error) {
	if !pinPattern.MatchString(pin) {
		return nil, fmt.Errorf("%w: pin must be exactly 6 digits", domain.ErrValidation)
	}

	var result *LinkResult
	err := a.withRecordLock(ctx, verificationID, func() error {
		var err error
		result, err = a.registerWithPin(ctx, verificationID, pin)
		return err
	})
	return result, err
}

func (a *Application) registerWithPin(ctx context.Context, verificationID uuid.UUID, pin string) (*LinkResult, error) {
	rec, err := a.verifications.GetByID(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	company, err := a.companies.GetByID(ctx, rec.CompanyID)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case domain.StatusVerified, domain.StatusPending:
		// Allowed.
	case domain.StatusRequested, domain.StatusFailed, domain.StatusExpired:
		return nil, fmt.Errorf("%w: cannot register a PIN for a verification in status %q", domain.ErrValidation, rec.Status)
	default:
		return nil, fmt.Errorf("%w: unknown verification status %q", domain.ErrValidation, rec.Status)
	}

	phoneNumberID, source := resolvePhoneNumberID(company, rec)
	if source == idNeedsRegistration {
		return nil, fmt.Errorf("%w: no phone number id on record; request a code first", domain.ErrValidation)
	}

	return a.finalizeLink(ctx, credentialsFor(company), company, rec, phoneNumberID, pin)
}

// finalizeLink registers the number for messaging with the given PIN and, on
// (possibly idempotent) success, drives the record to its terminal verified
// state.
func (a *Application) finalizeLink(ctx context.Context, creds provider.Credentials, company *domain.CompanyConfig, rec *domain.VerificationRecord, phoneNumberID, pin string) (*LinkResult, error) {
	res, err := a.gateway.FinalizeLink(ctx, creds, phoneNumberID, pin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteTransient, err)
	}

	classification := provider.Classify(res)
	switch classification.Outcome {
	case provider.OutcomeSuccess, provider.OutcomeAlreadyLinked:
		// Already linked is the desired end state; treat it as success.
	default:
		rec.SetFailed(classification.Message)
		if err := a.persist(ctx, rec); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s (platform response: %s)", domain.ErrBusiness, classification.Message, string(res.RawBody))
	}

	rec.Status = domain.StatusVerified
	rec.ErrorMessage = nil
	rec.PhoneNumberID = &phoneNumberID
	if err := a.persist(ctx, rec); err != nil {
		return nil, err
	}
	a.propagatePhoneNumberID(ctx, company.ID, phoneNumberID)

	a.logger.InfoContext(ctx, "Number linked",
		"verification_id", rec.ID, "company_id", company.ID, "phone_number_id", phoneNumberID)
	return &LinkResult{Status: StatusLinked, PhoneNumberID: phoneNumberID}, nil
}
