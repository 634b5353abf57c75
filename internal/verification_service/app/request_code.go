package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/domain"
	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/provider"
)

// RequestCodeInput asks the platform to send a one-time passcode for a
// pending verification.
type RequestCodeInput struct {
	VerificationID uuid.UUID
	PhoneNumber    string
	CodeMethod     domain.CodeMethod
	Language       string
}

// RequestCodeResult is the outcome of a code request. RequiresPin is the
// soft-success shape: the platform already verified ownership and will not
// resend a code, so the flow must finish with a user-chosen PIN.
type RequestCodeResult struct {
	Status        domain.VerificationStatus `json:"status"`
	CodeMethod    domain.CodeMethod         `json:"code_method,omitempty"`
	CodeExpiresAt *time.Time                `json:"code_expires_at,omitempty"`
	RequiresPin   bool                      `json:"requires_pin,omitempty"`
	PhoneNumberID string                    `json:"phone_number_id,omitempty"`
}

// phoneNumberIDSource tags where a usable phone-number id came from, or that
// a remote registration is still needed.
type phoneNumberIDSource int

const (
	idFromCompanyCache phoneNumberIDSource = iota
	idFromRecord
	idNeedsRegistration
)

// resolvePhoneNumberID picks the phone-number id to use, preferring the
// company cache, then the record's own stored id. It performs no I/O.
func resolvePhoneNumberID(company *domain.CompanyConfig, rec *domain.VerificationRecord) (string, phoneNumberIDSource) {
	if company.PhoneNumberID != nil && *company.PhoneNumberID != "" {
		return *company.PhoneNumberID, idFromCompanyCache
	}
	if rec.PhoneNumberID != nil && *rec.PhoneNumberID != "" {
		return *rec.PhoneNumberID, idFromRecord
	}
	return "", idNeedsRegistration
}

// RequestVerificationCode resolves (or remotely registers) the phone-number
// id for the record and asks the platform to send an OTP.
func (a *Application) RequestVerificationCode(ctx context.Context, in RequestCodeInput) (*RequestCodeResult, error) {
	var result *RequestCodeResult
	err := a.withRecordLock(ctx, in.VerificationID, func() error {
		var err error
		result, err = a.requestCode(ctx, in)
		return err
	})
	return result, err
}

func (a *Application) requestCode(ctx context.Context, in RequestCodeInput) (*RequestCodeResult, error) {
	rec, err := a.verifications.GetByID(ctx, in.VerificationID)
	if err != nil {
		return nil, err
	}
	company, err := a.companies.GetByID(ctx, rec.CompanyID)
	if err != nil {
		return nil, err
	}

	if rec.CertificateExpired(time.Now().UTC()) {
		rec.Status = domain.StatusExpired
		if err := a.persist(ctx, rec); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: certificate has expired; submit a new certificate to restart", domain.ErrBusiness)
	}

	switch rec.Status {
	case domain.StatusPending, domain.StatusFailed, domain.StatusRequested:
		// Allowed: fresh, explicit retry, or re-request of a new code.
	case domain.StatusVerified, domain.StatusExpired:
		return nil, fmt.Errorf("%w: cannot request a code for a verification in status %q", domain.ErrValidation, rec.Status)
	default:
		return nil, fmt.Errorf("%w: unknown verification status %q", domain.ErrValidation, rec.Status)
	}

	workingNumber := in.PhoneNumber
	if workingNumber == "" {
		workingNumber = rec.PhoneNumber
	}

	creds := credentialsFor(company)
	phoneNumberID, source := resolvePhoneNumberID(company, rec)
	switch source {
	case idFromCompanyCache:
		rec.Status = domain.StatusPending
		rec.CodeExpiresAt = nil
	case idFromRecord:
		rec.Status = domain.StatusPending
		rec.CodeExpiresAt = nil
		a.propagatePhoneNumberID(ctx, company.ID, phoneNumberID)
	case idNeedsRegistration:
		phoneNumberID, err = a.registerNumber(ctx, creds, company, rec, workingNumber)
		if err != nil {
			return nil, err
		}
	}

	method := in.CodeMethod
	if method == "" {
		method = domain.CodeMethodSMS
	}
	if !method.IsValid() {
		return nil, fmt.Errorf("%w: unsupported code method %q", domain.ErrValidation, method)
	}
	language := in.Language
	if language == "" {
		language = a.defaultLanguage
	}

	res, err := a.gateway.RequestCode(ctx, creds, phoneNumberID, method, language)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteTransient, err)
	}

	classification := provider.Classify(res)
	switch classification.Outcome {
	case provider.OutcomeAlreadyVerifiedNeedsPin:
		// Not a failure: ownership is proven, a PIN entry is still owed.
		rec.Status = domain.StatusVerified
		rec.PhoneNumberID = &phoneNumberID
		rec.ErrorMessage = nil
		if err := a.persist(ctx, rec); err != nil {
			return nil, err
		}
		a.propagatePhoneNumberID(ctx, company.ID, phoneNumberID)
		a.logger.InfoContext(ctx, "Number already verified; PIN registration required",
			"verification_id", rec.ID, "phone_number_id", phoneNumberID)
		return &RequestCodeResult{
			Status:        domain.StatusVerified,
			RequiresPin:   true,
			PhoneNumberID: phoneNumberID,
		}, nil

	case provider.OutcomeFailureHard:
		rec.SetFailed(classification.Message)
		if err := a.persist(ctx, rec); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrBusiness, classification.Message)

	case provider.OutcomeSuccess, provider.OutcomeAlreadyLinked:
		expiry := time.Now().UTC().Add(codeValidity)
		rec.Status = domain.StatusRequested
		rec.CodeMethod = method
		rec.CodeExpiresAt = &expiry
		rec.PhoneNumberID = &phoneNumberID
		rec.ErrorMessage = nil
		if err := a.persist(ctx, rec); err != nil {
			return nil, err
		}
		a.propagatePhoneNumberID(ctx, company.ID, phoneNumberID)
		a.logger.InfoContext(ctx, "Verification code requested",
			"verification_id", rec.ID, "phone_number_id", phoneNumberID, "code_method", method)
		return &RequestCodeResult{
			Status:        domain.StatusRequested,
			CodeMethod:    method,
			CodeExpiresAt: &expiry,
			PhoneNumberID: phoneNumberID,
		}, nil
	}

	return nil, fmt.Errorf("%w: unhandled platform outcome", domain.ErrBusiness)
}

// registerNumber registers the working number under the company's business
// account and returns the platform-assigned id. When the platform reports
// the number already registered, the id is recovered from the registered
// numbers list instead of failing.
func (a *Application) registerNumber(ctx context.Context, creds provider.Credentials, company *domain.CompanyConfig, rec *domain.VerificationRecord, workingNumber string) (string, error) {
	countryCode, ok := domain.ResolveCountryCode(workingNumber)
	if !ok {
		return "", fmt.Errorf("%w: could not determine the calling code for %q", domain.ErrValidation, workingNumber)
	}
	normalized := normalizeNumber(workingNumber, countryCode)

	assignedID, res, err := a.gateway.RegisterNumber(ctx, creds, provider.RegisterNumberRequest{
		VerifiedName: company.Name,
		PhoneNumber:  normalized,
		CountryCode:  countryCode,
		Certificate:  derefString(rec.Certificate),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRemoteTransient, err)
	}

	classification := provider.Classify(res)
	switch classification.Outcome {
	case provider.OutcomeSuccess:
		if assignedID != "" {
			rec.PhoneNumberID = &assignedID
			if err := a.persist(ctx, rec); err != nil {
				return "", err
			}
			return assignedID, nil
		}
		// Registered but no id in the payload; fall through to recovery.
		fallthrough

	case provider.OutcomeAlreadyLinked, provider.OutcomeAlreadyVerifiedNeedsPin:
		recovered, err := a.recoverRegisteredID(ctx, creds, rec, normalized)
		if err != nil {
			return "", err
		}
		if recovered != "" {
			rec.PhoneNumberID = &recovered
			if err := a.persist(ctx, rec); err != nil {
				return "", err
			}
			return recovered, nil
		}
		rec.SetFailed(classification.Message)
		if err := a.persist(ctx, rec); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: number appears registered but its id could not be recovered", domain.ErrBusiness)

	case provider.OutcomeFailureHard:
		rec.SetFailed(classification.Message)
		if err := a.persist(ctx, rec); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %s", domain.ErrBusiness, classification.Message)
	}

	return "", fmt.Errorf("%w: unhandled platform outcome during registration", domain.ErrBusiness)
}

// recoverRegisteredID looks the number up in the business account's
// registered list, falling back to an id the record may have carried before.
func (a *Application) recoverRegisteredID(ctx context.Context, creds provider.Credentials, rec *domain.VerificationRecord, normalized string) (string, error) {
	numbers, _, err := a.gateway.ListNumbers(ctx, creds)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRemoteTransient, err)
	}
	for _, n := range numbers {
		if sameNumber(n.DisplayNumber, normalized) {
			return n.ID, nil
		}
	}
	if len(numbers) > 0 && normalized == "" {
		return numbers[0].ID, nil
	}
	if rec.PhoneNumberID != nil {
		return *rec.PhoneNumberID, nil
	}
	return "", nil
}

// normalizeNumber reduces the number to digits prefixed with the calling
// code exactly once.
func normalizeNumber(raw, countryCode string) string {
	digits := digitsOnly(raw)
	if strings.HasPrefix(digits, countryCode) {
		return digits
	}
	return countryCode + digits
}

func sameNumber(a, b string) bool {
	da, db := digitsOnly(a), digitsOnly(b)
	return da != "" && da == db
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
