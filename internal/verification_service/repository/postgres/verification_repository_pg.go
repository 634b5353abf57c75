package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/domain"
)

// DBPool is the subset of pgxpool.Pool the repositories need; pgxmock
// satisfies it in tests.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type PgVerificationRepository struct {
	db     DBPool
	logger *slog.Logger
}

func NewPgVerificationRepository(db DBPool, logger *slog.Logger) *PgVerificationRepository {
	return &PgVerificationRepository{db: db, logger: logger}
}

const verificationColumns = `id, company_id, phone_number, phone_number_id, certificate, certificate_expires_at, status, code_method, code_expires_at, error_message, created_at, updated_at, created_by`

func (r *PgVerificationRepository) Create(ctx context.Context, rec *domain.VerificationRecord) error {
	query := `
		INSERT INTO verifications (` + verificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.CompanyID, rec.PhoneNumber, rec.PhoneNumberID, rec.Certificate,
		rec.CertificateExpiresAt, rec.Status, rec.CodeMethod, rec.CodeExpiresAt,
		rec.ErrorMessage, rec.CreatedAt, rec.UpdatedAt, rec.CreatedBy,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating verification", "error", err, "verification_id", rec.ID)
		return err
	}
	return nil
}

func (r *PgVerificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.VerificationRecord, error) {
	query := `SELECT ` + verificationColumns + ` FROM verifications WHERE id = $1`
	rec, err := r.scanOne(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting verification by ID", "error", err, "verification_id", id)
		return nil, err
	}
	return rec, nil
}

// Update persists the record with a compare-and-set on updated_at. A lost
// race (or a deleted row) surfaces as domain.ErrConflict; the caller reloads
// and decides.
func (r *PgVerificationRepository) Update(ctx context.Context, rec *domain.VerificationRecord) error {
	query := `
		UPDATE verifications
		SET phone_number = $1, phone_number_id = $2, certificate = $3,
		    certificate_expires_at = $4, status = $5, code_method = $6,
		    code_expires_at = $7, error_message = $8, updated_at = $9
		WHERE id = $10 AND updated_at = $11
	`
	newUpdatedAt := time.Now().UTC()
	tag, err := r.db.Exec(ctx, query,
		rec.PhoneNumber, rec.PhoneNumberID, rec.Certificate, rec.CertificateExpiresAt,
		rec.Status, rec.CodeMethod, rec.CodeExpiresAt, rec.ErrorMessage,
		newUpdatedAt, rec.ID, rec.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating verification", "error", err, "verification_id", rec.ID)
		return err
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Verification update lost a compare-and-set race", "verification_id", rec.ID)
		return domain.ErrConflict
	}
	rec.UpdatedAt = newUpdatedAt
	return nil
}

func (r *PgVerificationRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*domain.VerificationRecord, error) {
	query := `SELECT ` + verificationColumns + ` FROM verifications WHERE company_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, companyID)
}

func (r *PgVerificationRepository) ListInFlightByCompany(ctx context.Context, companyID uuid.UUID) ([]*domain.VerificationRecord, error) {
	query := `
		SELECT ` + verificationColumns + ` FROM verifications
		WHERE company_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC
	`
	inFlight := []string{
		string(domain.StatusPending),
		string(domain.StatusRequested),
		string(domain.StatusVerified),
	}
	return r.list(ctx, query, companyID, inFlight)
}

func (r *PgVerificationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.VerificationRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing verifications", "error", err)
		return nil, err
	}
	defer rows.Close()

	var records []*domain.VerificationRecord
	for rows.Next() {
		rec, err := r.scanOne(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Error scanning verification row", "error", err)
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *PgVerificationRepository) scanOne(row pgx.Row) (*domain.VerificationRecord, error) {
	rec := &domain.VerificationRecord{}
	err := row.Scan(
		&rec.ID, &rec.CompanyID, &rec.PhoneNumber, &rec.PhoneNumberID, &rec.Certificate,
		&rec.CertificateExpiresAt, &rec.Status, &rec.CodeMethod, &rec.CodeExpiresAt,
		&rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt, &rec.CreatedBy,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
