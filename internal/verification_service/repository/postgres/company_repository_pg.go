package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chatbridge/wabalink/golang_services/internal/verification_service/domain"
)

type PgCompanyConfigRepository struct {
	db     DBPool
	logger *slog.Logger
}

func NewPgCompanyConfigRepository(db DBPool, logger *slog.Logger) *PgCompanyConfigRepository {
	return &PgCompanyConfigRepository{db: db, logger: logger}
}

func (r *PgCompanyConfigRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CompanyConfig, error) {
	query := `SELECT id, name, phone_number, business_account_id, access_token, phone_number_id, created_at, updated_at FROM companies WHERE id = $1`
	company := &domain.CompanyConfig{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&company.ID, &company.Name, &company.PhoneNumber, &company.BusinessAccountID,
		&company.AccessToken, &company.PhoneNumberID, &company.CreatedAt, &company.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting company by ID", "error", err, "company_id", id)
		return nil, err
	}
	return company, nil
}

// SetPhoneNumberID caches the platform-assigned id on the company row.
// Last write wins; this is the only company field this subsystem mutates.
func (r *PgCompanyConfigRepository) SetPhoneNumberID(ctx context.Context, companyID uuid.UUID, phoneNumberID string) error {
	query := `UPDATE companies SET phone_number_id = $1, updated_at = $2 WHERE id = $3`
	tag, err := r.db.Exec(ctx, query, phoneNumberID, time.Now().UTC(), companyID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error caching phone number id on company", "error", err, "company_id", companyID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
