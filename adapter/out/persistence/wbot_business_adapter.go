package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	"github.com/countplus7/wbot-backend-sub000/pkg/apperr"
)

// BusinessAdapter implements out.BusinessRepository using PostgreSQL.
type BusinessAdapter struct {
	db *sqlx.DB
}

// NewBusinessAdapter creates a new BusinessAdapter.
func NewBusinessAdapter(db *sqlx.DB) *BusinessAdapter {
	return &BusinessAdapter{db: db}
}

type businessRow struct {
	ID            uuid.UUID `db:"id"`
	Name          string    `db:"name"`
	PhoneNumberID string    `db:"phone_number_id"`
	Tone          string    `db:"tone"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r *businessRow) toEntity() *domain.Business {
	return &domain.Business{
		ID:            r.ID,
		Name:          r.Name,
		PhoneNumberID: r.PhoneNumberID,
		Tone:          r.Tone,
		CreatedAt:     r.CreatedAt,
	}
}

// GetByPhoneNumberID resolves the tenant for an inbound webhook delivery.
func (a *BusinessAdapter) GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*domain.Business, error) {
	var row businessRow
	query := `SELECT id, name, phone_number_id, tone, created_at
	          FROM businesses WHERE phone_number_id = $1`

	if err := a.db.GetContext(ctx, &row, query, phoneNumberID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("business")
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}
	return row.toEntity(), nil
}

// GetByID retrieves a business by id.
func (a *BusinessAdapter) GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	var row businessRow
	query := `SELECT id, name, phone_number_id, tone, created_at
	          FROM businesses WHERE id = $1`

	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("business")
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}
	return row.toEntity(), nil
}
