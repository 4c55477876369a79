package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
)

// FAQAdapter implements out.FAQRepository using PostgreSQL.
type FAQAdapter struct {
	db *sqlx.DB
}

// NewFAQAdapter creates a new FAQAdapter.
func NewFAQAdapter(db *sqlx.DB) *FAQAdapter {
	return &FAQAdapter{db: db}
}

type faqRow struct {
	ID         uuid.UUID       `db:"id"`
	BusinessID uuid.UUID       `db:"business_id"`
	Question   string          `db:"question"`
	Answer     string          `db:"answer"`
	Embedding  pq.Float64Array `db:"embedding"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

func (r *faqRow) toEntity() *domain.FAQEntry {
	embedding := make([]float32, len(r.Embedding))
	for i, v := range r.Embedding {
		embedding[i] = float32(v)
	}
	return &domain.FAQEntry{
		ID:         r.ID,
		BusinessID: r.BusinessID,
		Question:   r.Question,
		Answer:     r.Answer,
		Embedding:  embedding,
		UpdatedAt:  r.UpdatedAt,
	}
}

// ListByBusiness returns the FAQ set for one business with embeddings.
func (a *FAQAdapter) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]*domain.FAQEntry, error) {
	var rows []faqRow
	query := `SELECT id, business_id, question, answer, embedding, updated_at
	          FROM faq_entries WHERE business_id = $1 ORDER BY question ASC`

	if err := a.db.SelectContext(ctx, &rows, query, businessID); err != nil {
		return nil, fmt.Errorf("failed to list faq entries: %w", err)
	}

	entries := make([]*domain.FAQEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].toEntity()
	}
	return entries, nil
}

// ReplaceForBusiness swaps the whole FAQ set atomically. A reader either
// sees the old set or the new set, never a mix.
func (a *FAQAdapter) ReplaceForBusiness(ctx context.Context, businessID uuid.UUID, entries []*domain.FAQEntry) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM faq_entries WHERE business_id = $1`, businessID); err != nil {
		return fmt.Errorf("failed to clear faq entries: %w", err)
	}

	query := `INSERT INTO faq_entries (id, business_id, question, answer, embedding, updated_at)
	          VALUES ($1, $2, $3, $4, $5, NOW())`
	for _, entry := range entries {
		id := entry.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := tx.ExecContext(ctx, query, id, businessID, entry.Question, entry.Answer, toEmbeddingArray(entry.Embedding)); err != nil {
			return fmt.Errorf("failed to insert faq entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit faq replacement: %w", err)
	}
	return nil
}
