package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
)

// LabelAdapter implements out.LabelRepository using PostgreSQL. Example
// embeddings are stored as float8 arrays alongside the example text.
type LabelAdapter struct {
	db *sqlx.DB
}

// NewLabelAdapter creates a new LabelAdapter.
func NewLabelAdapter(db *sqlx.DB) *LabelAdapter {
	return &LabelAdapter{db: db}
}

type labelRow struct {
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Threshold   float64   `db:"threshold"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
}

type exampleRow struct {
	LabelName string          `db:"label_name"`
	Text      string          `db:"text"`
	Embedding pq.Float64Array `db:"embedding"`
	Weight    float64         `db:"weight"`
}

func (r *exampleRow) toEntity() domain.Example {
	embedding := make([]float32, len(r.Embedding))
	for i, v := range r.Embedding {
		embedding[i] = float32(v)
	}
	return domain.Example{
		Text:      r.Text,
		Embedding: embedding,
		Weight:    r.Weight,
	}
}

func toEmbeddingArray(embedding []float32) pq.Float64Array {
	arr := make(pq.Float64Array, len(embedding))
	for i, v := range embedding {
		arr[i] = float64(v)
	}
	return arr
}

// ListActive returns active labels with their examples loaded.
func (a *LabelAdapter) ListActive(ctx context.Context) ([]*domain.Label, error) {
	var labelRows []labelRow
	query := `SELECT name, description, threshold, is_active, created_at
	          FROM labels WHERE is_active = true ORDER BY name ASC`
	if err := a.db.SelectContext(ctx, &labelRows, query); err != nil {
		return nil, fmt.Errorf("failed to list active labels: %w", err)
	}
	if len(labelRows) == 0 {
		return nil, nil
	}

	var exampleRows []exampleRow
	query = `SELECT e.label_name, e.text, e.embedding, e.weight
	         FROM label_examples e
	         JOIN labels l ON l.name = e.label_name
	         WHERE l.is_active = true
	         ORDER BY e.label_name ASC, e.id ASC`
	if err := a.db.SelectContext(ctx, &exampleRows, query); err != nil {
		return nil, fmt.Errorf("failed to list label examples: %w", err)
	}

	byLabel := make(map[string][]domain.Example)
	for i := range exampleRows {
		byLabel[exampleRows[i].LabelName] = append(byLabel[exampleRows[i].LabelName], exampleRows[i].toEntity())
	}

	labels := make([]*domain.Label, len(labelRows))
	for i, row := range labelRows {
		labels[i] = &domain.Label{
			Name:        row.Name,
			Description: row.Description,
			Threshold:   row.Threshold,
			IsActive:    row.IsActive,
			Examples:    byLabel[row.Name],
		}
	}

	return labels, nil
}

// BulkAddExamples stores precomputed example embeddings for a label in one
// transaction, creating the label row if it does not exist yet.
func (a *LabelAdapter) BulkAddExamples(ctx context.Context, labelName string, examples []domain.Example) error {
	if len(examples) == 0 {
		return nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO labels (name, description, threshold, is_active, created_at)
	          VALUES ($1, '', 0.75, true, NOW())
	          ON CONFLICT (name) DO NOTHING`
	if _, err := tx.ExecContext(ctx, query, labelName); err != nil {
		return fmt.Errorf("failed to upsert label: %w", err)
	}

	query = `INSERT INTO label_examples (label_name, text, embedding, weight)
	         VALUES ($1, $2, $3, $4)`
	for _, example := range examples {
		weight := example.Weight
		if weight <= 0 {
			weight = 1.0
		}
		if _, err := tx.ExecContext(ctx, query, labelName, example.Text, toEmbeddingArray(example.Embedding), weight); err != nil {
			return fmt.Errorf("failed to insert example: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit examples: %w", err)
	}
	return nil
}

// Deactivate disables a label and deletes its examples.
func (a *LabelAdapter) Deactivate(ctx context.Context, labelName string) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM label_examples WHERE label_name = $1`, labelName); err != nil {
		return fmt.Errorf("failed to delete label examples: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE labels SET is_active = false WHERE name = $1`, labelName); err != nil {
		return fmt.Errorf("failed to deactivate label: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deactivation: %w", err)
	}
	return nil
}
