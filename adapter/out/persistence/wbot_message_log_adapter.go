// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// MessageLogAdapter implements out.MessageLog using PostgreSQL. The insert
// is the single point of truth for duplicate deliveries: ON CONFLICT DO
// NOTHING means whichever concurrent insert lands first wins and the other
// sees zero rows affected.
type MessageLogAdapter struct {
	db *sqlx.DB
}

// NewMessageLogAdapter creates a new MessageLogAdapter.
func NewMessageLogAdapter(db *sqlx.DB) *MessageLogAdapter {
	return &MessageLogAdapter{db: db}
}

// Insert records a provider message id. Returns false when the id was
// already logged.
func (a *MessageLogAdapter) Insert(ctx context.Context, messageID string, businessID uuid.UUID) (bool, error) {
	query := `INSERT INTO message_log (message_id, business_id, received_at)
	          VALUES ($1, $2, NOW())
	          ON CONFLICT (message_id) DO NOTHING`

	result, err := a.db.ExecContext(ctx, query, messageID, businessID)
	if err != nil {
		return false, fmt.Errorf("failed to insert message log: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected == 1, nil
}

// MarkHandled records which handler produced the terminal response.
func (a *MessageLogAdapter) MarkHandled(ctx context.Context, messageID, handlerName string) error {
	query := `UPDATE message_log SET handler_name = $2, handled_at = NOW() WHERE message_id = $1`

	if _, err := a.db.ExecContext(ctx, query, messageID, handlerName); err != nil {
		return fmt.Errorf("failed to mark message handled: %w", err)
	}
	return nil
}
