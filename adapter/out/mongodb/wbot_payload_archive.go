package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PayloadArchiveAdapter implements out.PayloadArchive: raw webhook payloads
// stored verbatim for replay and debugging. Inserts are idempotent on the
// provider message id so duplicate deliveries don't duplicate documents.
type PayloadArchiveAdapter struct {
	collection *mongo.Collection
}

// NewPayloadArchiveAdapter creates the adapter and its unique index.
func NewPayloadArchiveAdapter(client *mongo.Client, database string) (*PayloadArchiveAdapter, error) {
	collection := client.Database(database).Collection("webhook_payloads")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "message_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payload index: %w", err)
	}

	return &PayloadArchiveAdapter{collection: collection}, nil
}

type payloadDocument struct {
	MessageID  string    `bson:"message_id"`
	Payload    []byte    `bson:"payload"`
	ReceivedAt time.Time `bson:"received_at"`
}

// Store archives one raw payload. A duplicate message id is not an error.
func (a *PayloadArchiveAdapter) Store(ctx context.Context, messageID string, payload []byte) error {
	doc := payloadDocument{
		MessageID:  messageID,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}

	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to archive payload: %w", err)
	}
	return nil
}
