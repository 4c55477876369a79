package domain

import (
	"time"

	"github.com/google/uuid"
)

// FAQMatchSource tags where a FAQ match came from so callers can reason
// about match quality.
type FAQMatchSource string

const (
	FAQSourceSemanticCached  FAQMatchSource = "semantic_cached"
	FAQSourceSemanticLive    FAQMatchSource = "semantic_live"
	FAQSourceKeywordFallback FAQMatchSource = "keyword_fallback"
)

// FAQEntry is one question/answer pair scoped to a business. Embeddings are
// refreshed wholesale when the upstream FAQ source changes.
type FAQEntry struct {
	ID         uuid.UUID `json:"id" db:"id"`
	BusinessID uuid.UUID `json:"business_id" db:"business_id"`
	Question   string    `json:"question" db:"question"`
	Answer     string    `json:"answer" db:"answer"`
	Embedding  []float32 `json:"-"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// FAQMatch is a scored FAQ search hit. Absence of a match is expressed as a
// nil *FAQMatch, not an error.
type FAQMatch struct {
	Entry  *FAQEntry      `json:"entry"`
	Score  float64        `json:"score"`
	Source FAQMatchSource `json:"source"`
}
