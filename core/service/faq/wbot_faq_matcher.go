// Package faq matches inbound questions against per-business FAQ sets using
// semantic similarity with a lexical fallback.
package faq

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	out "github.com/countplus7/wbot-backend-sub000/core/port/out"
	"github.com/countplus7/wbot-backend-sub000/pkg/logger"
	"github.com/countplus7/wbot-backend-sub000/pkg/vectorutil"
)

// =============================================================================
// FAQ Matcher
// =============================================================================

// MatcherConfig configures the FAQ search cascade.
type MatcherConfig struct {
	// Thresholds is tried strictest-first so a weak match never shadows a
	// strong one. Default [0.65, 0.55, 0.45].
	Thresholds []float64

	// KeywordFloor is the minimum blended lexical score accepted by the
	// keyword fallback. Default 0.2.
	KeywordFloor float64

	// CacheTTL bounds how long a business's embedded FAQ set is served from
	// memory before a live refetch. Default 10 minutes.
	CacheTTL time.Duration

	Now func() time.Time
}

// DefaultMatcherConfig returns the standard cascade configuration.
func DefaultMatcherConfig() *MatcherConfig {
	return &MatcherConfig{
		Thresholds:   []float64{0.65, 0.55, 0.45},
		KeywordFloor: 0.2,
		CacheTTL:     10 * time.Minute,
		Now:          time.Now,
	}
}

type cachedSet struct {
	entries   []*domain.FAQEntry
	fetchedAt time.Time
}

// Matcher resolves a question to the best FAQ entry for a business. Three
// strategies run in order: cached embeddings at descending thresholds, a
// live refetch with the same semantic search, then lexical keyword scoring.
// No match is a valid outcome and returns nil.
type Matcher struct {
	repo     out.FAQRepository
	embedder out.Embedder
	cfg      *MatcherConfig
	log      *logger.Logger

	mu   sync.RWMutex
	sets map[uuid.UUID]*cachedSet
}

func NewMatcher(repo out.FAQRepository, embedder out.Embedder, cfg *MatcherConfig) *Matcher {
	if cfg == nil {
		cfg = DefaultMatcherConfig()
	}
	if len(cfg.Thresholds) == 0 {
		cfg.Thresholds = []float64{0.65, 0.55, 0.45}
	}
	if cfg.KeywordFloor <= 0 {
		cfg.KeywordFloor = 0.2
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Matcher{
		repo:     repo,
		embedder: embedder,
		cfg:      cfg,
		log:      logger.Default().WithField("component", "faq_matcher"),
		sets:     make(map[uuid.UUID]*cachedSet),
	}
}

// Match runs the search cascade. A nil match with a nil error means no FAQ
// answered the question; the caller picks its own default behavior.
func (m *Matcher) Match(ctx context.Context, businessID uuid.UUID, question string) (*domain.FAQMatch, error) {
	vector, embedErr := m.embedder.Embed(ctx, question)
	if embedErr != nil {
		// Semantic search is off the table; go straight to lexical scoring
		// over whatever entries we can get.
		m.log.WithError(embedErr).Warn("embedding unavailable, lexical search only")
		entries, err := m.entriesForKeyword(ctx, businessID)
		if err != nil {
			return nil, err
		}
		return m.keywordMatch(question, entries), nil
	}

	// Strategy 1: cached embedded set, strictest threshold first.
	if cached := m.cachedEntries(businessID); cached != nil {
		if match := m.semanticMatch(vector, cached, domain.FAQSourceSemanticCached); match != nil {
			return match, nil
		}
	}

	// Strategy 2: live refetch, same descending-threshold search.
	entries, err := m.refreshEntries(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if match := m.semanticMatch(vector, entries, domain.FAQSourceSemanticLive); match != nil {
		return match, nil
	}

	// Strategy 3: lexical keyword blend with an absolute floor.
	return m.keywordMatch(question, entries), nil
}

// Invalidate drops the cached set for a business, forcing the next match to
// refetch. Called after an admin FAQ refresh.
func (m *Matcher) Invalidate(businessID uuid.UUID) {
	m.mu.Lock()
	delete(m.sets, businessID)
	m.mu.Unlock()
}

// semanticMatch tries each threshold in descending order and returns the
// best-scoring entry at the first threshold any entry clears.
func (m *Matcher) semanticMatch(vector []float32, entries []*domain.FAQEntry, source domain.FAQMatchSource) *domain.FAQMatch {
	if len(entries) == 0 {
		return nil
	}

	var best *domain.FAQEntry
	bestScore := -1.0
	for _, entry := range entries {
		if len(entry.Embedding) != len(vector) || len(entry.Embedding) == 0 {
			continue
		}
		score := vectorutil.Cosine(vector, entry.Embedding)
		if score > bestScore {
			bestScore = score
			best = entry
		}
	}
	if best == nil {
		return nil
	}

	for _, threshold := range m.cfg.Thresholds {
		if bestScore >= threshold {
			return &domain.FAQMatch{Entry: best, Score: bestScore, Source: source}
		}
	}
	return nil
}

// keywordMatch scores every entry lexically and accepts the best only above
// the configured floor.
func (m *Matcher) keywordMatch(question string, entries []*domain.FAQEntry) *domain.FAQMatch {
	var best *domain.FAQEntry
	bestScore := 0.0
	for _, entry := range entries {
		score := keywordScore(question, entry.Question)
		if score > bestScore {
			bestScore = score
			best = entry
		}
	}
	if best == nil || bestScore < m.cfg.KeywordFloor {
		return nil
	}
	return &domain.FAQMatch{Entry: best, Score: bestScore, Source: domain.FAQSourceKeywordFallback}
}

func (m *Matcher) cachedEntries(businessID uuid.UUID) []*domain.FAQEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.sets[businessID]
	if !ok || m.cfg.Now().Sub(set.fetchedAt) > m.cfg.CacheTTL {
		return nil
	}
	return set.entries
}

func (m *Matcher) refreshEntries(ctx context.Context, businessID uuid.UUID) ([]*domain.FAQEntry, error) {
	entries, err := m.repo.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sets[businessID] = &cachedSet{entries: entries, fetchedAt: m.cfg.Now()}
	m.mu.Unlock()

	return entries, nil
}

// entriesForKeyword prefers the cached set when present, refetching only
// when there is nothing cached.
func (m *Matcher) entriesForKeyword(ctx context.Context, businessID uuid.UUID) ([]*domain.FAQEntry, error) {
	if cached := m.cachedEntries(businessID); cached != nil {
		return cached, nil
	}
	return m.refreshEntries(ctx, businessID)
}
