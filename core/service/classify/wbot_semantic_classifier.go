package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	out "github.com/countplus7/wbot-backend-sub000/core/port/out"
	"github.com/countplus7/wbot-backend-sub000/pkg/logger"
	"github.com/countplus7/wbot-backend-sub000/pkg/vectorutil"
)

// =============================================================================
// Semantic Classifier
// =============================================================================

// SemanticClassifier turns free-form text into a labeled intent. The path is
// cache, then embedding similarity against the label registry's examples,
// then the generative fallback when similarity is inconclusive. Every result
// is cached by content hash, so repeated classification of the same text by
// later pipeline handlers is a memory read.
type SemanticClassifier struct {
	registry *LabelRegistry
	embedder out.Embedder
	fallback *FallbackClassifier
	cache    out.ResultCache
	log      *logger.Logger
}

// NewSemanticClassifier wires the classifier. A nil cache disables caching;
// a nil fallback means low-similarity texts resolve to the general label.
func NewSemanticClassifier(registry *LabelRegistry, embedder out.Embedder, fallback *FallbackClassifier, cache out.ResultCache) *SemanticClassifier {
	return &SemanticClassifier{
		registry: registry,
		embedder: embedder,
		fallback: fallback,
		cache:    cache,
		log:      logger.Default().WithField("component", "semantic_classifier"),
	}
}

// NormalizeText lowercases, trims, and collapses runs of whitespace so that
// trivially-different inputs share one cache entry.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// ContentHash returns the cache key for a text: the hex SHA-256 of its
// normalized form.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}

// Classify resolves text to the best label. It never returns an error to the
// caller: when both the embedding path and the generative fallback are
// unavailable, the reserved general label is returned so the pipeline always
// gets an answer.
func (s *SemanticClassifier) Classify(ctx context.Context, text string) *domain.ClassificationResult {
	started := time.Now()
	hash := ContentHash(text)

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, hash); ok {
			hit := *cached
			hit.Method = domain.MethodCache
			hit.LatencyMs = time.Since(started).Milliseconds()
			return &hit
		}
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.log.WithError(err).Warn("embedding unavailable, using generative fallback")
		return s.fallbackResult(ctx, text, hash, started)
	}

	label, score := s.bestMatch(vector)
	if label != nil && score >= label.Threshold {
		result := &domain.ClassificationResult{
			Label:      label.Name,
			Confidence: score,
			Method:     domain.MethodEmbedding,
			LatencyMs:  time.Since(started).Milliseconds(),
		}
		s.cacheResult(ctx, hash, result)
		return result
	}

	return s.fallbackResult(ctx, text, hash, started)
}

// bestMatch scans every example of every active label and returns the label
// that produced the single highest weighted similarity. Strictly-greater
// comparison: the first example seen wins ties, which keeps results
// deterministic for a stable label ordering.
func (s *SemanticClassifier) bestMatch(vector []float32) (*domain.Label, float64) {
	labels := s.registry.Labels()

	var best *domain.Label
	bestScore := 0.0
	for i := range labels {
		for j := range labels[i].Examples {
			example := &labels[i].Examples[j]
			if len(example.Embedding) != len(vector) {
				continue
			}
			score := vectorutil.Cosine(vector, example.Embedding) * example.Weight
			// Weights above 1 could push the product past 1; confidence
			// stays within [0, 1].
			if score > 1 {
				score = 1
			}
			if score > bestScore {
				bestScore = score
				best = &labels[i]
			}
		}
	}
	return best, bestScore
}

func (s *SemanticClassifier) fallbackResult(ctx context.Context, text, hash string, started time.Time) *domain.ClassificationResult {
	var result *domain.ClassificationResult
	if s.fallback != nil {
		result = s.fallback.Classify(ctx, text, s.registry.Labels())
	} else {
		result = domain.GeneralResult(0)
	}
	result.LatencyMs = time.Since(started).Milliseconds()
	s.cacheResult(ctx, hash, result)
	return result
}

func (s *SemanticClassifier) cacheResult(ctx context.Context, hash string, result *domain.ClassificationResult) {
	if s.cache == nil {
		return
	}
	s.cache.Put(ctx, hash, result)
}
