// Package classify implements semantic intent classification for inbound
// messages: cache lookup, embedding similarity scoring, and a generative
// fallback when similarity is inconclusive.
package classify

import (
	"context"
	"sync"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	out "github.com/countplus7/wbot-backend-sub000/core/port/out"
	"github.com/countplus7/wbot-backend-sub000/pkg/apperr"
	"github.com/countplus7/wbot-backend-sub000/pkg/logger"
)

// =============================================================================
// Label Registry
// =============================================================================

// LabelRegistry holds the active label set in memory. The request path reads
// it on every classification, so lookups never touch the database; Reload
// swaps the whole set atomically after admin bulk-loads.
type LabelRegistry struct {
	mu     sync.RWMutex
	labels []domain.Label
	repo   out.LabelRepository
	log    *logger.Logger
}

// NewLabelRegistry creates an empty registry. Call Reload before serving.
func NewLabelRegistry(repo out.LabelRepository) *LabelRegistry {
	return &LabelRegistry{
		repo: repo,
		log:  logger.Default().WithField("component", "label_registry"),
	}
}

// Reload replaces the in-memory set with the active labels from storage.
// Labels that fail validation are skipped, not fatal: one malformed label
// must not take classification down.
func (r *LabelRegistry) Reload(ctx context.Context) error {
	if r.repo == nil {
		return apperr.ConfigError("label registry has no repository")
	}

	labels, err := r.repo.ListActive(ctx)
	if err != nil {
		return apperr.DatabaseError("list active labels", err)
	}

	valid := make([]domain.Label, 0, len(labels))
	for _, label := range labels {
		if label == nil || !label.Valid() {
			r.log.WithField("label", labelName(label)).Warn("skipping invalid label")
			continue
		}
		valid = append(valid, *label)
	}

	r.mu.Lock()
	r.labels = valid
	r.mu.Unlock()

	r.log.WithField("count", len(valid)).Info("label registry reloaded")
	return nil
}

// SetLabels replaces the set directly. Used by tests and by callers that
// already hold a validated set.
func (r *LabelRegistry) SetLabels(labels []domain.Label) {
	r.mu.Lock()
	r.labels = labels
	r.mu.Unlock()
}

// Labels returns the current snapshot. Callers must not mutate it.
func (r *LabelRegistry) Labels() []domain.Label {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.labels
}

// Has reports whether a label name exists in the current set.
func (r *LabelRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.labels {
		if r.labels[i].Name == name {
			return true
		}
	}
	return false
}

// Len returns the number of active labels.
func (r *LabelRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.labels)
}

func labelName(l *domain.Label) string {
	if l == nil {
		return ""
	}
	return l.Name
}
