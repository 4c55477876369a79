package classify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
)

// fakeEmbedder returns canned vectors keyed by normalized text.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[NormalizeText(text)]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// fakeChat returns a canned response for CompleteJSON.
type fakeChat struct {
	response string
	err      error
	calls    int
}

func (c *fakeChat) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return c.response, c.err
}

func (c *fakeChat) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	c.calls++
	return c.response, c.err
}

// mapCache is a minimal ResultCache for tests.
type mapCache struct {
	mu   sync.Mutex
	data map[string]*domain.ClassificationResult
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string]*domain.ClassificationResult)}
}

func (c *mapCache) Get(ctx context.Context, hash string) (*domain.ClassificationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[hash]
	return r, ok
}

func (c *mapCache) Put(ctx context.Context, hash string, result *domain.ClassificationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[hash] = result
}

func greetingRegistry() *LabelRegistry {
	r := NewLabelRegistry(nil)
	r.SetLabels([]domain.Label{
		{
			Name:        "greeting",
			Description: "the customer is saying hello",
			Threshold:   0.8,
			IsActive:    true,
			Examples: []domain.Example{
				{Text: "hello there", Embedding: []float32{1, 0, 0}, Weight: 1.0},
			},
		},
		{
			Name:        domain.LabelFAQ,
			Description: "a question about the business",
			Threshold:   0.7,
			IsActive:    true,
			Examples: []domain.Example{
				{Text: "what are your opening hours", Embedding: []float32{0, 1, 0}, Weight: 1.0},
			},
		},
	})
	return r
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello There", "hello there"},
		{"  hello   there  ", "hello there"},
		{"HELLO\tTHERE\n", "hello there"},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContentHashSharedAcrossTrivialVariants(t *testing.T) {
	if ContentHash("Hello There") != ContentHash("  hello   there ") {
		t.Error("trivially-different inputs should share one cache entry")
	}
	if ContentHash("hello there") == ContentHash("goodbye") {
		t.Error("distinct texts must not collide")
	}
}

func TestClassifyIdenticalExample(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"hello there": {1, 0, 0},
	}}
	classifier := NewSemanticClassifier(greetingRegistry(), embedder, nil, newMapCache())

	result := classifier.Classify(context.Background(), "hello there")

	if result.Label != "greeting" {
		t.Errorf("label = %s, want greeting", result.Label)
	}
	if result.Method != domain.MethodEmbedding {
		t.Errorf("method = %s, want embedding", result.Method)
	}
	if result.Confidence < 0.99 {
		t.Errorf("confidence = %f, want ~1.0 for identical text", result.Confidence)
	}
}

func TestClassifySecondCallHitsCache(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"hello there": {1, 0, 0},
	}}
	classifier := NewSemanticClassifier(greetingRegistry(), embedder, nil, newMapCache())

	first := classifier.Classify(context.Background(), "hello there")
	second := classifier.Classify(context.Background(), "Hello   THERE")

	if first.Method != domain.MethodEmbedding {
		t.Fatalf("first method = %s, want embedding", first.Method)
	}
	if second.Method != domain.MethodCache {
		t.Errorf("second method = %s, want cache", second.Method)
	}
	if second.Label != first.Label {
		t.Errorf("cached label = %s, want %s", second.Label, first.Label)
	}
	if embedder.calls != 1 {
		t.Errorf("embedder calls = %d, want 1", embedder.calls)
	}
}

func TestClassifyBelowThresholdInvokesFallbackOnce(t *testing.T) {
	// Query vector is orthogonal to every example, so similarity is 0.
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	chat := &fakeChat{response: `{"label": "greeting", "confidence": 0.7}`}
	classifier := NewSemanticClassifier(greetingRegistry(), embedder, NewFallbackClassifier(chat), newMapCache())

	result := classifier.Classify(context.Background(), "completely unrelated words")

	if chat.calls != 1 {
		t.Errorf("fallback calls = %d, want exactly 1", chat.calls)
	}
	if result.Method != domain.MethodGenerativeFallback {
		t.Errorf("method = %s, want generative_fallback", result.Method)
	}
	if result.Label != "greeting" {
		t.Errorf("label = %s, want greeting", result.Label)
	}
}

func TestClassifyEmbedderDownUsesFallback(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("upstream down")}
	chat := &fakeChat{response: `{"label": "faq", "confidence": 0.8}`}
	classifier := NewSemanticClassifier(greetingRegistry(), embedder, NewFallbackClassifier(chat), newMapCache())

	result := classifier.Classify(context.Background(), "what time do you open")

	if result.Method != domain.MethodGenerativeFallback {
		t.Errorf("method = %s, want generative_fallback when embedder is down", result.Method)
	}
	if result.Label != domain.LabelFAQ {
		t.Errorf("label = %s, want faq", result.Label)
	}
}

func TestClassifyFallbackParseFailureYieldsGeneral(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	chat := &fakeChat{response: "I think this is probably a greeting?"}
	classifier := NewSemanticClassifier(greetingRegistry(), embedder, NewFallbackClassifier(chat), newMapCache())

	result := classifier.Classify(context.Background(), "unrelated")

	if result.Label != domain.LabelGeneral {
		t.Errorf("label = %s, want general", result.Label)
	}
	if result.Confidence != domain.GeneralFallbackConfidence {
		t.Errorf("confidence = %f, want %f", result.Confidence, domain.GeneralFallbackConfidence)
	}
}

func TestClassifyFallbackResultIsCached(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	chat := &fakeChat{response: `{"label": "general", "confidence": 0.6}`}
	classifier := NewSemanticClassifier(greetingRegistry(), embedder, NewFallbackClassifier(chat), newMapCache())

	classifier.Classify(context.Background(), "mystery text")
	second := classifier.Classify(context.Background(), "mystery text")

	if second.Method != domain.MethodCache {
		t.Errorf("method = %s, want cache for repeated fallback-classified text", second.Method)
	}
	if chat.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", chat.calls)
	}
}

func TestClassifyNoFallbackConfigured(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	classifier := NewSemanticClassifier(greetingRegistry(), embedder, nil, nil)

	result := classifier.Classify(context.Background(), "unrelated")

	if result.Label != domain.LabelGeneral {
		t.Errorf("label = %s, want general", result.Label)
	}
}

func TestBestMatchTieBreakFirstExampleWins(t *testing.T) {
	registry := NewLabelRegistry(nil)
	registry.SetLabels([]domain.Label{
		{
			Name: "first", Threshold: 0.5, IsActive: true,
			Examples: []domain.Example{{Text: "a", Embedding: []float32{1, 0, 0}, Weight: 1.0}},
		},
		{
			Name: "second", Threshold: 0.5, IsActive: true,
			Examples: []domain.Example{{Text: "b", Embedding: []float32{1, 0, 0}, Weight: 1.0}},
		},
	})
	classifier := NewSemanticClassifier(registry, nil, nil, nil)

	label, score := classifier.bestMatch([]float32{1, 0, 0})
	if label == nil || label.Name != "first" {
		t.Fatalf("tie should resolve to the first label scanned, got %v", label)
	}
	if score < 0.99 {
		t.Errorf("score = %f, want ~1.0", score)
	}
}

func TestBestMatchWeightScalesScore(t *testing.T) {
	registry := NewLabelRegistry(nil)
	registry.SetLabels([]domain.Label{
		{
			Name: "light", Threshold: 0.5, IsActive: true,
			Examples: []domain.Example{{Text: "a", Embedding: []float32{1, 0, 0}, Weight: 0.5}},
		},
		{
			Name: "heavy", Threshold: 0.5, IsActive: true,
			Examples: []domain.Example{{Text: "b", Embedding: []float32{0.9, 0.1, 0}, Weight: 2.0}},
		},
	})
	classifier := NewSemanticClassifier(registry, nil, nil, nil)

	label, _ := classifier.bestMatch([]float32{1, 0, 0})
	if label == nil || label.Name != "heavy" {
		t.Fatalf("weighted score should favor heavy, got %v", label)
	}
}

func TestClassifyConfidenceNeverExceedsOne(t *testing.T) {
	registry := NewLabelRegistry(nil)
	registry.SetLabels([]domain.Label{
		{
			Name: "greeting", Threshold: 0.8, IsActive: true,
			Examples: []domain.Example{{Text: "hello there", Embedding: []float32{1, 0, 0}, Weight: 3.0}},
		},
	})
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"hello there": {1, 0, 0},
	}}
	classifier := NewSemanticClassifier(registry, embedder, nil, nil)

	result := classifier.Classify(context.Background(), "hello there")

	if result.Method != domain.MethodEmbedding {
		t.Fatalf("method = %s, want embedding", result.Method)
	}
	if result.Confidence > 1.0 {
		t.Errorf("confidence = %f, must stay within [0, 1]", result.Confidence)
	}
	if result.Confidence != 1.0 {
		t.Errorf("confidence = %f, want weighted score capped at 1.0", result.Confidence)
	}
}

func TestParseClassifyResponse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantOK   bool
		wantName string
		wantConf float64
	}{
		{"plain json", `{"label": "faq", "confidence": 0.8}`, true, "faq", 0.8},
		{"fenced json", "```json\n{\"label\": \"faq\", \"confidence\": 0.8}\n```", true, "faq", 0.8},
		{"bare fence", "```\n{\"label\": \"faq\", \"confidence\": 0.8}\n```", true, "faq", 0.8},
		{"clamped high", `{"label": "faq", "confidence": 1.7}`, true, "faq", 1.0},
		{"clamped low", `{"label": "faq", "confidence": -0.2}`, true, "faq", 0.0},
		{"prose", "this is not json", false, "", 0},
		{"empty label", `{"label": "", "confidence": 0.9}`, false, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, conf, ok := parseClassifyResponse(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if label != tt.wantName {
				t.Errorf("label = %q, want %q", label, tt.wantName)
			}
			if conf != tt.wantConf {
				t.Errorf("confidence = %f, want %f", conf, tt.wantConf)
			}
		})
	}
}

func TestFallbackRejectsUnknownLabel(t *testing.T) {
	chat := &fakeChat{response: `{"label": "made_up_label", "confidence": 0.9}`}
	fallback := NewFallbackClassifier(chat)

	result := fallback.Classify(context.Background(), "text", greetingRegistry().Labels())

	if result.Label != domain.LabelGeneral {
		t.Errorf("label = %s, want general for hallucinated label", result.Label)
	}
}

func TestRegistryReloadSkipsInvalidLabels(t *testing.T) {
	repo := &fakeLabelRepo{labels: []*domain.Label{
		{Name: "ok", Threshold: 0.7, IsActive: true, Examples: []domain.Example{{Text: "x", Weight: 1}}},
		{Name: "bad_threshold", Threshold: 1.5, IsActive: true, Examples: []domain.Example{{Text: "y", Weight: 1}}},
		{Name: "no_examples", Threshold: 0.5, IsActive: true},
	}}
	registry := NewLabelRegistry(repo)

	if err := registry.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if registry.Len() != 1 {
		t.Errorf("Len = %d, want 1", registry.Len())
	}
	if !registry.Has("ok") {
		t.Error("valid label missing after reload")
	}
}

type fakeLabelRepo struct {
	labels []*domain.Label
}

func (r *fakeLabelRepo) ListActive(ctx context.Context) ([]*domain.Label, error) {
	return r.labels, nil
}

func (r *fakeLabelRepo) BulkAddExamples(ctx context.Context, labelName string, examples []domain.Example) error {
	return nil
}

func (r *fakeLabelRepo) Deactivate(ctx context.Context, labelName string) error {
	return nil
}
