package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	out "github.com/countplus7/wbot-backend-sub000/core/port/out"
	"github.com/countplus7/wbot-backend-sub000/pkg/logger"
)

// =============================================================================
// Generative Fallback Classifier
// =============================================================================

// FallbackClassifier asks the generative model to pick a label when embedding
// similarity was inconclusive. It is the path of last resort: a network round
// trip to a larger model, never the default. It absorbs every failure mode —
// upstream errors, unparseable output, hallucinated labels — into the
// reserved general label so the pipeline always gets an answer.
type FallbackClassifier struct {
	chat out.ChatModel
	log  *logger.Logger
}

// maxPromptExamples caps how many worked examples per label go into the
// prompt. More adds tokens without improving label selection.
const maxPromptExamples = 3

func NewFallbackClassifier(chat out.ChatModel) *FallbackClassifier {
	return &FallbackClassifier{
		chat: chat,
		log:  logger.Default().WithField("component", "fallback_classifier"),
	}
}

// Classify picks one label from the active set. Never returns an error;
// every failure resolves to the general label at the fixed low confidence.
func (f *FallbackClassifier) Classify(ctx context.Context, text string, labels []domain.Label) *domain.ClassificationResult {
	if f.chat == nil || len(labels) == 0 {
		return domain.GeneralResult(0)
	}

	raw, err := f.chat.CompleteJSON(ctx, buildClassifyPrompt(text, labels))
	if err != nil {
		f.log.WithError(err).Warn("generative fallback call failed")
		return domain.GeneralResult(0)
	}

	label, confidence, ok := parseClassifyResponse(raw)
	if !ok {
		f.log.WithField("response", truncate(raw, 200)).Warn("unparseable fallback response")
		return domain.GeneralResult(0)
	}

	if !labelInSet(label, labels) && label != domain.LabelGeneral {
		f.log.WithField("label", label).Warn("fallback returned unknown label")
		return domain.GeneralResult(0)
	}

	return &domain.ClassificationResult{
		Label:      label,
		Confidence: confidence,
		Method:     domain.MethodGenerativeFallback,
	}
}

func buildClassifyPrompt(text string, labels []domain.Label) string {
	var b strings.Builder
	b.WriteString("Classify the customer message into exactly one of these labels.\n\nLabels:\n")
	for _, label := range labels {
		fmt.Fprintf(&b, "- %s: %s\n", label.Name, label.Description)
		for i, example := range label.Examples {
			if i >= maxPromptExamples {
				break
			}
			fmt.Fprintf(&b, "  example: %q\n", example.Text)
		}
	}
	fmt.Fprintf(&b, "\nMessage:\n%s\n\n", text)
	b.WriteString(`Respond with a single JSON object: {"label": "<label name>", "confidence": <0.0-1.0>}`)
	return b.String()
}

// parseClassifyResponse extracts {label, confidence} from model output,
// tolerating markdown code fences and clamping confidence into [0,1].
func parseClassifyResponse(raw string) (label string, confidence float64, ok bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return "", 0, false
	}
	if parsed.Label == "" {
		return "", 0, false
	}

	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}

	return strings.TrimSpace(parsed.Label), parsed.Confidence, true
}

func labelInSet(name string, labels []domain.Label) bool {
	for i := range labels {
		if labels[i].Name == name {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
