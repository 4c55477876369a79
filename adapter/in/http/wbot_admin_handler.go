package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	out "github.com/countplus7/wbot-backend-sub000/core/port/out"
	"github.com/countplus7/wbot-backend-sub000/core/service/classify"
	"github.com/countplus7/wbot-backend-sub000/core/service/faq"
	"github.com/countplus7/wbot-backend-sub000/pkg/apperr"
	"github.com/countplus7/wbot-backend-sub000/pkg/response"
)

// AdminHandler serves the operator API: label example bulk-loads and
// wholesale FAQ refreshes. Embeddings are computed here, at write time, so
// the classification path never embeds anything but the inbound message.
type AdminHandler struct {
	labels   out.LabelRepository
	faqs     out.FAQRepository
	embedder out.Embedder
	registry *classify.LabelRegistry
	matcher  *faq.Matcher
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(labels out.LabelRepository, faqs out.FAQRepository, embedder out.Embedder, registry *classify.LabelRegistry, matcher *faq.Matcher) *AdminHandler {
	return &AdminHandler{
		labels:   labels,
		faqs:     faqs,
		embedder: embedder,
		registry: registry,
		matcher:  matcher,
	}
}

type addExamplesRequest struct {
	Examples []struct {
		Text   string  `json:"text"`
		Weight float64 `json:"weight"`
	} `json:"examples"`
}

// AddExamples bulk-loads weighted examples for a label, embedding the texts
// in one batch call and reloading the in-memory registry.
func (h *AdminHandler) AddExamples(c *fiber.Ctx) error {
	labelName := c.Params("name")
	if labelName == "" {
		return apperr.MissingField("name")
	}

	var req addExamplesRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	if len(req.Examples) == 0 {
		return apperr.MissingField("examples")
	}

	texts := make([]string, len(req.Examples))
	for i, e := range req.Examples {
		if e.Text == "" {
			return apperr.InvalidInput("examples", "example text cannot be empty")
		}
		texts[i] = e.Text
	}

	embeddings, err := h.embedder.EmbedBatch(c.Context(), texts)
	if err != nil {
		return err
	}

	examples := make([]domain.Example, len(req.Examples))
	for i, e := range req.Examples {
		weight := e.Weight
		if weight <= 0 {
			weight = 1.0
		}
		examples[i] = domain.Example{Text: e.Text, Embedding: embeddings[i], Weight: weight}
	}

	if err := h.labels.BulkAddExamples(c.Context(), labelName, examples); err != nil {
		return err
	}
	if err := h.registry.Reload(c.Context()); err != nil {
		return err
	}

	return response.Created(c, fiber.Map{"label": labelName, "examples_added": len(examples)})
}

// DeactivateLabel disables a label, deletes its examples, and reloads the
// registry.
func (h *AdminHandler) DeactivateLabel(c *fiber.Ctx) error {
	labelName := c.Params("name")
	if labelName == "" {
		return apperr.MissingField("name")
	}

	if err := h.labels.Deactivate(c.Context(), labelName); err != nil {
		return err
	}
	if err := h.registry.Reload(c.Context()); err != nil {
		return err
	}

	return response.OK(c, fiber.Map{"label": labelName, "active": false})
}

type replaceFAQsRequest struct {
	Entries []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	} `json:"entries"`
}

// ReplaceFAQs swaps the whole FAQ set for a business, embedding every
// question in one batch and invalidating the matcher's cached set.
func (h *AdminHandler) ReplaceFAQs(c *fiber.Ctx) error {
	businessID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.InvalidInput("id", "must be a uuid")
	}

	var req replaceFAQsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}

	questions := make([]string, len(req.Entries))
	for i, e := range req.Entries {
		if e.Question == "" || e.Answer == "" {
			return apperr.InvalidInput("entries", "question and answer are required")
		}
		questions[i] = e.Question
	}

	var embeddings [][]float32
	if len(questions) > 0 {
		embeddings, err = h.embedder.EmbedBatch(c.Context(), questions)
		if err != nil {
			return err
		}
	}

	entries := make([]*domain.FAQEntry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = &domain.FAQEntry{
			ID:         uuid.New(),
			BusinessID: businessID,
			Question:   e.Question,
			Answer:     e.Answer,
			Embedding:  embeddings[i],
		}
	}

	if err := h.faqs.ReplaceForBusiness(c.Context(), businessID, entries); err != nil {
		return err
	}
	h.matcher.Invalidate(businessID)

	return response.OK(c, fiber.Map{"business_id": businessID, "entries": len(entries)})
}
