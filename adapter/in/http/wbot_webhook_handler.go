// Package http provides the Fiber HTTP handlers: the WhatsApp webhook
// surface and the administrative API.
package http

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	out "github.com/countplus7/wbot-backend-sub000/core/port/out"
	"github.com/countplus7/wbot-backend-sub000/core/service/pipeline"
	"github.com/countplus7/wbot-backend-sub000/pkg/apperr"
	"github.com/countplus7/wbot-backend-sub000/pkg/logger"
)

// pipelineTimeout bounds one detached message-handling task end to end.
const pipelineTimeout = 60 * time.Second

// WebhookMetrics counts webhook deliveries by outcome.
type WebhookMetrics struct {
	Received   int64
	Dispatched int64
	Rejected   int64
}

// WebhookHandler terminates the WhatsApp Cloud API webhook. Deliveries are
// acknowledged immediately and handled on detached goroutines; the provider
// must never see a retryable status for a payload we accepted.
type WebhookHandler struct {
	pipeline    *pipeline.Pipeline
	businesses  out.BusinessRepository
	verifyToken string
	metrics     WebhookMetrics
	log         *logger.Logger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(p *pipeline.Pipeline, businesses out.BusinessRepository, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		pipeline:    p,
		businesses:  businesses,
		verifyToken: verifyToken,
		log:         logger.Default().WithField("component", "webhook_handler"),
	}
}

// Metrics returns a snapshot of the delivery counters.
func (h *WebhookHandler) Metrics() WebhookMetrics {
	return WebhookMetrics{
		Received:   atomic.LoadInt64(&h.metrics.Received),
		Dispatched: atomic.LoadInt64(&h.metrics.Dispatched),
		Rejected:   atomic.LoadInt64(&h.metrics.Rejected),
	}
}

// Verify handles the GET subscription handshake.
func (h *WebhookHandler) Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || token != h.verifyToken {
		return apperr.Unauthorized("webhook verification failed")
	}
	return c.SendString(challenge)
}

// webhookPayload is the subset of the Cloud API notification we consume.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []struct {
					ID        string `json:"id"`
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Receive handles POSTed notifications. Malformed payloads are the only
// rejections; everything else is acknowledged with 200 and processed
// asynchronously.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	atomic.AddInt64(&h.metrics.Received, 1)

	raw := make([]byte, len(c.Body()))
	copy(raw, c.Body())

	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		atomic.AddInt64(&h.metrics.Rejected, 1)
		return apperr.BadRequest("malformed webhook payload")
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			phoneNumberID := change.Value.Metadata.PhoneNumberID
			for _, m := range change.Value.Messages {
				if m.Type != "text" || m.ID == "" {
					continue
				}
				h.dispatch(phoneNumberID, &domain.InboundMessage{
					MessageID:  m.ID,
					From:       m.From,
					Text:       m.Text.Body,
					ReceivedAt: parseWebhookTimestamp(m.Timestamp),
				}, raw)
			}
		}
	}

	return c.SendStatus(fiber.StatusOK)
}

// dispatch resolves the tenant and hands the message to the pipeline on a
// goroutine with its own deadline, detached from the request context so the
// fast ack cannot cancel processing.
func (h *WebhookHandler) dispatch(phoneNumberID string, msg *domain.InboundMessage, raw []byte) {
	atomic.AddInt64(&h.metrics.Dispatched, 1)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
		defer cancel()

		business, err := h.businesses.GetByPhoneNumberID(ctx, phoneNumberID)
		if err != nil {
			h.log.WithError(err).
				WithField("phone_number_id", phoneNumberID).
				WithField("message_id", msg.MessageID).
				Error("unknown webhook tenant, dropping message")
			return
		}

		msg.BusinessID = business.ID
		h.pipeline.HandleInbound(ctx, business, msg, raw)
	}()
}

func parseWebhookTimestamp(ts string) time.Time {
	if unix, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC()
	}
	return time.Now().UTC()
}
