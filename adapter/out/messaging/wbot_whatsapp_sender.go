// Package messaging provides the WhatsApp Cloud API transport adapter.
package messaging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	out "github.com/countplus7/wbot-backend-sub000/core/port/out"
	"github.com/countplus7/wbot-backend-sub000/pkg/apperr"
	"github.com/countplus7/wbot-backend-sub000/pkg/httputil"
	"github.com/countplus7/wbot-backend-sub000/pkg/logger"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// WhatsAppSenderConfig configures the Cloud API sender.
type WhatsAppSenderConfig struct {
	AccessToken string
	BaseURL     string // overridable for tests
}

// WhatsAppSender implements out.MessageSender against the WhatsApp Cloud
// API. A circuit breaker sheds load when the API is failing: sends are never
// retried, so the breaker is what keeps a transport outage from stalling
// every pipeline task on timeouts.
type WhatsAppSender struct {
	cfg        WhatsAppSenderConfig
	client     *http.Client
	businesses out.BusinessRepository
	breaker    *gobreaker.CircuitBreaker
	log        *logger.Logger
}

// NewWhatsAppSender creates the sender. The business repository resolves a
// business id to its WhatsApp phone number id.
func NewWhatsAppSender(cfg WhatsAppSenderConfig, businesses out.BusinessRepository) *WhatsAppSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGraphBaseURL
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "whatsapp_send",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*2 > counts.Requests
		},
	})

	return &WhatsAppSender{
		cfg:        cfg,
		client:     httputil.WhatsAppClient(),
		businesses: businesses,
		breaker:    breaker,
		log:        logger.Default().WithField("component", "whatsapp_sender"),
	}
}

type textPayload struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// SendText delivers one text message. Failures surface as errors and are
// never retried here.
func (s *WhatsAppSender) SendText(ctx context.Context, businessID string, msg *domain.OutboundMessage) error {
	id, err := uuid.Parse(businessID)
	if err != nil {
		return apperr.BadRequest("invalid business id")
	}

	business, err := s.businesses.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to resolve business: %w", err)
	}

	payload := textPayload{
		MessagingProduct: "whatsapp",
		To:               msg.To,
		Type:             "text",
	}
	payload.Text.Body = msg.Text

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal send payload: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.post(ctx, business.PhoneNumberID, body)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return apperr.UpstreamUnavailable("whatsapp", err)
		}
		return err
	}
	return nil
}

func (s *WhatsAppSender) post(ctx context.Context, phoneNumberID string, body []byte) error {
	url := fmt.Sprintf("%s/%s/messages", s.cfg.BaseURL, phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperr.UpstreamUnavailable("whatsapp", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	s.log.WithField("status", resp.StatusCode).WithField("body", string(detail)).Warn("whatsapp send rejected")

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return apperr.UpstreamUnavailable("whatsapp", fmt.Errorf("status %d", resp.StatusCode))
	}
	return apperr.SendFailed(phoneNumberID, fmt.Errorf("status %d", resp.StatusCode))
}
