package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	"github.com/countplus7/wbot-backend-sub000/pkg/apperr"
	"github.com/countplus7/wbot-backend-sub000/pkg/httputil"
)

// CRMAdapterConfig configures the downstream CRM HTTP client.
type CRMAdapterConfig struct {
	BaseURL string
	APIKey  string
}

// CRMAdapter implements out.CRMClient against a generic JSON CRM API.
type CRMAdapter struct {
	cfg    CRMAdapterConfig
	client *http.Client
}

// NewCRMAdapter creates a new CRMAdapter.
func NewCRMAdapter(cfg CRMAdapterConfig) *CRMAdapter {
	return &CRMAdapter{cfg: cfg, client: httputil.DefaultClient()}
}

// CreateContact registers a new contact from an inbound message.
func (a *CRMAdapter) CreateContact(ctx context.Context, action *domain.CRMAction) error {
	return a.post(ctx, "/contacts", map[string]string{
		"business_id": action.BusinessID.String(),
		"phone":       action.Phone,
		"source":      "whatsapp",
	})
}

// LogNote attaches a note to the contact identified by phone number.
func (a *CRMAdapter) LogNote(ctx context.Context, action *domain.CRMAction) error {
	return a.post(ctx, "/notes", map[string]string{
		"business_id": action.BusinessID.String(),
		"phone":       action.Phone,
		"note":        action.Note,
	})
}

func (a *CRMAdapter) post(ctx context.Context, path string, payload map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal crm payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build crm request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return apperr.UpstreamUnavailable("crm", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode >= 500 {
		return apperr.UpstreamUnavailable("crm", fmt.Errorf("status %d: %s", resp.StatusCode, detail))
	}
	return fmt.Errorf("crm rejected request: status %d: %s", resp.StatusCode, detail)
}
