// Package provider implements calendar and CRM adapters for downstream
// business tooling.
package provider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	"github.com/countplus7/wbot-backend-sub000/pkg/apperr"
)

// TokenSource resolves the stored OAuth token for a business. Bookings land
// on the business's own Google account, so every call is per-tenant.
type TokenSource interface {
	TokenForBusiness(ctx context.Context, businessID string) (*oauth2.Token, error)
}

// GoogleCalendarAdapter implements out.CalendarProvider on Google Calendar.
type GoogleCalendarAdapter struct {
	oauthConfig *oauth2.Config
	tokens      TokenSource
}

// NewGoogleCalendarAdapter creates a new Google Calendar adapter.
func NewGoogleCalendarAdapter(oauthConfig *oauth2.Config, tokens TokenSource) *GoogleCalendarAdapter {
	return &GoogleCalendarAdapter{oauthConfig: oauthConfig, tokens: tokens}
}

func (a *GoogleCalendarAdapter) serviceForBusiness(ctx context.Context, businessID string) (*calendar.Service, error) {
	token, err := a.tokens.TokenForBusiness(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve calendar token: %w", err)
	}
	client := a.oauthConfig.Client(ctx, token)
	return calendar.NewService(ctx, option.WithHTTPClient(client))
}

// CreateEvent books an event on the business's primary calendar and returns
// the provider event id.
func (a *GoogleCalendarAdapter) CreateEvent(ctx context.Context, event *domain.CalendarEvent) (string, error) {
	svc, err := a.serviceForBusiness(ctx, event.BusinessID.String())
	if err != nil {
		return "", apperr.UpstreamUnavailable("google_calendar", err)
	}

	created, err := svc.Events.Insert("primary", &calendar.Event{
		Summary:     event.Title,
		Description: event.Notes,
		Start:       &calendar.EventDateTime{DateTime: event.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: event.End.Format(time.RFC3339)},
	}).Context(ctx).Do()
	if err != nil {
		return "", apperr.UpstreamUnavailable("google_calendar", fmt.Errorf("failed to create event: %w", err))
	}

	return created.Id, nil
}

// CancelEvent removes an event from the business's primary calendar.
func (a *GoogleCalendarAdapter) CancelEvent(ctx context.Context, businessID, eventID string) error {
	svc, err := a.serviceForBusiness(ctx, businessID)
	if err != nil {
		return apperr.UpstreamUnavailable("google_calendar", err)
	}

	if err := svc.Events.Delete("primary", eventID).Context(ctx).Do(); err != nil {
		return apperr.UpstreamUnavailable("google_calendar", fmt.Errorf("failed to cancel event: %w", err))
	}
	return nil
}
