package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/oauth2"

	"github.com/countplus7/wbot-backend-sub000/pkg/apperr"
)

// OAuthTokenAdapter stores per-business Google OAuth tokens and implements
// provider.TokenSource.
type OAuthTokenAdapter struct {
	db *sqlx.DB
}

// NewOAuthTokenAdapter creates a new OAuthTokenAdapter.
func NewOAuthTokenAdapter(db *sqlx.DB) *OAuthTokenAdapter {
	return &OAuthTokenAdapter{db: db}
}

type oauthTokenRow struct {
	BusinessID   string       `db:"business_id"`
	AccessToken  string       `db:"access_token"`
	RefreshToken string       `db:"refresh_token"`
	TokenType    string       `db:"token_type"`
	Expiry       sql.NullTime `db:"expiry"`
}

func (r *oauthTokenRow) toToken() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
	}
	if r.Expiry.Valid {
		token.Expiry = r.Expiry.Time
	}
	return token
}

// TokenForBusiness returns the stored calendar token for a business.
func (a *OAuthTokenAdapter) TokenForBusiness(ctx context.Context, businessID string) (*oauth2.Token, error) {
	var row oauthTokenRow
	query := `SELECT business_id, access_token, refresh_token, token_type, expiry
	          FROM oauth_tokens WHERE business_id = $1`

	if err := a.db.GetContext(ctx, &row, query, businessID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("oauth token")
		}
		return nil, fmt.Errorf("failed to get oauth token: %w", err)
	}
	return row.toToken(), nil
}

// SaveToken upserts the token after an OAuth exchange or refresh.
func (a *OAuthTokenAdapter) SaveToken(ctx context.Context, businessID string, token *oauth2.Token) error {
	query := `INSERT INTO oauth_tokens (business_id, access_token, refresh_token, token_type, expiry, updated_at)
	          VALUES ($1, $2, $3, $4, $5, NOW())
	          ON CONFLICT (business_id) DO UPDATE SET
	            access_token = EXCLUDED.access_token,
	            refresh_token = EXCLUDED.refresh_token,
	            token_type = EXCLUDED.token_type,
	            expiry = EXCLUDED.expiry,
	            updated_at = NOW()`

	var expiry sql.NullTime
	if !token.Expiry.IsZero() {
		expiry = sql.NullTime{Time: token.Expiry.UTC().Truncate(time.Second), Valid: true}
	}

	if _, err := a.db.ExecContext(ctx, query, businessID, token.AccessToken, token.RefreshToken, token.TokenType, expiry); err != nil {
		return fmt.Errorf("failed to save oauth token: %w", err)
	}
	return nil
}
