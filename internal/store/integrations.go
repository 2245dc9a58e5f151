package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const integrationColumns = `id, user_id,
		google_calendar_enabled, gmail_enabled,
		google_access_token, google_refresh_token, google_token_expires_at,
		outlook_enabled, outlook_access_token, outlook_refresh_token, outlook_token_expires_at,
		settings, created_at, updated_at`

// IntegrationRepository implements IntegrationStore on PostgreSQL.
type IntegrationRepository struct {
	db  Querier
	now func() time.Time
}

// NewIntegrationRepository creates a PostgreSQL-backed integration store.
func NewIntegrationRepository(db Querier) *IntegrationRepository {
	return &IntegrationRepository{db: db, now: time.Now}
}

// Get retrieves the integration row for a user.
func (r *IntegrationRepository) Get(ctx context.Context, userID string) (*UserIntegration, error) {
	query := `
		SELECT ` + integrationColumns + `
		FROM user_integrations
		WHERE user_id = $1`

	return r.scan(r.db.QueryRow(ctx, query, userID))
}

// Upsert merges the patch into the user's integration row, creating it with a
// fresh id when absent. Nil patch fields keep the stored value: the refresher
// relies on this to preserve a refresh token the provider did not rotate.
func (r *IntegrationRepository) Upsert(ctx context.Context, userID string, patch IntegrationPatch) (*UserIntegration, error) {
	now := r.now().UTC()

	query := `
		INSERT INTO user_integrations (
			id, user_id,
			google_calendar_enabled, gmail_enabled,
			google_access_token, google_refresh_token, google_token_expires_at,
			outlook_enabled, outlook_access_token, outlook_refresh_token, outlook_token_expires_at,
			settings, created_at, updated_at
		) VALUES (
			$1, $2,
			COALESCE($3, false), COALESCE($4, false),
			$5, $6, $7,
			COALESCE($8, false), $9, $10, $11,
			$12, $13, $13
		)
		ON CONFLICT (user_id) DO UPDATE SET
			google_calendar_enabled = COALESCE($3, user_integrations.google_calendar_enabled),
			gmail_enabled           = COALESCE($4, user_integrations.gmail_enabled),
			google_access_token     = COALESCE($5, user_integrations.google_access_token),
			google_refresh_token    = COALESCE($6, user_integrations.google_refresh_token),
			google_token_expires_at = COALESCE($7, user_integrations.google_token_expires_at),
			outlook_enabled         = COALESCE($8, user_integrations.outlook_enabled),
			outlook_access_token    = COALESCE($9, user_integrations.outlook_access_token),
			outlook_refresh_token   = COALESCE($10, user_integrations.outlook_refresh_token),
			outlook_token_expires_at = COALESCE($11, user_integrations.outlook_token_expires_at),
			settings                = COALESCE($12, user_integrations.settings),
			updated_at              = $13
		RETURNING ` + integrationColumns

	row := r.db.QueryRow(ctx, query,
		uuid.NewString(),
		userID,
		patch.GoogleCalendarEnabled,
		patch.GmailEnabled,
		patch.GoogleAccessToken,
		patch.GoogleRefreshToken,
		patch.GoogleTokenExpiresAt,
		patch.OutlookEnabled,
		patch.OutlookAccessToken,
		patch.OutlookRefreshToken,
		patch.OutlookTokenExpiresAt,
		patch.Settings,
		now,
	)

	integration, err := r.scan(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user integration: %w", err)
	}
	return integration, nil
}

func (r *IntegrationRepository) scan(row pgx.Row) (*UserIntegration, error) {
	var i UserIntegration

	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.GoogleCalendarEnabled,
		&i.GmailEnabled,
		&i.GoogleAccessToken,
		&i.GoogleRefreshToken,
		&i.GoogleTokenExpiresAt,
		&i.OutlookEnabled,
		&i.OutlookAccessToken,
		&i.OutlookRefreshToken,
		&i.OutlookTokenExpiresAt,
		&i.Settings,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user integration: %w", err)
	}

	return &i, nil
}
