package dao

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// KiteCreds is the minimal set of fields needed to talk to Kite on a user's
// behalf: the app credentials and the session access token from a completed
// login.
type KiteCreds struct {
	APIKey      string
	APISecret   string
	AccessToken string
	HasAccess   bool
}

// GetUserKiteCreds fetches credentials for a user, ignoring any OS-specific
// override row.
func GetUserKiteCreds(ctx context.Context, pool *pgxpool.Pool, userID string) (KiteCreds, error) {
	var c KiteCreds
	var access *string
	err := pool.QueryRow(ctx, `
SELECT api_key, api_secret, access_token
FROM trade.profile
WHERE user_id = $1
`, userID).Scan(&c.APIKey, &c.APISecret, &access)
	if err != nil {
		return KiteCreds{}, err
	}
	if access != nil {
		c.AccessToken = *access
		c.HasAccess = true
	}
	return c, nil
}

// GetUserKiteCredsForOS is GetUserKiteCreds scoped to a specific os_type row,
// used when a user has multiple stored sessions (e.g. one per desktop OS).
func GetUserKiteCredsForOS(ctx context.Context, pool *pgxpool.Pool, userID, osType string) (KiteCreds, error) {
	var c KiteCreds
	var access *string
	err := pool.QueryRow(ctx, `
SELECT api_key, api_secret, access_token
FROM trade.profile
WHERE user_id = $1 AND os_type = $2
`, userID, osType).Scan(&c.APIKey, &c.APISecret, &access)
	if err != nil {
		return KiteCreds{}, err
	}
	if access != nil {
		c.AccessToken = *access
		c.HasAccess = true
	}
	return c, nil
}

// UpdateAccessToken persists a freshly obtained access token for a user.
func UpdateAccessToken(ctx context.Context, pool *pgxpool.Pool, userID, accessToken string) error {
	_, err := pool.Exec(ctx, `UPDATE trade.profile SET access_token = $2 WHERE user_id = $1`, userID, accessToken)
	return err
}

// UpdateAccessTokenForOS is UpdateAccessToken scoped to os_type.
func UpdateAccessTokenForOS(ctx context.Context, pool *pgxpool.Pool, userID, osType, accessToken string) error {
	_, err := pool.Exec(ctx, `
UPDATE trade.profile SET access_token = $3 WHERE user_id = $1 AND os_type = $2
`, userID, osType, accessToken)
	return err
}

// UpdateSessionTokensForOS persists both the access and public token
// returned from the OAuth callback exchange.
func UpdateSessionTokensForOS(ctx context.Context, pool *pgxpool.Pool, userID, osType, accessToken, publicToken string) error {
	_, err := pool.Exec(ctx, `
UPDATE trade.profile
SET access_token = $3, public_token = $4
WHERE user_id = $1 AND os_type = $2
`, userID, osType, accessToken, publicToken)
	return err
}
