// Package creds abstracts where a user's Kite API credentials live: the
// default is Postgres (the trade.profile table), with an AWS Secrets
// Manager backend selectable via CREDENTIAL_STORE=aws for deployments that
// keep secrets outside the database.
package creds

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitetick/engine/internal/dao"
)

// Store resolves a user's Kite credentials by user ID and OS type.
type Store interface {
	GetCreds(ctx context.Context, userID, osType string) (dao.KiteCreds, error)
}

// NewFromEnv builds the Store selected by CREDENTIAL_STORE (default
// "postgres"; "aws" selects AWS Secrets Manager).
func NewFromEnv(pool *pgxpool.Pool) (Store, error) {
	switch os.Getenv("CREDENTIAL_STORE") {
	case "", "postgres":
		return &PostgresStore{Pool: pool}, nil
	case "aws":
		return NewSecretsManagerStore()
	default:
		return nil, fmt.Errorf("creds: unknown CREDENTIAL_STORE %q", os.Getenv("CREDENTIAL_STORE"))
	}
}

// PostgresStore is the default backend: trade.profile, scoped by os_type
// when available and falling back to the plain per-user row.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func (s *PostgresStore) GetCreds(ctx context.Context, userID, osType string) (dao.KiteCreds, error) {
	c, err := dao.GetUserKiteCredsForOS(ctx, s.Pool, userID, osType)
	if err == nil {
		return c, nil
	}
	return dao.GetUserKiteCreds(ctx, s.Pool, userID)
}
