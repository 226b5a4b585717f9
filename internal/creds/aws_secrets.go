package creds

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"

	"github.com/kitetick/engine/internal/dao"
)

// SecretsManagerStore reads credentials from AWS Secrets Manager, one
// secret per "userID/osType" pair, stored as a JSON object with
// api_key/api_secret/access_token fields.
type SecretsManagerStore struct {
	client *secretsmanager.SecretsManager
}

// NewSecretsManagerStore builds a store using the default AWS credential
// chain (environment, shared config, EC2/ECS role).
func NewSecretsManagerStore() (*SecretsManagerStore, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("creds: aws session: %w", err)
	}
	return &SecretsManagerStore{client: secretsmanager.New(sess)}, nil
}

type secretPayload struct {
	APIKey      string `json:"api_key"`
	APISecret   string `json:"api_secret"`
	AccessToken string `json:"access_token"`
}

func (s *SecretsManagerStore) GetCreds(ctx context.Context, userID, osType string) (dao.KiteCreds, error) {
	secretID := fmt.Sprintf("kitetick/%s/%s", userID, osType)

	out, err := s.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return dao.KiteCreds{}, fmt.Errorf("creds: get secret %s: %w", secretID, err)
	}
	if out.SecretString == nil {
		return dao.KiteCreds{}, fmt.Errorf("creds: secret %s has no string payload", secretID)
	}

	var p secretPayload
	if err := json.Unmarshal([]byte(*out.SecretString), &p); err != nil {
		return dao.KiteCreds{}, fmt.Errorf("creds: decode secret %s: %w", secretID, err)
	}

	return dao.KiteCreds{
		APIKey:      p.APIKey,
		APISecret:   p.APISecret,
		AccessToken: p.AccessToken,
		HasAccess:   p.AccessToken != "",
	}, nil
}
