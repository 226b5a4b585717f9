package kite

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kitetick/engine/internal/requests"
)

type Profile struct {
	UserID        string   `json:"user_id"`
	UserType      string   `json:"user_type"`
	Email         string   `json:"email"`
	UserName      string   `json:"user_name"`
	UserShortname string   `json:"user_shortname"`
	Broker        string   `json:"broker"`
	Exchanges     []string `json:"exchanges"`
	Products      []string `json:"products"`
	OrderTypes    []string `json:"order_types"`
	Avatar        string   `json:"avatar"`
	Meta          struct {
		DematConsent string `json:"demat_consent"`
	} `json:"meta"`
}

type ProfileResponsePayload struct {
	Status    string   `json:"status"`
	Message   string   `json:"message"`
	ErrorType string   `json:"error_type"`
	Data      *Profile `json:"data"`
}

// GetProfile performs the REST preflight call: a plain GET to /user/profile
// that confirms the access token is valid before the websocket session
// starts. Callers should log but not abort on failure — the websocket may
// still work even if this check has a transient issue.
func (k *Kite) GetProfile(ctx context.Context) (*Profile, error) {
	url := k.BaseURL + "/user/profile"

	headers := map[string]string{
		"Authorization":  k.authHeader(),
		"X-Kite-Version": "3",
	}

	res, code, err := requests.Get(ctx, url, headers)
	if err != nil {
		return nil, err
	}

	var respData ProfileResponsePayload
	if err := json.Unmarshal(res, &respData); err != nil {
		return nil, err
	}

	if code == 200 && respData.Data != nil {
		return respData.Data, nil
	}
	return nil, errors.New(respData.Status + ":" + respData.Message)
}
