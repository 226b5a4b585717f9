package kite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/kitetick/engine/internal/requests"
)

const kiteLoginBaseURL = "https://kite.zerodha.com/connect/login"

// LoginURL builds the Kite Connect login redirect for apiKey. By default it
// omits redirect_url: Kite already knows the redirect URL registered against
// the API key, and passing a mismatched one here gets a 400 "supplied URL
// does not belong to the registered URL domain". Set KITE_INCLUDE_REDIRECT_URL=1
// to force it through anyway.
func LoginURL(apiKey, callbackURL string) string {
	if !includeRedirectURL() {
		return fmt.Sprintf("%s?api_key=%s&v=3", kiteLoginBaseURL, url.QueryEscape(apiKey))
	}
	return fmt.Sprintf("%s?api_key=%s&v=3&redirect_url=%s", kiteLoginBaseURL, url.QueryEscape(apiKey), url.QueryEscape(callbackURL))
}

func includeRedirectURL() bool {
	v := strings.TrimSpace(os.Getenv("KITE_INCLUDE_REDIRECT_URL"))
	return v == "1" || strings.EqualFold(v, "true")
}

// CallbackURLForUser fills a per-user identifier into base, which Kite
// requires to match the redirect_url registered in the developer console.
// base may be a template ("{userid}"/"{user_id}"), already carry a
// userid/user_id query param (left untouched), or be a bare URL the user_id
// gets appended to.
func CallbackURLForUser(base, userID string) string {
	if strings.Contains(base, "{userid}") {
		return strings.ReplaceAll(base, "{userid}", url.QueryEscape(userID))
	}
	if strings.Contains(base, "{user_id}") {
		return strings.ReplaceAll(base, "{user_id}", url.QueryEscape(userID))
	}

	if u, err := url.Parse(base); err == nil && u.IsAbs() {
		q := u.Query()
		if q.Has("userid") || q.Has("user_id") {
			return base
		}
		q.Set("userid", userID)
		u.RawQuery = q.Encode()
		return u.String()
	}

	if strings.Contains(base, "?") {
		return fmt.Sprintf("%s&userid=%s", base, url.QueryEscape(userID))
	}
	return fmt.Sprintf("%s?userid=%s", base, url.QueryEscape(userID))
}

// SessionToken is the payload Kite returns from POST /session/token.
type SessionToken struct {
	AccessToken string `json:"access_token"`
	PublicToken string `json:"public_token"`
	UserID      string `json:"user_id"`
}

type kiteEnvelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// ExchangeRequestToken completes the OAuth handshake: it posts the
// checksummed request_token to Kite's session endpoint and returns the
// resulting access/public tokens.
func ExchangeRequestToken(ctx context.Context, apiKey, apiSecret, requestToken string) (*SessionToken, error) {
	form := map[string]string{
		"api_key":       apiKey,
		"request_token": requestToken,
		"checksum":      checksum(apiKey, requestToken, apiSecret),
	}

	body, status, err := requests.PostForm(ctx, "https://api.kite.trade/session/token", nil, form)
	if err != nil {
		return nil, fmt.Errorf("kite: exchange request token: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("kite: exchange request token: HTTP %d: %s", status, body)
	}

	var env kiteEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("kite: decode session response: %w", err)
	}
	if env.Status != "success" {
		msg := env.Message
		if msg == "" {
			msg = "unknown Kite error"
		}
		return nil, fmt.Errorf("kite: session exchange failed: %s", msg)
	}

	var tok SessionToken
	if err := json.Unmarshal(env.Data, &tok); err != nil {
		return nil, fmt.Errorf("kite: decode session token: %w", err)
	}
	return &tok, nil
}

func checksum(apiKey, requestToken, apiSecret string) string {
	h := sha256.New()
	h.Write([]byte(apiKey))
	h.Write([]byte(requestToken))
	h.Write([]byte(apiSecret))
	return hex.EncodeToString(h.Sum(nil))
}
