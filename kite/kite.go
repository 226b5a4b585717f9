package kite

// Kite is a per-user handle: the credentials needed to call Kite's REST and
// websocket APIs, plus the tick store the websocket session feeds.
type Kite struct {
	APIKey      string
	APISecret   string
	AccessToken string

	BaseURL string // Kite REST base, e.g. https://api.kite.trade

	Store *TickStore
}

// NewKite builds a Kite handle bound to a fresh, empty TickStore.
func NewKite(apiKey, apiSecret, accessToken string) *Kite {
	return &Kite{
		APIKey:      apiKey,
		APISecret:   apiSecret,
		AccessToken: accessToken,
		BaseURL:     "https://api.kite.trade",
		Store:       NewTickStore(),
	}
}

func (k *Kite) authHeader() string {
	return "token " + k.APIKey + ":" + k.AccessToken
}
