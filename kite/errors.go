package kite

import "errors"

// Sentinel setup-time errors. Runtime WS errors are not sentinels: they carry
// the underlying cause and are handled by the supervisor's backoff loop.
var (
	ErrMissingCredentials = errors.New("kite: missing credentials")
	ErrNoSubscription     = errors.New("kite: empty subscription set")
	ErrWsHandshake        = errors.New("kite: websocket handshake failed")
)

// WsError wraps a runtime (post-handshake) websocket failure. The supervisor
// treats any WsError as retryable.
type WsError struct {
	Op  string
	Err error
}

func (e *WsError) Error() string {
	return "kite: ws " + e.Op + ": " + e.Err.Error()
}

func (e *WsError) Unwrap() error {
	return e.Err
}
