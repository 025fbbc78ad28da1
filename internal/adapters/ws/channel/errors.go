package channel

import "errors"

var (
	// ErrReconnectExhausted is reported once the retry ceiling is hit. Only Reconnect restarts the channel.
	ErrReconnectExhausted = errors.New("connection failed after multiple attempts")
	// ErrDisabled is returned by Reconnect when the channel has no enabled target.
	ErrDisabled = errors.New("channel disabled")
)
