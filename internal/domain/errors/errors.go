package errors

import "errors"

// Not-found conditions. These are expected control flow for the watchers: a
// deposit that matches no open payment is logged and dropped, never retried.
var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrAddressNotFound = errors.New("address not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Validation failures. They abort the current quote or operation only.
var (
	ErrBelowMinimum        = errors.New("amount is less than the gateway minimum")
	ErrUnsupportedCurrency = errors.New("currency not supported by this gateway")
	ErrGatewayNotFound     = errors.New("gateway not found")
	ErrInvalidAmount       = errors.New("invalid transfer amount")
)

// Fatal conditions. No watcher can make progress without the store, so a
// failed reconnect propagates out of the event handler instead of being
// swallowed by the per-event recovery.
var (
	ErrStoreUnavailable = errors.New("store connection could not be re-established")
)
