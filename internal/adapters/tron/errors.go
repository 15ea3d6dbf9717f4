package tron

import (
	"errors"
	"fmt"
)

// ErrBlockNotFound is returned when the node has no block at the requested
// height yet.
var ErrBlockNotFound = errors.New("block not found")

// ErrBroadcastRejected is returned when the node refuses a signed transaction.
var ErrBroadcastRejected = errors.New("broadcast rejected")

// APIError is a non-2xx answer from the node.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tron api %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}
