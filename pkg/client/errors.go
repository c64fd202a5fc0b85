package client

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConnected is returned by operations that require a successful
// Connect handshake first.
var ErrNotConnected = errors.New("client is not connected")

// ResponseError is a non-2xx backend response surfaced to the initiating
// call.
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// connectionLossSignatures are transport error fragments that indicate the
// backend itself is gone, as opposed to a single failed request. Matching
// one flips the connection state to disabled so subsequent calls fail fast.
var connectionLossSignatures = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"unexpected EOF",
	"server closed idle connection",
}

// IsConnectionLoss reports whether err matches a known network-failure
// signature.
func IsConnectionLoss(err error) bool {
	if err == nil {
		return false
	}

	message := err.Error()
	for _, sig := range connectionLossSignatures {
		if strings.Contains(message, sig) {
			return true
		}
	}
	return false
}
