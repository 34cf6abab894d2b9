package client

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned after the server answered 401; the session has been cleared
var ErrUnauthorized = errors.New("session expired, please log in again")

// APIError is a request the server rejected (bad payload, unknown lead, wrong role)
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server rejected request (%d): %s", e.Status, e.Message)
}

// Kind classifies a failed call
type Kind int

const (
	KindNone Kind = iota
	KindNetwork
	KindUnauthorized
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindRejected:
		return "rejected"
	default:
		return "none"
	}
}

// Classify maps an error returned by Client to its Kind.
// Anything that is neither a 401 nor a server rejection is a transport failure, timeouts included.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrUnauthorized) {
		return KindUnauthorized
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return KindRejected
	}
	return KindNetwork
}
