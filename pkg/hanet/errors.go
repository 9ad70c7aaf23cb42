package hanet

import (
	"fmt"
	"strings"
)

// AuthError means no valid access token could be obtained. It aborts the
// current request; the next request triggers a fresh refresh attempt.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hanet auth: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("hanet auth: %s", e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is a logical failure reported by HANET itself: the HTTP exchange
// succeeded but returnCode was neither 0 nor 1, or the envelope was not in
// the documented shape.
type APIError struct {
	ReturnCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hanet api: returnCode=%d message=%q", e.ReturnCode, e.Message)
}

// returnCodePlaceNotFound is HANET's code for an unknown placeID.
const returnCodePlaceNotFound = -9004

// PlaceNotFound reports whether the failure means an unknown place, which
// the HTTP layer maps to 404. The return code is authoritative; the message
// check covers endpoints that report the condition with a different code.
func (e *APIError) PlaceNotFound() bool {
	if e.ReturnCode == returnCodePlaceNotFound {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "place not found")
}

// TransportError is a network, timeout or HTTP-level failure that survived
// the retry policy.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("hanet transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
