// Package syncerr carries the domain-error taxonomy from spec section 7:
// a string-discriminated Kind plus the terminal/non-terminal
// classification that drives Node and Reconnect behavior.
package syncerr

import "fmt"

// Kind is one of the wire error kinds spec section 4.4/7 names.
type Kind string

const (
	WrongProtocol    Kind = "wrong-protocol"
	WrongCredentials Kind = "wrong-credentials"
	WrongSubprotocol Kind = "wrong-subprotocol"
	MissedAuth       Kind = "missed-auth"
	WrongFormat      Kind = "wrong-format"
	UnknownMessage   Kind = "unknown-message"
	Bruteforce       Kind = "bruteforce"
	Timeout          Kind = "timeout"
)

// Terminal reports whether kind is a handshake-terminal kind that must
// disable reconnection per spec section 4.4 ("causes the Node to ... mark
// the connection as non-resumable").
func (k Kind) Terminal() bool {
	switch k {
	case WrongProtocol, WrongCredentials, WrongSubprotocol:
		return true
	default:
		return false
	}
}

// SyncError is the typed error carried by Node's error/clientError events
// and by the wire "error" message, grounded on the teacher's APIError
// (a typed error carrying a status/kind alongside a message).
type SyncError struct {
	Kind   Kind
	Detail string
	// Received is the offending wire message, present for locally
	// detected errors (e.g. wrong-format) so listeners can inspect it.
	Received string
}

func (e *SyncError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("sync: %s", e.Kind)
	}
	return fmt.Sprintf("sync: %s: %s", e.Kind, e.Detail)
}

// New builds a SyncError of kind with an optional detail string.
func New(kind Kind, detail string) *SyncError {
	return &SyncError{Kind: kind, Detail: detail}
}
