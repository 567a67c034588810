package smtpconn

import "fmt"

// ConnectionError indicates the TCP or TLS connection could not be
// established, or the socket failed mid-session.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError indicates the connect or a read/write exceeded its bound.
type TimeoutError struct {
	Stage string
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Stage, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ProtocolError indicates the server answered a stage with a reply code
// other than the one the transition table requires. The raw server text is
// retained for diagnostics and is not parsed further.
type ProtocolError struct {
	Stage string
	Want  int
	Reply Reply
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Stage, e.Reply)
}

// AuthError indicates the AUTH LOGIN exchange was rejected.
type AuthError struct {
	Reply Reply
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("AUTH LOGIN rejected: %s", e.Reply)
}
