// Package apperr defines the request-scoped error kinds the runtime
// raises (spec §7), distinct from internal/lang's GrammarError which
// is fatal to startup rather than to one request.
package apperr

import "fmt"

// LoginError is raised by Goto into a Verified state when the session
// is not logged in. The HTTP adapter maps it to 401.
type LoginError struct {
	State string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login required to enter state %q", e.State)
}

// InvalidToken is raised by the session registry on any unknown or
// forged token. The HTTP adapter maps it to 403.
type InvalidToken struct {
	Reason string
}

func (e *InvalidToken) Error() string {
	if e.Reason == "" {
		return "invalid token"
	}
	return fmt.Sprintf("invalid token: %s", e.Reason)
}

// BadRequest is raised for missing or malformed HTTP arguments. The
// HTTP adapter maps it to 400.
type BadRequest struct {
	Reason string
}

func (e *BadRequest) Error() string {
	return fmt.Sprintf("bad request: %s", e.Reason)
}
