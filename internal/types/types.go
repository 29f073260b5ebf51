package types

import (
	"strings"
)

// User is the identity bound to a connection once its token has been
// verified. It is never taken from client supplied payloads.
type User struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	EmailAddress string `json:"email_address,omitempty"`
}

// DisplayName falls back to the local part of the email address, then to
// "Anon", when the user has no name set.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}

	if local, _, ok := strings.Cut(u.EmailAddress, "@"); ok && local != "" {
		return local
	}

	return "Anon"
}
