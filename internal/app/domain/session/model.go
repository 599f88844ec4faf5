package session

import "time"

// Session maps an opaque client-held token to an account id. A token that no
// longer resolves (expired or account gone) makes the caller anonymous; it is
// never an error.
type Session struct {
	Token     string
	AccountID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
