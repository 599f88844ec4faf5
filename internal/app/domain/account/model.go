package account

import "time"

// Account is a registered user identity. Content authorship and order
// ownership both hang off it.
type Account struct {
	ID           string
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string `json:"-"`
	CreatedAt    time.Time
}

// AnonymousName is substituted for blank usernames and display names at
// signup.
const AnonymousName = "Anonymous"
