package models

import "time"

// Recovery is a pending password-reset request. CodeHash is the SHA-256
// digest of the code sent to the user.
type Recovery struct {
	UserID    string
	CodeHash  string
	ExpiresAt time.Time
}
