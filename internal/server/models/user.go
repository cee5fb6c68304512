package models

import "time"

type User struct {
	ID           string
	UserName     string
	Email        string
	PasswordHash string
	IsAdmin      bool
	PublicKey    []byte
	// RefreshHash is the SHA-256 digest of the current refresh token, empty
	// when the user is logged out.
	RefreshHash string
	CreatedAt   time.Time
}
