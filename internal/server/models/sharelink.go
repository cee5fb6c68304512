package models

import "time"

// ShareLink stores a note's content key sealed under a link key. Only the
// link id is persisted; the link key travels in the token.
type ShareLink struct {
	LinkID     string
	NoteID     string
	OwnerID    string
	WrappedKey []byte
	CreatedAt  time.Time
}
