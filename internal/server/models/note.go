package models

import "time"

// Note is a stored note. Header, Text and Tags hold ciphertext only.
type Note struct {
	ID          string
	OwnerID     string
	Header      []byte
	Text        []byte
	Tags        []byte
	OwnerKey    []byte // content key wrapped under the owner's public key
	CreatedAt   time.Time
	ActiveUntil *time.Time
	EditedAt    *time.Time
	EditedBy    string
}

// NoteAccess is a note as seen by one user: the wrapped key that user can
// unwrap and the permission they hold. WrappedKey is nil when the user has
// no access.
type NoteAccess struct {
	Note       Note
	WrappedKey []byte
	Permission Permission
	IsOwner    bool
}
