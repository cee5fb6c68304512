package models

import "fmt"

type Permission int

const (
	PermissionRead      Permission = 1
	PermissionReadWrite Permission = 2
)

func (p Permission) Valid() bool {
	return p == PermissionRead || p == PermissionReadWrite
}

func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "read"
	case PermissionReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("Permission(%d)", int(p))
	}
}

// AccessGrant authorizes one user to unwrap a note's content key.
type AccessGrant struct {
	NoteID     string
	UserID     string
	Permission Permission
	WrappedKey []byte
}
