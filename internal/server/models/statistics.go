package models

type Statistics struct {
	UserID       string `json:"-"`
	NotesCreated int64  `json:"notes_created"`
	NotesRead    int64  `json:"notes_read"`
	NotesDeleted int64  `json:"notes_deleted"`
}
