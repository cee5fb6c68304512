package httpapi

import (
	"time"

	"github.com/dmitrijs2005/notekeeper/internal/server/models"
	"github.com/dmitrijs2005/notekeeper/internal/server/services"
)

type signUpRequest struct {
	UserName string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r signUpRequest) input() services.SignUpInput {
	return services.SignUpInput{UserName: r.UserName, Email: r.Email, Password: r.Password}
}

type createAdminRequest struct {
	signUpRequest
	AdminKey string `json:"admin_key"`
}

type signInRequest struct {
	UserName string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	UserName string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, UserName: u.UserName, Email: u.Email, IsAdmin: u.IsAdmin}
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type recoveryRequest struct {
	Email string `json:"email"`
}

type confirmRecoveryRequest struct {
	Password string `json:"password"`
}

type noteRequest struct {
	Header      string     `json:"header"`
	Text        string     `json:"text"`
	Tags        string     `json:"tags"`
	ActiveUntil *time.Time `json:"active_until,omitempty"`
}

func (r noteRequest) input() services.NoteInput {
	return services.NoteInput{Header: r.Header, Text: r.Text, Tags: r.Tags, ActiveUntil: r.ActiveUntil}
}

type noteResponse struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Header      string     `json:"header"`
	Text        string     `json:"text"`
	Tags        string     `json:"tags"`
	CreatedAt   time.Time  `json:"created_at"`
	ActiveUntil *time.Time `json:"active_until,omitempty"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
	EditedBy    string     `json:"edited_by,omitempty"`
	Permission  string     `json:"permission"`
	IsOwner     bool       `json:"is_owner"`
}

func newNoteResponse(v *services.NoteView) noteResponse {
	return noteResponse{
		ID:          v.ID,
		OwnerID:     v.OwnerID,
		Header:      v.Header,
		Text:        v.Text,
		Tags:        v.Tags,
		CreatedAt:   v.CreatedAt,
		ActiveUntil: v.ActiveUntil,
		EditedAt:    v.EditedAt,
		EditedBy:    v.EditedBy,
		Permission:  v.Permission.String(),
		IsOwner:     v.IsOwner,
	}
}

type shareLinkResponse struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// accessRequest addresses one grant. Permission is ignored by revoke.
type accessRequest struct {
	NoteID     string            `json:"note_id"`
	UserID     string            `json:"user_id"`
	Permission models.Permission `json:"permission,omitempty"`
}

type deletedResponse struct {
	Deleted int `json:"deleted"`
}
