package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/dmitrijs2005/notekeeper/internal/server/models"
	"github.com/dmitrijs2005/notekeeper/internal/server/services"
)

// ---- fakes ----

type fakeSessions struct {
	user    *models.User
	tokens  *services.TokenPair
	rotated *services.TokenPair
	err     error

	gotAccess, gotRefresh string
	loggedOut             string
}

func (f *fakeSessions) Login(ctx context.Context, username, password string) (*models.User, *services.TokenPair, error) {
	return f.user, f.tokens, f.err
}

func (f *fakeSessions) Resolve(ctx context.Context, accessToken, refreshToken string) (*models.User, *services.TokenPair, error) {
	f.gotAccess, f.gotRefresh = accessToken, refreshToken
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.user, f.rotated, nil
}

func (f *fakeSessions) Logout(ctx context.Context, userID string) error {
	f.loggedOut = userID
	return nil
}

type fakeUsers struct {
	user  *models.User
	stats *models.Statistics
	err   error

	signUp      services.SignUpInput
	adminKey    string
	recoverFor  string
	recoverCode string
	password    string
	deleted     string
}

func (f *fakeUsers) SignUp(ctx context.Context, in services.SignUpInput) (*models.User, error) {
	f.signUp = in
	return f.user, f.err
}

func (f *fakeUsers) CreateAdmin(ctx context.Context, adminKey string, in services.SignUpInput) (*models.User, error) {
	f.adminKey, f.signUp = adminKey, in
	return f.user, f.err
}

func (f *fakeUsers) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	f.password = newPassword
	return f.err
}

func (f *fakeUsers) RequestRecovery(ctx context.Context, email string) error { return f.err }

func (f *fakeUsers) ConfirmRecovery(ctx context.Context, userID, code, newPassword string) error {
	f.recoverFor, f.recoverCode, f.password = userID, code, newPassword
	return f.err
}

func (f *fakeUsers) Statistics(ctx context.Context, userID string) (*models.Statistics, error) {
	return f.stats, f.err
}

func (f *fakeUsers) DeleteAccount(ctx context.Context, userID string) error {
	f.deleted = userID
	return f.err
}

type fakeNotes struct {
	view  *services.NoteView
	views []*services.NoteView
	err   error

	userID string
	noteID string
	input  services.NoteInput
	opts   services.ListOptions
}

func (f *fakeNotes) Create(ctx context.Context, ownerID string, in services.NoteInput) (*services.NoteView, error) {
	f.userID, f.input = ownerID, in
	return f.view, f.err
}

func (f *fakeNotes) Get(ctx context.Context, userID, noteID string) (*services.NoteView, error) {
	f.userID, f.noteID = userID, noteID
	return f.view, f.err
}

func (f *fakeNotes) List(ctx context.Context, userID string, opts services.ListOptions) ([]*services.NoteView, error) {
	f.userID, f.opts = userID, opts
	return f.views, f.err
}

func (f *fakeNotes) Update(ctx context.Context, userID, noteID string, in services.NoteInput) (*services.NoteView, error) {
	f.userID, f.noteID, f.input = userID, noteID, in
	return f.view, f.err
}

func (f *fakeNotes) Delete(ctx context.Context, userID, noteID string) error {
	f.userID, f.noteID = userID, noteID
	return f.err
}

type fakeAccesses struct {
	err error

	call       string
	noteID     string
	granteeID  string
	permission models.Permission
}

func (f *fakeAccesses) Grant(ctx context.Context, ownerID, noteID, granteeID string, p models.Permission) error {
	f.call, f.noteID, f.granteeID, f.permission = "grant", noteID, granteeID, p
	return f.err
}

func (f *fakeAccesses) SetPermission(ctx context.Context, ownerID, noteID, granteeID string, p models.Permission) error {
	f.call, f.noteID, f.granteeID, f.permission = "set", noteID, granteeID, p
	return f.err
}

func (f *fakeAccesses) Revoke(ctx context.Context, ownerID, noteID, granteeID string) error {
	f.call, f.noteID, f.granteeID = "revoke", noteID, granteeID
	return f.err
}

type fakeShares struct {
	link *services.ShareLink
	view *services.NoteView
	err  error

	noteID string
	token  string
}

func (f *fakeShares) CreateLink(ctx context.Context, ownerID, noteID string) (*services.ShareLink, error) {
	f.noteID = noteID
	return f.link, f.err
}

func (f *fakeShares) ReadShared(ctx context.Context, noteID, token string) (*services.NoteView, error) {
	f.noteID, f.token = noteID, token
	return f.view, f.err
}

func (f *fakeShares) DeleteLink(ctx context.Context, ownerID, noteID string) error {
	f.noteID = noteID
	return f.err
}

type fakeAdmin struct {
	deleted int
	err     error

	userID string
	noteID string
}

func (f *fakeAdmin) DeleteUser(ctx context.Context, userID string) error {
	f.userID = userID
	return f.err
}

func (f *fakeAdmin) DeleteAllUsers(ctx context.Context) (int, error) { return f.deleted, f.err }

func (f *fakeAdmin) DeleteNote(ctx context.Context, noteID string) error {
	f.noteID = noteID
	return f.err
}

// ---- helpers ----

const testCSRF = "csrf-value"

var testUser = &models.User{ID: "u-1", UserName: "alice", Email: "alice@example.com"}

type fixture struct {
	sessions *fakeSessions
	users    *fakeUsers
	notes    *fakeNotes
	accesses *fakeAccesses
	shares   *fakeShares
	admin    *fakeAdmin
	handler  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions: &fakeSessions{user: testUser},
		users:    &fakeUsers{},
		notes:    &fakeNotes{},
		accesses: &fakeAccesses{},
		shares:   &fakeShares{},
		admin:    &fakeAdmin{},
	}
	srv := NewHTTPServer("127.0.0.1:0", logging.Nop(), Services{
		Sessions: f.sessions,
		Users:    f.users,
		Notes:    f.notes,
		Accesses: f.accesses,
		Shares:   f.shares,
		Admin:    f.admin,
	}, time.Hour, false)
	f.handler = srv.Router()
	return f
}

// do sends an unauthenticated request.
func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// doAuth sends a request carrying session cookies and a matching CSRF header.
func (f *fixture) doAuth(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: common.AccessTokenCookieName, Value: "access"})
	req.AddCookie(&http.Cookie{Name: common.RefreshTokenCookieName, Value: "refresh"})
	req.AddCookie(&http.Cookie{Name: common.CSRFTokenCookieName, Value: testCSRF})
	req.Header.Set(common.CSRFTokenHeaderName, testCSRF)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}
