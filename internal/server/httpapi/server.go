// Package httpapi exposes the note services over HTTP: JSON bodies, cookie
// sessions with a double-submit CSRF check, and a chi router.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/dmitrijs2005/notekeeper/internal/server/models"
	"github.com/dmitrijs2005/notekeeper/internal/server/services"
)

type Sessions interface {
	Login(ctx context.Context, username, password string) (*models.User, *services.TokenPair, error)
	Resolve(ctx context.Context, accessToken, refreshToken string) (*models.User, *services.TokenPair, error)
	Logout(ctx context.Context, userID string) error
}

type Users interface {
	SignUp(ctx context.Context, in services.SignUpInput) (*models.User, error)
	CreateAdmin(ctx context.Context, adminKey string, in services.SignUpInput) (*models.User, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	RequestRecovery(ctx context.Context, email string) error
	ConfirmRecovery(ctx context.Context, userID, code, newPassword string) error
	Statistics(ctx context.Context, userID string) (*models.Statistics, error)
	DeleteAccount(ctx context.Context, userID string) error
}

type Notes interface {
	Create(ctx context.Context, ownerID string, in services.NoteInput) (*services.NoteView, error)
	Get(ctx context.Context, userID, noteID string) (*services.NoteView, error)
	List(ctx context.Context, userID string, opts services.ListOptions) ([]*services.NoteView, error)
	Update(ctx context.Context, userID, noteID string, in services.NoteInput) (*services.NoteView, error)
	Delete(ctx context.Context, userID, noteID string) error
}

type Accesses interface {
	Grant(ctx context.Context, ownerID, noteID, granteeID string, p models.Permission) error
	SetPermission(ctx context.Context, ownerID, noteID, granteeID string, p models.Permission) error
	Revoke(ctx context.Context, ownerID, noteID, granteeID string) error
}

type Shares interface {
	CreateLink(ctx context.Context, ownerID, noteID string) (*services.ShareLink, error)
	ReadShared(ctx context.Context, noteID, token string) (*services.NoteView, error)
	DeleteLink(ctx context.Context, ownerID, noteID string) error
}

type Admin interface {
	DeleteUser(ctx context.Context, userID string) error
	DeleteAllUsers(ctx context.Context) (int, error)
	DeleteNote(ctx context.Context, noteID string) error
}

// Services bundles everything the handlers call.
type Services struct {
	Sessions Sessions
	Users    Users
	Notes    Notes
	Accesses Accesses
	Shares   Shares
	Admin    Admin
}

type HTTPServer struct {
	address   string
	services  Services
	cookieTTL time.Duration
	secure    bool
	logger    logging.Logger
}

// NewHTTPServer builds the server. cookieTTL bounds the lifetime of session
// cookies; secure marks them Secure (HTTPS deployments).
func NewHTTPServer(address string, l logging.Logger, svc Services, cookieTTL time.Duration, secure bool) *HTTPServer {
	return &HTTPServer{
		address:   address,
		services:  svc,
		cookieTTL: cookieTTL,
		secure:    secure,
		logger:    l.With("module", "http_server"),
	}
}

const shutdownTimeout = 5 * time.Second

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *HTTPServer) serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
