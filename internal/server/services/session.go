package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/cryptox"
	"github.com/dmitrijs2005/notekeeper/internal/dbx"
	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/dmitrijs2005/notekeeper/internal/server/auth"
	"github.com/dmitrijs2005/notekeeper/internal/server/config"
	"github.com/dmitrijs2005/notekeeper/internal/server/models"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SessionService issues access tokens signed with the service secret and
// refresh tokens signed with each user's own secret. Only the SHA-256 digest
// of the current refresh token is stored, and every redemption rotates it.
type SessionService struct {
	db                           dbx.Database
	repomanager                  repomanager.RepositoryManager
	vault                        KeyVault
	accessSecret                 []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	logger                       logging.Logger
}

func NewSessionService(db dbx.Database, m repomanager.RepositoryManager, vault KeyVault, cfg *config.Config, logger logging.Logger) *SessionService {
	return &SessionService{
		db:                           db,
		repomanager:                  m,
		vault:                        vault,
		accessSecret:                 []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		logger:                       logger.With("module", "sessions"),
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnPasswordCheck spends the same bcrypt work as a real check so unknown
// usernames are not distinguishable by timing.
func burnPasswordCheck(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = cryptox.HashPassword("notekeeper-dummy-password")
	})
	cryptox.CheckPassword(dummyHash, password)
}

// Login verifies credentials and issues a new token pair, replacing any
// previously stored refresh token.
func (s *SessionService) Login(ctx context.Context, username, password string) (*models.User, *TokenPair, error) {
	user, err := s.repomanager.Users(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			burnPasswordCheck(password)
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, internal(ctx, s.logger, "login lookup failed", err)
	}

	if !cryptox.CheckPassword(user.PasswordHash, password) {
		return nil, nil, common.ErrorUnauthorized
	}

	pair, err := s.Issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Issue mints a token pair for user and stores the refresh digest,
// overwriting the previous one.
func (s *SessionService) Issue(ctx context.Context, user *models.User) (*TokenPair, error) {
	pair, err := s.mint(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.repomanager.Users(s.db).SetRefreshHash(ctx, user.ID, cryptox.HashToken(pair.RefreshToken)); err != nil {
		return nil, internal(ctx, s.logger, "failed to store refresh digest", err, "user_id", user.ID)
	}
	return pair, nil
}

func (s *SessionService) mint(ctx context.Context, user *models.User) (*TokenPair, error) {
	secret, err := s.vault.LoadSigningSecret(ctx, user.ID)
	if err != nil {
		return nil, internal(ctx, s.logger, "signing secret unavailable", err, "user_id", user.ID)
	}

	access, err := auth.GenerateToken(user.UserName, auth.TokenTypeAccess, s.accessSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, internal(ctx, s.logger, "failed to sign access token", err)
	}
	refresh, err := auth.GenerateToken(user.UserName, auth.TokenTypeRefresh, secret, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, internal(ctx, s.logger, "failed to sign refresh token", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Authenticate resolves the user behind a valid access token.
func (s *SessionService) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	username, err := auth.ParseToken(accessToken, auth.TokenTypeAccess, s.accessSecret)
	if err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, internal(ctx, s.logger, "user lookup failed", err)
	}
	return user, nil
}

// Refresh redeems a refresh token. The token must verify against the claimed
// subject's own signing secret and its digest must equal the stored one; the
// stored digest is then swapped for the new token's digest in a single
// conditional update, so a token can be redeemed at most once.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*models.User, *TokenPair, error) {
	username, err := auth.UnverifiedSubject(refreshToken)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.repomanager.Users(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrorAccessDenied
		}
		return nil, nil, internal(ctx, s.logger, "user lookup failed", err)
	}

	secret, err := s.vault.LoadSigningSecret(ctx, user.ID)
	if err != nil {
		return nil, nil, denied(ctx, s.logger, "signing secret unavailable", err, "user_id", user.ID)
	}
	if _, err := auth.ParseToken(refreshToken, auth.TokenTypeRefresh, secret); err != nil {
		return nil, nil, err
	}

	pair, err := s.mint(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	oldHash := cryptox.HashToken(refreshToken)
	newHash := cryptox.HashToken(pair.RefreshToken)

	var swapped bool
	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		swapped, err = s.repomanager.Users(tx).SwapRefreshHash(ctx, user.ID, oldHash, newHash)
		return err
	})
	if err != nil {
		return nil, nil, internal(ctx, s.logger, "refresh rotation failed", err, "user_id", user.ID)
	}
	if !swapped {
		s.logger.Warn(ctx, "refresh token replayed or superseded", "user_id", user.ID)
		return nil, nil, common.ErrorAccessDenied
	}

	return user, pair, nil
}

// Resolve authenticates a request from its cookies. A valid access token
// wins; otherwise a refresh token, if present, is redeemed and the rotated
// pair is returned alongside the user.
func (s *SessionService) Resolve(ctx context.Context, accessToken, refreshToken string) (*models.User, *TokenPair, error) {
	var accessErr error = common.ErrorUnauthorized
	if accessToken != "" {
		user, err := s.Authenticate(ctx, accessToken)
		if err == nil {
			return user, nil, nil
		}
		accessErr = err
	}

	if refreshToken == "" {
		return nil, nil, accessErr
	}
	return s.Refresh(ctx, refreshToken)
}

// Logout forgets the stored refresh digest so no refresh token for the user
// can be redeemed any more.
func (s *SessionService) Logout(ctx context.Context, userID string) error {
	if err := s.repomanager.Users(s.db).SetRefreshHash(ctx, userID, ""); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return internal(ctx, s.logger, "logout failed", err, "user_id", userID)
	}
	return nil
}
