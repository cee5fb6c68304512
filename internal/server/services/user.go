package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/cryptox"
	"github.com/dmitrijs2005/notekeeper/internal/dbx"
	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/dmitrijs2005/notekeeper/internal/server/config"
	"github.com/dmitrijs2005/notekeeper/internal/server/models"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	maxUserNameLen    = 50
	minPasswordLen    = 8
	maxPasswordBytes  = 72
	recoveryCodeBytes = 16
)

// SignUpInput is what a new user submits.
type SignUpInput struct {
	UserName string
	Email    string
	Password string
}

// UserService owns the user lifecycle: sign-up (which provisions the user's
// keypair and signing secret), password changes, recovery, statistics and
// account deletion.
type UserService struct {
	db               dbx.Database
	repomanager      repomanager.RepositoryManager
	vault            KeyVault
	notifier         Notifier
	adminKey         string
	baseURL          string
	recoveryValidity time.Duration
	logger           logging.Logger
	now              func() time.Time
}

func NewUserService(db dbx.Database, m repomanager.RepositoryManager, vault KeyVault, notifier Notifier, cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{
		db:               db,
		repomanager:      m,
		vault:            vault,
		notifier:         notifier,
		adminKey:         cfg.AdminKey,
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		recoveryValidity: cfg.RecoveryCodeValidityDuration,
		logger:           logger.With("module", "users"),
		now:              time.Now,
	}
}

// CheckPassword enforces the password policy: at least eight characters,
// at least one letter and one digit, and no more than bcrypt accepts.
func CheckPassword(password string) error {
	if len([]rune(password)) < minPasswordLen || len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password must be %d to %d characters", common.ErrorInvalidArgument, minPasswordLen, maxPasswordBytes)
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return fmt.Errorf("%w: password must contain letters and digits", common.ErrorInvalidArgument)
	}
	return nil
}

func (in SignUpInput) validate() error {
	if in.UserName == "" || len(in.UserName) > maxUserNameLen || strings.TrimSpace(in.UserName) != in.UserName {
		return fmt.Errorf("%w: bad username", common.ErrorInvalidArgument)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("%w: bad email", common.ErrorInvalidArgument)
	}
	return CheckPassword(in.Password)
}

// SignUp registers a regular user.
func (s *UserService) SignUp(ctx context.Context, in SignUpInput) (*models.User, error) {
	return s.createUser(ctx, in, false)
}

// CreateAdmin registers an administrator. adminKey must match the
// configured admin creation key.
func (s *UserService) CreateAdmin(ctx context.Context, adminKey string, in SignUpInput) (*models.User, error) {
	if s.adminKey == "" || subtle.ConstantTimeCompare([]byte(adminKey), []byte(s.adminKey)) != 1 {
		s.logger.Warn(ctx, "admin creation with wrong key", "username", in.UserName)
		return nil, common.ErrorAccessDenied
	}
	return s.createUser(ctx, in, true)
}

func (s *UserService) createUser(ctx context.Context, in SignUpInput, isAdmin bool) (*models.User, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.db)
	if _, err := repo.GetByUsername(ctx, in.UserName); err == nil {
		return nil, common.ErrorConflict
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, internal(ctx, s.logger, "username lookup failed", err)
	}
	if _, err := repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, common.ErrorConflict
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, internal(ctx, s.logger, "email lookup failed", err)
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		if cryptox.IsPasswordTooLong(err) {
			return nil, common.ErrorInvalidArgument
		}
		return nil, internal(ctx, s.logger, "password hashing failed", err)
	}

	id := uuid.NewString()
	pub, err := s.vault.Provision(ctx, id)
	if err != nil {
		return nil, internal(ctx, s.logger, "key provisioning failed", err, "user_id", id)
	}

	var user *models.User
	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.repomanager.Users(tx).Create(ctx, &models.User{
			ID:           id,
			UserName:     in.UserName,
			Email:        in.Email,
			PasswordHash: hash,
			IsAdmin:      isAdmin,
			PublicKey:    pub,
		})
		if err != nil {
			return err
		}
		return s.repomanager.Statistics(tx).Create(ctx, id)
	})
	if err != nil {
		if derr := s.vault.DeleteKeys(ctx, id); derr != nil {
			s.logger.Error(ctx, "orphaned key material", "user_id", id, "error", derr)
		}
		return nil, passKnown(ctx, s.logger, "user creation failed", err)
	}

	s.logger.Info(ctx, "user created", "user_id", id, "admin", isAdmin)
	return user, nil
}

// ChangePassword replaces the password after checking the current one. Keys
// and existing sessions are left as they are.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if err := CheckPassword(newPassword); err != nil {
		return err
	}
	if newPassword == oldPassword {
		return fmt.Errorf("%w: new password equals the current one", common.ErrorInvalidArgument)
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return passKnown(ctx, s.logger, "user lookup failed", err)
	}
	if !cryptox.CheckPassword(user.PasswordHash, oldPassword) {
		return common.ErrorAccessDenied
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return internal(ctx, s.logger, "password hashing failed", err)
	}
	if err := repo.UpdatePassword(ctx, userID, hash); err != nil {
		return passKnown(ctx, s.logger, "password update failed", err)
	}
	return nil
}

// RequestRecovery sends a single-use reset link to the account registered
// with email. Unknown addresses are silently accepted.
func (s *UserService) RequestRecovery(ctx context.Context, email string) error {
	recoveries := s.repomanager.Recoveries(s.db)
	if n, err := recoveries.DeleteExpired(ctx, s.now()); err != nil {
		s.logger.Warn(ctx, "expired recovery purge failed", "error", err)
	} else if n > 0 {
		s.logger.Debug(ctx, "expired recovery codes purged", "count", n)
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return internal(ctx, s.logger, "email lookup failed", err)
	}

	code, err := common.MakeRandHexString(recoveryCodeBytes)
	if err != nil {
		return internal(ctx, s.logger, "recovery code generation failed", err)
	}
	err = recoveries.Upsert(ctx, &models.Recovery{
		UserID:    user.ID,
		CodeHash:  cryptox.HashToken(code),
		ExpiresAt: s.now().Add(s.recoveryValidity),
	})
	if err != nil {
		return internal(ctx, s.logger, "recovery code store failed", err)
	}

	link := fmt.Sprintf("%s/users/recover/%s/%s", s.baseURL, user.ID, code)
	text := fmt.Sprintf("Use this link to set a new password: %s\nIt expires in %s.", link, s.recoveryValidity)
	if err := s.notifier.Send(ctx, user.Email, text); err != nil {
		return internal(ctx, s.logger, "recovery notification failed", err, "user_id", user.ID)
	}
	return nil
}

// ConfirmRecovery sets a new password using a recovery code. The code is
// consumed and the stored refresh token is cleared, ending every session.
func (s *UserService) ConfirmRecovery(ctx context.Context, userID, code, newPassword string) error {
	if err := normalizeID("user", &userID); err != nil {
		return err
	}
	if err := CheckPassword(newPassword); err != nil {
		return err
	}

	rec, err := s.repomanager.Recoveries(s.db).Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorAccessDenied
		}
		return internal(ctx, s.logger, "recovery lookup failed", err)
	}
	if !s.now().Before(rec.ExpiresAt) {
		if err := s.repomanager.Recoveries(s.db).Delete(ctx, userID); err != nil && !errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "expired recovery delete failed", "user_id", userID, "error", err)
		}
		return common.ErrorExpired
	}
	if !cryptox.EqualDigests(rec.CodeHash, cryptox.HashToken(code)) {
		return common.ErrorAccessDenied
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return internal(ctx, s.logger, "password hashing failed", err)
	}

	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// a concurrent confirm that already consumed the code makes this NotFound
		if err := s.repomanager.Recoveries(tx).Delete(ctx, userID); err != nil {
			return err
		}
		users := s.repomanager.Users(tx)
		if err := users.UpdatePassword(ctx, userID, hash); err != nil {
			return err
		}
		return users.SetRefreshHash(ctx, userID, "")
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorAccessDenied
		}
		return internal(ctx, s.logger, "password reset failed", err, "user_id", userID)
	}

	s.logger.Info(ctx, "password reset", "user_id", userID)
	return nil
}

// Statistics returns the user's note counters.
func (s *UserService) Statistics(ctx context.Context, userID string) (*models.Statistics, error) {
	st, err := s.repomanager.Statistics(s.db).Get(ctx, userID)
	if err != nil {
		return nil, passKnown(ctx, s.logger, "statistics lookup failed", err)
	}
	return st, nil
}

// DeleteAccount removes the caller's account, notes, grants and keys.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	return deleteUser(ctx, s.db, s.repomanager, s.vault, s.logger, userID)
}

// deleteUser runs the user cascade in one transaction and then drops the
// key material under the canonical id. A user whose keys cannot be deleted
// is already gone from the database, so that failure is only logged.
func deleteUser(ctx context.Context, db dbx.Database, m repomanager.RepositoryManager, vault KeyVault, logger logging.Logger, userID string) error {
	if err := normalizeID("user", &userID); err != nil {
		return err
	}

	err := db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return deleteUserCascade(ctx, m, tx, userID)
	})
	if err != nil {
		return passKnown(ctx, logger, "user deletion failed", err)
	}

	// a user row always has a key record, so NotFound here is a fault too
	if err := vault.DeleteKeys(ctx, userID); err != nil {
		logger.Error(ctx, "key deletion failed", "user_id", userID, "error", err)
	}
	logger.Info(ctx, "user deleted", "user_id", userID)
	return nil
}
