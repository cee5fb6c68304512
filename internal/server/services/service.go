// Package services contains the server-side business logic: the session
// authority, envelope-encrypted notes, access grants, share links, user
// lifecycle and the expiry reaper.
package services

import (
	"context"
	"crypto/rsa"
	"fmt"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/google/uuid"
)

// KeyVault is the private key material the services need. It is satisfied
// by *keyvault.Vault.
type KeyVault interface {
	Provision(ctx context.Context, userID string) ([]byte, error)
	LoadPrivateKey(ctx context.Context, userID string) (*rsa.PrivateKey, error)
	LoadSigningSecret(ctx context.Context, userID string) ([]byte, error)
	DeleteKeys(ctx context.Context, userID string) error
	DeleteManyKeys(ctx context.Context, userIDs []string) error
}

// normalizeID rewrites *id into the lower-case hyphenated uuid form, so ids
// compare and key equally however the caller spelled them.
func normalizeID(kind string, id *string) error {
	u, err := uuid.Parse(*id)
	if err != nil {
		return fmt.Errorf("%w: malformed %s id", common.ErrorInvalidArgument, kind)
	}
	*id = u.String()
	return nil
}

// denied logs the real cause server-side and hands the caller a bare
// ErrorAccessDenied.
func denied(ctx context.Context, logger logging.Logger, msg string, err error, args ...any) error {
	logger.Warn(ctx, msg, append(args, "error", err)...)
	return common.ErrorAccessDenied
}

// internal logs err and returns ErrorInternal.
func internal(ctx context.Context, logger logging.Logger, msg string, err error, args ...any) error {
	logger.Error(ctx, msg, append(args, "error", err)...)
	return common.ErrorInternal
}
