// Package keyvault owns every user's private key material: one RSA private key
// and one refresh-token signing secret per user, addressed by the user's stable
// id and persisted through a Store.
package keyvault

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/cryptox"
	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/google/uuid"
)

// SigningSecretSize is the length in bytes of a per-user refresh signing secret.
const SigningSecretSize = 32

type record struct {
	PrivateKey    []byte `json:"private_key,omitempty"`
	SigningSecret []byte `json:"signing_secret,omitempty"`
}

func (r *record) empty() bool {
	return len(r.PrivateKey) == 0 && len(r.SigningSecret) == 0
}

// Vault is constructed once with its store and passed to the services that
// need private material.
type Vault struct {
	store   Store
	keyBits int
	logger  logging.Logger

	// serializes read-modify-write of records
	mu sync.Mutex
}

func NewVault(store Store, keyBits int, logger logging.Logger) *Vault {
	if keyBits <= 0 {
		keyBits = cryptox.DefaultKeyBits
	}
	return &Vault{store: store, keyBits: keyBits, logger: logger.With("module", "keyvault")}
}

// canonicalID returns the lower-case hyphenated form of userID. Records are
// keyed by it, so every accepted spelling of one id reaches the same record.
func canonicalID(userID string) (string, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return "", fmt.Errorf("%w: bad user id", common.ErrorInvalidArgument)
	}
	return id.String(), nil
}

func (v *Vault) load(ctx context.Context, userID string) (*record, error) {
	data, err := v.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec := &record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode key record: %w", err)
	}
	return rec, nil
}

// update applies fn to the user's record (a fresh one if absent) and persists
// the result. The caller must hold v.mu.
func (v *Vault) update(ctx context.Context, userID string, fn func(rec *record) error) error {
	rec, err := v.load(ctx, userID)
	exists := true
	if errors.Is(err, common.ErrorNotFound) {
		rec, exists = &record{}, false
	} else if err != nil {
		return err
	}

	if err := fn(rec); err != nil {
		return err
	}

	if rec.empty() {
		if !exists {
			return nil
		}
		return v.store.Delete(ctx, userID)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if !exists {
		return v.store.Create(ctx, userID, data)
	}
	return v.store.Put(ctx, userID, data)
}

// CreateKeypair generates a keypair for the user, stores the private half and
// returns the PEM-encoded public key. It fails with common.ErrorConflict if the
// user already has one.
func (v *Vault) CreateKeypair(ctx context.Context, userID string) ([]byte, error) {
	userID, err := canonicalID(userID)
	if err != nil {
		return nil, err
	}

	priv, err := cryptox.GenerateKeyPair(v.keyBits)
	if err != nil {
		return nil, err
	}
	pub, err := cryptox.MarshalPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	err = v.update(ctx, userID, func(rec *record) error {
		if len(rec.PrivateKey) > 0 {
			return common.ErrorConflict
		}
		rec.PrivateKey = cryptox.MarshalPrivateKey(priv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// LoadPrivateKey returns common.ErrorNotFound when the user has no key.
func (v *Vault) LoadPrivateKey(ctx context.Context, userID string) (*rsa.PrivateKey, error) {
	userID, err := canonicalID(userID)
	if err != nil {
		return nil, err
	}
	rec, err := v.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(rec.PrivateKey) == 0 {
		return nil, common.ErrorNotFound
	}
	return cryptox.ParsePrivateKey(rec.PrivateKey)
}

func (v *Vault) DeletePrivateKey(ctx context.Context, userID string) error {
	userID, err := canonicalID(userID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.update(ctx, userID, func(rec *record) error {
		if len(rec.PrivateKey) == 0 {
			return common.ErrorNotFound
		}
		common.WipeByteArray(rec.PrivateKey)
		rec.PrivateKey = nil
		return nil
	})
}

// CreateSigningSecret generates the user's refresh-token signing secret.
func (v *Vault) CreateSigningSecret(ctx context.Context, userID string) error {
	userID, err := canonicalID(userID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.update(ctx, userID, func(rec *record) error {
		if len(rec.SigningSecret) > 0 {
			return common.ErrorConflict
		}
		rec.SigningSecret = common.GenerateRandByteArray(SigningSecretSize)
		return nil
	})
}

func (v *Vault) LoadSigningSecret(ctx context.Context, userID string) ([]byte, error) {
	userID, err := canonicalID(userID)
	if err != nil {
		return nil, err
	}
	rec, err := v.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(rec.SigningSecret) == 0 {
		return nil, common.ErrorNotFound
	}
	return rec.SigningSecret, nil
}

// Provision creates both the keypair and the signing secret for a new user.
// On failure nothing is left behind in the store.
func (v *Vault) Provision(ctx context.Context, userID string) ([]byte, error) {
	pub, err := v.CreateKeypair(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := v.CreateSigningSecret(ctx, userID); err != nil {
		if delErr := v.DeleteKeys(ctx, userID); delErr != nil {
			v.logger.Error(ctx, "failed to roll back key provisioning", "user_id", userID, "error", delErr)
		}
		return nil, err
	}
	return pub, nil
}

// DeleteKeys removes the user's whole key record.
func (v *Vault) DeleteKeys(ctx context.Context, userID string) error {
	userID, err := canonicalID(userID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.store.Delete(ctx, userID)
}

// DeleteManyKeys removes the key records of all given users. Users without a
// record are skipped; other failures are collected and returned together.
func (v *Vault) DeleteManyKeys(ctx context.Context, userIDs []string) error {
	var errs []error
	for _, id := range userIDs {
		err := v.DeleteKeys(ctx, id)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			errs = append(errs, fmt.Errorf("user %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
