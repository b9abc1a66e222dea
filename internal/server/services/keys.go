package services

import (
	"context"
	"crypto"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/dbx"
	"github.com/dmitrijs2005/offpay/internal/logging"
	"github.com/dmitrijs2005/offpay/internal/server/config"
	"github.com/dmitrijs2005/offpay/internal/server/models"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/repomanager"
)

// IssuedKey is the result of Issue. PrivateKey is handed to the caller once
// and is never persisted in clear.
type IssuedKey struct {
	KeyPair    *models.KeyPair
	PrivateKey crypto.Signer
}

// KeyService issues, registers and looks up per-owner signing keys.
// Replacing a key revokes the previous one in the same transaction, so an
// owner never has two active keys.
type KeyService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	storePrivate  bool
	sealingSecret []byte
	validity      time.Duration
	now           clock
	logger        logging.Logger
}

func NewKeyService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, l logging.Logger) *KeyService {
	return &KeyService{
		db:            db,
		repomanager:   m,
		storePrivate:  cfg.StorePrivateKeys,
		sealingSecret: []byte(cfg.KeySealingSecret),
		validity:      models.DefaultKeyValidity,
		now:           systemClock,
		logger:        moduleLogger(l, "keys"),
	}
}

// Issue generates a fresh key pair for ownerID. In demo mode the private
// half is sealed and stored so the server can sign NFC payloads itself.
func (s *KeyService) Issue(ctx context.Context, ownerID string, alg cryptox.Algorithm) (*IssuedKey, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedAlgorithm, alg)
	}
	if err := s.ensureOwner(ctx, ownerID); err != nil {
		return nil, err
	}

	priv, err := cryptox.GenerateKey(alg)
	if err != nil {
		return nil, err
	}
	pub, err := cryptox.MarshalPublicKey(priv.Public())
	if err != nil {
		return nil, err
	}

	var sealed []byte
	if s.storePrivate {
		der, err := cryptox.MarshalPrivateKey(priv)
		if err != nil {
			return nil, err
		}
		sealed, err = cryptox.Seal(der, s.sealingSecret)
		common.WipeByteArray(der)
		if err != nil {
			return nil, err
		}
	}

	kp, err := s.activate(ctx, ownerID, alg, pub, sealed)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "key issued", "owner", ownerID, "algorithm", alg, "fingerprint", cryptox.Fingerprint(pub))
	return &IssuedKey{KeyPair: kp, PrivateKey: priv}, nil
}

// Register activates a device-generated public key (PKIX DER).
func (s *KeyService) Register(ctx context.Context, ownerID string, alg cryptox.Algorithm, publicKey []byte) (*models.KeyPair, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedAlgorithm, alg)
	}
	if _, err := cryptox.ParsePublicKey(publicKey, alg); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if err := s.ensureOwner(ctx, ownerID); err != nil {
		return nil, err
	}

	kp, err := s.activate(ctx, ownerID, alg, publicKey, nil)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "key registered", "owner", ownerID, "algorithm", alg, "fingerprint", cryptox.Fingerprint(publicKey))
	return kp, nil
}

func (s *KeyService) activate(ctx context.Context, ownerID string, alg cryptox.Algorithm, pub, sealed []byte) (*models.KeyPair, error) {
	now := s.now()
	kp := &models.KeyPair{
		OwnerID:          ownerID,
		Algorithm:        alg,
		KeySize:          alg.KeySize(),
		PublicKey:        pub,
		SealedPrivateKey: sealed,
		ExpiresAt:        now.Add(s.validity),
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.KeyPairs(tx)
		revoked, err := repo.RevokeActive(ctx, ownerID, now)
		if err != nil {
			return err
		}
		if revoked > 0 {
			s.logger.Info(ctx, "previous key revoked", "owner", ownerID)
		}
		kp, err = repo.Create(ctx, kp)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error activating key: %w", err)
	}
	return kp, nil
}

func (s *KeyService) ensureOwner(ctx context.Context, ownerID string) error {
	if err := checkID("owner", ownerID); err != nil {
		return err
	}
	if _, err := s.repomanager.Users(s.db).GetByID(ctx, ownerID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("%w: unknown owner %q", common.ErrValidation, ownerID)
		}
		return err
	}
	return nil
}

// ActiveKey returns the owner's usable key or common.ErrKeyNotFound.
func (s *KeyService) ActiveKey(ctx context.Context, ownerID string) (*models.KeyPair, error) {
	if err := checkID("owner", ownerID); err != nil {
		return nil, err
	}
	kp, err := s.repomanager.KeyPairs(s.db).GetActive(ctx, ownerID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: owner %q", common.ErrKeyNotFound, ownerID)
		}
		return nil, err
	}
	if !kp.Usable(s.now()) {
		return nil, fmt.Errorf("%w: owner %q key expired", common.ErrKeyNotFound, ownerID)
	}
	return kp, nil
}

// ActivePublicKey returns the parsed public key and its algorithm tag.
func (s *KeyService) ActivePublicKey(ctx context.Context, ownerID string) (crypto.PublicKey, cryptox.Algorithm, error) {
	kp, err := s.ActiveKey(ctx, ownerID)
	if err != nil {
		return nil, "", err
	}
	pub, err := cryptox.ParsePublicKey(kp.PublicKey, kp.Algorithm)
	if err != nil {
		return nil, "", err
	}
	return pub, kp.Algorithm, nil
}

// SigningKey opens the owner's sealed private key. It returns
// common.ErrKeyNotFound when the server does not hold one, which is the
// normal case outside demo mode.
func (s *KeyService) SigningKey(ctx context.Context, ownerID string) (crypto.Signer, cryptox.Algorithm, error) {
	kp, err := s.ActiveKey(ctx, ownerID)
	if err != nil {
		return nil, "", err
	}
	if len(kp.SealedPrivateKey) == 0 {
		return nil, "", fmt.Errorf("%w: no private key held for %q", common.ErrKeyNotFound, ownerID)
	}
	der, err := cryptox.Open(kp.SealedPrivateKey, s.sealingSecret)
	if err != nil {
		return nil, "", err
	}
	defer common.WipeByteArray(der)

	signer, err := cryptox.ParsePrivateKey(der)
	if err != nil {
		return nil, "", err
	}
	return signer, kp.Algorithm, nil
}

// ExpireStale revokes keys whose expiry has passed.
func (s *KeyService) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.repomanager.KeyPairs(s.db).DeactivateExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info(ctx, "expired keys revoked", "count", n)
	}
	return n, nil
}
