package services

import (
	"context"
	"crypto"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/offpay/internal/api"
	"github.com/dmitrijs2005/offpay/internal/client/client"
	"github.com/dmitrijs2005/offpay/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/offpay/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/offpay/internal/client/wallet"
	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/dbx"
	"github.com/dmitrijs2005/offpay/internal/logging"
)

var ErrUnsyncedPayments = errors.New("outbox holds unsynced payments signed with the current key")

type KeyService interface {
	Generate(ctx context.Context, alg cryptox.Algorithm, keyFile string, passphrase []byte, force bool) (*api.Key, error)
	Load(keyFile string, passphrase []byte) (crypto.Signer, cryptox.Algorithm, error)
}

type keyService struct {
	client client.Client
	db     *sql.DB
	logger logging.Logger

	generate func(cryptox.Algorithm) (crypto.Signer, error)
}

func NewKeyService(c client.Client, db *sql.DB, logger logging.Logger) KeyService {
	return &keyService{client: c, db: db, logger: logger, generate: cryptox.GenerateKey}
}

// Generate creates a key pair on the device, registers the public half and
// writes the sealed private half to keyFile. Rotation is refused while the
// outbox still holds payments the server has not accepted, unless force is
// set, because those would no longer verify.
func (k *keyService) Generate(ctx context.Context, alg cryptox.Algorithm, keyFile string, passphrase []byte, force bool) (*api.Key, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedAlgorithm, alg)
	}
	if len(passphrase) == 0 {
		return nil, errors.New("passphrase must not be empty")
	}

	if !force {
		open, err := outbox.NewSQLiteRepository(k.db).Pending(ctx, 1)
		if err != nil {
			return nil, err
		}
		if len(open) > 0 {
			return nil, ErrUnsyncedPayments
		}
	}

	signer, err := k.generate(alg)
	if err != nil {
		return nil, err
	}
	pub, err := wallet.PublicKeyDER(signer)
	if err != nil {
		return nil, err
	}

	key, err := k.client.RegisterKey(ctx, string(alg), pub)
	if err != nil {
		return nil, fmt.Errorf("register key: %w", err)
	}

	if err := wallet.SaveKey(keyFile, signer, alg, passphrase); err != nil {
		return nil, fmt.Errorf("save key: %w", err)
	}

	err = dbx.WithTx(ctx, k.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.SetStrings(ctx, metadata.NewSQLiteRepository(tx), map[string]string{
			metadata.KeyKeyID:     key.ID,
			metadata.KeyAlgorithm: string(alg),
			metadata.KeyPublicKey: cryptox.EncodeKey(pub),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("record key: %w", err)
	}

	k.logger.Info(ctx, "signing key registered", "key_id", key.ID, "algorithm", alg, "fingerprint", cryptox.Fingerprint(pub))
	return key, nil
}

func (k *keyService) Load(keyFile string, passphrase []byte) (crypto.Signer, cryptox.Algorithm, error) {
	return wallet.LoadKey(keyFile, passphrase)
}
