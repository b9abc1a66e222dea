package wallet

import (
	"crypto"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/filex"
)

var ErrKeyFileMissing = errors.New("key file not found")

// SaveKey seals key with passphrase and writes it to path as PEM. The file
// is replaced atomically and readable by the owner only.
func SaveKey(path string, key crypto.Signer, alg cryptox.Algorithm, passphrase []byte) error {
	der, err := cryptox.MarshalPrivateKey(key)
	if err != nil {
		return err
	}
	sealed, err := cryptox.Seal(der, passphrase)
	if err != nil {
		return fmt.Errorf("seal private key: %w", err)
	}
	return filex.WriteFileAtomic(path, cryptox.EncodeSealedPEM(sealed, alg), 0o600)
}

// LoadKey reads a key written by SaveKey. A wrong passphrase fails in Open.
func LoadKey(path string, passphrase []byte) (crypto.Signer, cryptox.Algorithm, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: %s", ErrKeyFileMissing, path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("read key file: %w", err)
	}

	sealed, alg, err := cryptox.DecodeSealedPEM(data)
	if err != nil {
		return nil, "", err
	}
	der, err := cryptox.Open(sealed, passphrase)
	if err != nil {
		return nil, "", fmt.Errorf("unseal private key: %w", err)
	}
	key, err := cryptox.ParsePrivateKey(der)
	if err != nil {
		return nil, "", err
	}
	return key, alg, nil
}

// PublicKeyDER returns the PKIX encoding of key's public half.
func PublicKeyDER(key crypto.Signer) ([]byte, error) {
	return cryptox.MarshalPublicKey(key.Public())
}
