package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/offpay/internal/common"
	"golang.org/x/crypto/argon2"
)

const sealSaltSize = 16

var errSealedTooShort = errors.New("sealed data too short")

// DeriveKey stretches a secret into a 32-byte AES key with Argon2id.
func DeriveKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// Seal encrypts plaintext under a key derived from secret. The output is
// salt || nonce || ciphertext and is self-contained for Open.
func Seal(plaintext, secret []byte) ([]byte, error) {
	salt := common.GenerateRandByteArray(sealSaltSize)
	key := DeriveKey(secret, salt)
	defer common.WipeByteArray(key)

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())

	out := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+aesgcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aesgcm.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func Open(sealed, secret []byte) ([]byte, error) {
	if len(sealed) < sealSaltSize {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoFault, errSealedTooShort)
	}
	salt := sealed[:sealSaltSize]
	key := DeriveKey(secret, salt)
	defer common.WipeByteArray(key)

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	rest := sealed[sealSaltSize:]
	if len(rest) < aesgcm.NonceSize() {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoFault, errSealedTooShort)
	}
	nonce, ciphertext := rest[:aesgcm.NonceSize()], rest[aesgcm.NonceSize():]

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open sealed data: %v", common.ErrCryptoFault, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoFault, err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoFault, err)
	}
	return aesgcm, nil
}
