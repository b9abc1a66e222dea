package cryptox

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/dmitrijs2005/offpay/internal/common"
)

// generateRSA and generateECDSA are seams so tests can avoid slow RSA keygen
// or simulate provider failures.
var (
	generateRSA = func() (crypto.Signer, error) {
		return rsa.GenerateKey(rand.Reader, RSAKeyBits)
	}
	generateECDSA = func() (crypto.Signer, error) {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
)

// GenerateKey creates a fresh key pair for alg (RSA-2048 or ECDSA P-256).
func GenerateKey(alg Algorithm) (crypto.Signer, error) {
	var (
		key crypto.Signer
		err error
	)
	switch alg {
	case AlgorithmRSA:
		key, err = generateRSA()
	case AlgorithmECDSA:
		key, err = generateECDSA()
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedAlgorithm, alg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: generate %s key: %v", common.ErrCryptoFault, alg, err)
	}
	return key, nil
}

// MarshalPublicKey encodes pub as PKIX DER.
func MarshalPublicKey(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal public key: %v", common.ErrCryptoFault, err)
	}
	return der, nil
}

// ParsePublicKey decodes PKIX DER and checks that the key matches alg.
func ParsePublicKey(der []byte, alg Algorithm) (crypto.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse public key: %v", common.ErrCryptoFault, err)
	}
	switch k := pub.(type) {
	case *rsa.PublicKey:
		if alg != AlgorithmRSA {
			return nil, fmt.Errorf("%w: RSA key tagged %s", common.ErrCryptoFault, alg)
		}
		return k, nil
	case *ecdsa.PublicKey:
		if alg != AlgorithmECDSA || k.Curve != elliptic.P256() {
			return nil, fmt.Errorf("%w: ECDSA key tagged %s", common.ErrCryptoFault, alg)
		}
		return k, nil
	}
	return nil, fmt.Errorf("%w: unsupported public key type %T", common.ErrCryptoFault, pub)
}

// MarshalPrivateKey encodes key as PKCS#8 DER.
func MarshalPrivateKey(key crypto.Signer) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal private key: %v", common.ErrCryptoFault, err)
	}
	return der, nil
}

// ParsePrivateKey decodes PKCS#8 DER into a signer.
func ParsePrivateKey(der []byte) (crypto.Signer, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", common.ErrCryptoFault, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: private key type %T cannot sign", common.ErrCryptoFault, key)
	}
	return signer, nil
}

// EncodeKey renders DER key material for JSON payloads.
func EncodeKey(der []byte) string {
	return base64.StdEncoding.EncodeToString(der)
}

// DecodeKey reverses EncodeKey.
func DecodeKey(s string) ([]byte, error) {
	der, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode key: %v", common.ErrCryptoFault, err)
	}
	return der, nil
}

// Fingerprint is a short stable identifier for a public key.
func Fingerprint(pubDER []byte) string {
	sum := sha256.Sum256(pubDER)
	return hex.EncodeToString(sum[:8])
}

const pemBlockType = "OFFPAY SEALED PRIVATE KEY"

// EncodeSealedPEM wraps sealed private key bytes in a PEM block for key files.
func EncodeSealedPEM(sealed []byte, alg Algorithm) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:    pemBlockType,
		Headers: map[string]string{"Algorithm": string(alg)},
		Bytes:   sealed,
	})
}

// DecodeSealedPEM reads a block produced by EncodeSealedPEM.
func DecodeSealedPEM(data []byte) ([]byte, Algorithm, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemBlockType {
		return nil, "", fmt.Errorf("%w: no sealed key block", common.ErrCryptoFault)
	}
	alg, err := ParseAlgorithm(block.Headers["Algorithm"])
	if err != nil {
		return nil, "", err
	}
	return block.Bytes, alg, nil
}
