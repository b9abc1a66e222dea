package cryptox

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/offpay/internal/common"
)

// Sign produces SHA256withRSA (PKCS#1 v1.5) or SHA256withECDSA (ASN.1)
// signatures depending on alg.
func Sign(payload []byte, key crypto.Signer, alg Algorithm) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil signing key", common.ErrCryptoFault)
	}
	digest := sha256.Sum256(payload)

	switch alg {
	case AlgorithmRSA:
		k, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: key is not RSA", common.ErrCryptoFault)
		}
		sig, err := rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, digest[:])
		if err != nil {
			return nil, fmt.Errorf("%w: rsa sign: %v", common.ErrCryptoFault, err)
		}
		return sig, nil
	case AlgorithmECDSA:
		k, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: key is not ECDSA", common.ErrCryptoFault)
		}
		sig, err := ecdsa.SignASN1(rand.Reader, k, digest[:])
		if err != nil {
			return nil, fmt.Errorf("%w: ecdsa sign: %v", common.ErrCryptoFault, err)
		}
		return sig, nil
	}
	return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedAlgorithm, alg)
}

// Verify checks sig over payload with pub using only the declared algorithm.
// A key of the wrong type or a malformed signature yields false.
func Verify(payload, sig []byte, pub crypto.PublicKey, alg Algorithm) (bool, error) {
	if pub == nil {
		return false, fmt.Errorf("%w: nil public key", common.ErrCryptoFault)
	}
	digest := sha256.Sum256(payload)

	switch alg {
	case AlgorithmRSA:
		k, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false, nil
		}
		return rsa.VerifyPKCS1v15(k, crypto.SHA256, digest[:], sig) == nil, nil
	case AlgorithmECDSA:
		k, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return false, nil
		}
		return ecdsa.VerifyASN1(k, digest[:], sig), nil
	}
	return false, fmt.Errorf("%w: %q", common.ErrUnsupportedAlgorithm, alg)
}

// VerifyDER is Verify for a PKIX DER encoded key. Unparseable key material
// counts as a failed verification.
func VerifyDER(payload, sig, pubDER []byte, alg Algorithm) (bool, error) {
	if !alg.Valid() {
		return false, fmt.Errorf("%w: %q", common.ErrUnsupportedAlgorithm, alg)
	}
	pub, err := ParsePublicKey(pubDER, alg)
	if err != nil {
		return false, nil
	}
	return Verify(payload, sig, pub, alg)
}

// EncodeSignature renders signature bytes for JSON payloads.
func EncodeSignature(sig []byte) string {
	return base64.StdEncoding.EncodeToString(sig)
}

// DecodeSignature reverses EncodeSignature.
func DecodeSignature(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
