// Package cryptox holds the cryptographic building blocks of the offline
// payment protocol: key generation and encoding, the canonical transaction
// hash, algorithm-tagged signatures, and at-rest sealing of private keys.
package cryptox

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/offpay/internal/common"
)

// Algorithm tags every key and signature. Verification dispatches on the
// tag, never on the concrete key type.
type Algorithm string

const (
	AlgorithmRSA   Algorithm = "RSA"
	AlgorithmECDSA Algorithm = "ECDSA"
)

const (
	RSAKeyBits   = 2048
	ECDSAKeyBits = 256
)

// ParseAlgorithm maps a tag to an Algorithm, case-insensitively.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToUpper(strings.TrimSpace(s))) {
	case AlgorithmRSA:
		return AlgorithmRSA, nil
	case AlgorithmECDSA:
		return AlgorithmECDSA, nil
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnsupportedAlgorithm, s)
}

// KeySize returns the key size in bits for the algorithm.
func (a Algorithm) KeySize() int {
	switch a {
	case AlgorithmRSA:
		return RSAKeyBits
	case AlgorithmECDSA:
		return ECDSAKeyBits
	}
	return 0
}

func (a Algorithm) Valid() bool {
	return a == AlgorithmRSA || a == AlgorithmECDSA
}
