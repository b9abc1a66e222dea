package cryptox

import (
	"crypto"
	"errors"
	"testing"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("rsa")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmRSA, alg)
	assert.Equal(t, 2048, alg.KeySize())

	alg, err = ParseAlgorithm(" ECDSA ")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmECDSA, alg)
	assert.Equal(t, 256, alg.KeySize())

	_, err = ParseAlgorithm("ED25519")
	assert.True(t, errors.Is(err, common.ErrUnsupportedAlgorithm))
}

func TestGenerateKey_UnsupportedAndFault(t *testing.T) {
	_, err := GenerateKey(Algorithm("DSA"))
	assert.True(t, errors.Is(err, common.ErrUnsupportedAlgorithm))

	orig := generateECDSA
	generateECDSA = func() (crypto.Signer, error) { return nil, errors.New("no entropy") }
	defer func() { generateECDSA = orig }()

	_, err = GenerateKey(AlgorithmECDSA)
	assert.True(t, errors.Is(err, common.ErrCryptoFault))
}

func TestKeyEncoding_RoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmRSA, AlgorithmECDSA} {
		t.Run(string(alg), func(t *testing.T) {
			key := mustKey(t, alg)

			pubDER, err := MarshalPublicKey(key.Public())
			require.NoError(t, err)

			decoded, err := DecodeKey(EncodeKey(pubDER))
			require.NoError(t, err)
			assert.Equal(t, pubDER, decoded)

			pub, err := ParsePublicKey(pubDER, alg)
			require.NoError(t, err)
			assert.NotNil(t, pub)

			privDER, err := MarshalPrivateKey(key)
			require.NoError(t, err)
			back, err := ParsePrivateKey(privDER)
			require.NoError(t, err)

			sig, err := Sign([]byte("m"), back, alg)
			require.NoError(t, err)
			ok, err := Verify([]byte("m"), sig, pub, alg)
			require.NoError(t, err)
			assert.True(t, ok)

			assert.Len(t, Fingerprint(pubDER), 16)
		})
	}
}

func TestParsePublicKey_TagMismatch(t *testing.T) {
	key := mustKey(t, AlgorithmECDSA)
	der, err := MarshalPublicKey(key.Public())
	require.NoError(t, err)

	_, err = ParsePublicKey(der, AlgorithmRSA)
	assert.True(t, errors.Is(err, common.ErrCryptoFault))

	_, err = ParsePublicKey([]byte{1, 2, 3}, AlgorithmECDSA)
	assert.True(t, errors.Is(err, common.ErrCryptoFault))
}

func TestSealedPEM_RoundTrip(t *testing.T) {
	block := EncodeSealedPEM([]byte("sealed"), AlgorithmECDSA)

	data, alg, err := DecodeSealedPEM(block)
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed"), data)
	assert.Equal(t, AlgorithmECDSA, alg)

	_, _, err = DecodeSealedPEM([]byte("not pem"))
	assert.True(t, errors.Is(err, common.ErrCryptoFault))
}
