package protocol

import (
	"strings"
	"testing"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload(note string) *NFCPayload {
	return &NFCPayload{
		Version:     NFCVersion,
		Type:        NFCType,
		Sender:      NFCParty{PhoneNumber: "+2348000000001", PublicKey: "cGs=", DeviceID: "dev"},
		Recipient:   NFCParty{PhoneNumber: "+2348000000002", PublicKey: "cGs="},
		Transaction: NFCTransaction{Amount: "500.00", Currency: "NGN", Timestamp: "2026-01-02T03:04:05.678Z", Nonce: "n", Note: note},
		Security:    NFCSecurity{Hash: "h", PreviousHash: "p", Signature: "UNSIGNED", Algorithm: "ECDSA"},
	}
}

func TestNFCPayload_SizeCeiling(t *testing.T) {
	base, err := samplePayload("").Marshal()
	require.NoError(t, err)

	// "note":"" adds 10 bytes of framing plus the note itself.
	overhead := len(`,"note":""`)

	ok, err := samplePayload(strings.Repeat("a", MaxNFCPayloadSize-len(base)-overhead)).Marshal()
	require.NoError(t, err)
	assert.Len(t, ok, MaxNFCPayloadSize)

	_, err = samplePayload(strings.Repeat("a", MaxNFCPayloadSize-len(base)-overhead+1)).Marshal()
	assert.ErrorIs(t, err, common.ErrPayloadTooLarge)
}

func TestParseNFC(t *testing.T) {
	raw, err := samplePayload("coffee").Marshal()
	require.NoError(t, err)

	p, err := ParseNFC(raw)
	require.NoError(t, err)
	assert.Equal(t, "coffee", p.Transaction.Note)
	assert.Empty(t, p.MissingFields())

	_, err = ParseNFC([]byte("{"))
	assert.ErrorIs(t, err, common.ErrInvalidPayload)

	p, err = ParseNFC([]byte(`{"version":"1.0"}`))
	require.NoError(t, err)
	assert.Contains(t, p.MissingFields(), "security.hash")
	assert.Len(t, p.MissingFields(), 12)
}

func TestQRPayload(t *testing.T) {
	q := &QRPayload{
		RecipientID: "r", RecipientPhoneNumber: "+234", RecipientName: "Ada",
		Amount: "1000.00", Timestamp: "t", ExpiresAt: "e", Nonce: "n",
		PaymentRequestID: "pr", Signature: common.UnsignedPlaceholder,
	}
	assert.False(t, q.Signed())
	assert.Equal(t, "pr|r|+234|Ada|1000.00||t|e|n", string(q.UnsignedBytes()))

	raw, err := q.Marshal()
	require.NoError(t, err)
	back, err := ParseQR(raw)
	require.NoError(t, err)
	assert.Equal(t, q, back)

	back.Signature = "c2ln"
	assert.True(t, back.Signed())
	assert.Equal(t, q.UnsignedBytes(), back.UnsignedBytes(), "signature is not part of the signed form")

	_, err = ParseQR([]byte(`{"recipientId":"r"}`))
	assert.ErrorIs(t, err, common.ErrInvalidPayload)
	_, err = ParseQR([]byte(`nope`))
	assert.ErrorIs(t, err, common.ErrInvalidPayload)
}
