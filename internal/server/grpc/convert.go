package grpc

import (
	"fmt"

	"github.com/dmitrijs2005/offpay/internal/api"
	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/dmitrijs2005/offpay/internal/server/models"
	"github.com/dmitrijs2005/offpay/internal/server/services"
)

func keyToAPI(k *models.KeyPair) api.Key {
	return api.Key{
		ID:          k.ID,
		Algorithm:   string(k.Algorithm),
		KeySize:     k.KeySize,
		PublicKey:   k.PublicKey,
		Fingerprint: cryptox.Fingerprint(k.PublicKey),
		ExpiresAt:   k.ExpiresAt,
	}
}

func paymentRequestToAPI(r *models.PaymentRequest) api.PaymentRequest {
	return api.PaymentRequest{
		RequestID: r.ID,
		Amount:    r.Amount,
		Note:      r.Note,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

func transactionToAPI(t *models.OfflineTransaction) *api.Transaction {
	return &api.Transaction{
		Hash:         t.Hash,
		PreviousHash: t.PreviousHash,
		SenderID:     t.SenderID,
		RecipientID:  t.RecipientID,
		Amount:       t.Amount,
		Currency:     t.Currency,
		Nonce:        t.Nonce,
		Algorithm:    string(t.Algorithm),
		Signature:    t.Signature,
		Timestamp:    t.ClientTimestamp,
		Channel:      string(t.Channel),
		Status:       string(t.Status),
		RawPayload:   t.RawPayload,
	}
}

// transactionFromAPI accepts an empty algorithm tag for placeholder
// signatures; anything else must name a supported algorithm.
func transactionFromAPI(t *api.Transaction) (*models.OfflineTransaction, error) {
	var alg cryptox.Algorithm
	if t.Algorithm != "" {
		a, err := cryptox.ParseAlgorithm(t.Algorithm)
		if err != nil {
			return nil, err
		}
		alg = a
	}

	channel := models.Channel(t.Channel)
	switch channel {
	case models.ChannelQR, models.ChannelNFC, models.ChannelBatch:
	case "":
		channel = models.ChannelBatch
	default:
		return nil, fmt.Errorf("%w: unknown channel %q", common.ErrValidation, t.Channel)
	}

	return &models.OfflineTransaction{
		Hash:            t.Hash,
		PreviousHash:    t.PreviousHash,
		SenderID:        t.SenderID,
		RecipientID:     t.RecipientID,
		Amount:          t.Amount,
		Currency:        t.Currency,
		Nonce:           t.Nonce,
		Algorithm:       alg,
		Signature:       t.Signature,
		ClientTimestamp: t.Timestamp,
		Channel:         channel,
		Status:          models.StatusPending,
		RawPayload:      t.RawPayload,
	}, nil
}

func conflictToAPI(c *models.SyncConflict) api.Conflict {
	return api.Conflict{
		ID:              c.ID,
		TransactionHash: c.TransactionHash,
		Type:            string(c.Type),
		ExpectedValue:   c.ExpectedValue,
		ActualValue:     c.ActualValue,
		Priority:        string(c.Priority),
		Status:          string(c.Status),
		DetectedAt:      c.DetectedAt,
		ResolvedAt:      c.ResolvedAt,
		Notes:           c.Notes,
	}
}

func conflictsToAPI(cs []*models.SyncConflict) []api.Conflict {
	out := make([]api.Conflict, 0, len(cs))
	for _, c := range cs {
		out = append(out, conflictToAPI(c))
	}
	return out
}

func checksToAPI(v *services.NFCValidation) api.PayloadChecks {
	return api.PayloadChecks{
		Size:      v.SizeValid,
		Structure: v.StructureValid,
		Version:   v.VersionValid,
		Type:      v.TypeValid,
		Fields:    v.FieldsValid,
		Timestamp: v.TimestampValid,
		Nonce:     v.NonceValid,
		Hash:      v.HashValid,
		Signature: v.SignatureValid,
		Amount:    v.AmountValid,
		Currency:  v.CurrencyValid,
	}
}

func reportToAPI(r *services.ReconcileReport) *api.ReconcileBatchResponse {
	resp := &api.ReconcileBatchResponse{
		BatchID:          r.BatchID,
		Verdicts:         make([]api.Verdict, 0, len(r.Verdicts)),
		ChainValid:       r.Chain.Valid,
		ChainErrors:      r.Chain.ErrorCount,
		DoubleSpend:      r.DoubleSpend.Detected,
		FlaggedHashes:    r.DoubleSpend.FlaggedHashes,
		LastKnownBalance: r.DoubleSpend.LastKnownBalance,
		ProjectedBalance: r.DoubleSpend.ProjectedBalance,
		SafeToSync:       r.SafeToSync,
		Applied:          r.Applied,
		Conflicts:        conflictsToAPI(r.Conflicts),
	}
	for _, v := range r.Verdicts {
		kinds := make([]string, 0, len(v.Conflicts))
		for _, c := range v.Conflicts {
			kinds = append(kinds, string(c))
		}
		resp.Verdicts = append(resp.Verdicts, api.Verdict{
			Hash:      v.Hash,
			Position:  v.Position,
			Valid:     v.Valid,
			Safe:      v.Safe,
			Applied:   v.Applied,
			Status:    string(v.Status),
			Conflicts: kinds,
			Reason:    v.Reason,
		})
	}
	return resp
}
