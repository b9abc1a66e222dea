// Package services contains server-side business logic of the offline
// payment protocol: key management, nonce tracking, the QR and NFC channels,
// batch reconciliation and conflict resolution.
//
// Services are built over a *sql.DB and a repomanager.RepositoryManager;
// multi-step writes run inside dbx.WithTx.
package services

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/logging"
	"github.com/google/uuid"
)

// clock is overridden in tests.
type clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func moduleLogger(l logging.Logger, module string) logging.Logger {
	if l == nil {
		l = logging.Nop{}
	}
	return l.With("module", module)
}

// checkID rejects identifiers that cannot be account ids before they reach
// the database.
func checkID(role, id string) error {
	if err := uuid.Validate(id); err != nil {
		return fmt.Errorf("%w: malformed %s id %q", common.ErrValidation, role, id)
	}
	return nil
}
