package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/offpay/internal/dbx"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/conflicts"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/keypairs"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/nonces"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/offpay/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	KeyPairs(db dbx.DBTX) keypairs.Repository
	Transactions(db dbx.DBTX) transactions.Repository
	Nonces(db dbx.DBTX) nonces.Repository
	Conflicts(db dbx.DBTX) conflicts.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
