package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/otps"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/principals"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/resettokens"
)

// RepositoryManager vends repositories bound to a DBTX, so a service can
// use the pool or an open transaction interchangeably.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	OTPs(db dbx.DBTX) otps.Repository
	ResetTokens(db dbx.DBTX) resettokens.Repository
	Principals(db dbx.DBTX, kind models.PrincipalKind) principals.Repository
}
