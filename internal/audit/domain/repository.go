package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// OverrideUpdate carries the one mutation a ledger row ever accepts.
type OverrideUpdate struct {
	FinalAmount float64
	Reason      string
	By          string
	At          time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, app *RuleApplication) error
	FindByID(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID) (*RuleApplication, error)

	// List returns up to filter.Limit+1 rows, newest first, so the caller
	// can detect a next page without a second query.
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*RuleApplication, error)

	// ApplyOverride flips override fields on a row that has not been
	// overridden yet. Returns the number of rows changed so the service
	// can distinguish "already overridden" from success.
	ApplyOverride(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID, upd OverrideUpdate) (int64, error)
}
