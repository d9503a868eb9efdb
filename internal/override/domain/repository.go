package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Decision is the approver's verdict applied to a proposed request.
type Decision struct {
	Status    OverrideStatus
	DecidedBy string
	DecidedAt time.Time
	Note      string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, req *OverrideRequest) error
	FindByID(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID) (*OverrideRequest, error)
	ListByStatus(ctx context.Context, db *gorm.DB, agencyID snowflake.ID, status *OverrideStatus) ([]OverrideRequest, error)

	// FindPendingByApplication returns the proposed request for a rule
	// application, if one exists. At most one may be pending at a time.
	FindPendingByApplication(ctx context.Context, db *gorm.DB, agencyID, applicationID snowflake.ID) (*OverrideRequest, error)

	// Decide transitions a proposed request in one guarded update so
	// concurrent approvers cannot double-decide. Returns rows affected.
	Decide(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID, decision Decision) (int64, error)

	// MarkApplied moves an approved request to its terminal state after
	// the ledger row has been updated.
	MarkApplied(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID, at time.Time) error

	// MarkSuperseded moves an approved request back to rejected when its
	// ledger row was already taken by a competing override, so no request
	// is left stranded in approved.
	MarkSuperseded(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID, at time.Time, note string) error
}
