package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *ServiceRule) error
	FindByID(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID) (*ServiceRule, error)
	// List returns rule versions for an agency in one query so a caller
	// observes a consistent snapshot of the rule set. With includeRetired
	// false only current versions are returned.
	List(ctx context.Context, db *gorm.DB, agencyID snowflake.ID, includeRetired bool) ([]ServiceRule, error)
	Retire(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID, retiredAt time.Time) error
}
