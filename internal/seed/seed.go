// Package seed bootstraps the default agency so a fresh install is usable
// without any manual setup.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	agencydomain "github.com/voyagekit/tariff/internal/agency/domain"
	"gorm.io/gorm"
)

const (
	defaultAgencyName = "Main"
	defaultAgencyCode = "main"
)

// EnsureDefaultAgency seeds the default agency on startup. IDs come from
// the caller's node so seeded rows share the process ID space.
func EnsureDefaultAgency(db *gorm.DB, node *snowflake.Node) error {
	if node == nil {
		return errors.New("seed snowflake node is required")
	}
	return ensureAgency(db, node, 0)
}

// EnsureDefaultAgencyWithID seeds the default agency under a fixed id,
// used when several services must agree on the tenant id up front.
func EnsureDefaultAgencyWithID(db *gorm.DB, id int64) error {
	if id == 0 {
		return errors.New("seed agency id is required")
	}
	return ensureAgency(db, nil, id)
}

func ensureAgency(db *gorm.DB, node *snowflake.Node, fixedID int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing agencydomain.Agency
		err := tx.WithContext(ctx).
			Where("code = ?", defaultAgencyCode).
			First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		id := snowflake.ID(fixedID)
		if fixedID == 0 {
			id = node.Generate()
		}

		now := time.Now().UTC()
		agency := agencydomain.Agency{
			ID:        id,
			Name:      defaultAgencyName,
			Code:      defaultAgencyCode,
			IsDefault: true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&agency).Error
	})
}
