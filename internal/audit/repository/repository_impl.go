package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/voyagekit/tariff/internal/audit/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, app *domain.RuleApplication) error {
	return db.WithContext(ctx).Create(app).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID) (*domain.RuleApplication, error) {
	var app domain.RuleApplication
	err := db.WithContext(ctx).
		Where("agency_id = ? AND id = ?", agencyID, id).
		First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &app, nil
}

func (r *repository) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.RuleApplication, error) {
	query := db.WithContext(ctx).
		Model(&domain.RuleApplication{}).
		Where("agency_id = ?", filter.AgencyID)

	if filter.RuleID != nil {
		query = query.Where("rule_id = ?", *filter.RuleID)
	}
	if filter.RuleType != nil {
		query = query.Where("rule_type = ?", *filter.RuleType)
	}
	if filter.AppliedToType != "" {
		query = query.Where("applied_to_type = ?", filter.AppliedToType)
	}
	if filter.AppliedToID != "" {
		query = query.Where("applied_to_id = ?", filter.AppliedToID)
	}
	if filter.OverrideApplied != nil {
		query = query.Where("override_applied = ?", *filter.OverrideApplied)
	}
	if filter.StartAt != nil {
		query = query.Where("application_date >= ?", *filter.StartAt)
	}
	if filter.EndAt != nil {
		query = query.Where("application_date < ?", *filter.EndAt)
	}
	if filter.Cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID,
		)
	}

	var apps []*domain.RuleApplication
	err := query.
		Order("created_at desc, id desc").
		Limit(filter.Limit + 1).
		Find(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *repository) ApplyOverride(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID, upd domain.OverrideUpdate) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.RuleApplication{}).
		Where("agency_id = ? AND id = ? AND override_applied = ?", agencyID, id, false).
		Updates(map[string]interface{}{
			"final_amount":     upd.FinalAmount,
			"override_applied": true,
			"override_reason":  upd.Reason,
			"override_by":      upd.By,
			"updated_at":       upd.At,
		})
	return res.RowsAffected, res.Error
}
