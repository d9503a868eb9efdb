package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/voyagekit/tariff/internal/rule/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rule *domain.ServiceRule) error {
	if rule == nil {
		return nil
	}
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID) (*domain.ServiceRule, error) {
	var rule domain.ServiceRule
	err := db.WithContext(ctx).
		Where("agency_id = ? AND id = ?", agencyID, id).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, agencyID snowflake.ID, includeRetired bool) ([]domain.ServiceRule, error) {
	stmt := db.WithContext(ctx).Model(&domain.ServiceRule{}).
		Where("agency_id = ?", agencyID)
	if !includeRetired {
		stmt = stmt.Where("retired_at IS NULL")
	}

	var rules []domain.ServiceRule
	if err := stmt.Order("rule_name asc, version desc").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) Retire(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID, retiredAt time.Time) error {
	return db.WithContext(ctx).Model(&domain.ServiceRule{}).
		Where("agency_id = ? AND id = ? AND retired_at IS NULL", agencyID, id).
		Updates(map[string]any{
			"active":     false,
			"retired_at": retiredAt.UTC(),
			"updated_at": retiredAt.UTC(),
		}).Error
}
