package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/voyagekit/tariff/internal/override/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, req *domain.OverrideRequest) error {
	return db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID) (*domain.OverrideRequest, error) {
	var req domain.OverrideRequest
	err := db.WithContext(ctx).
		Where("agency_id = ? AND id = ?", agencyID, id).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *repository) ListByStatus(ctx context.Context, db *gorm.DB, agencyID snowflake.ID, status *domain.OverrideStatus) ([]domain.OverrideRequest, error) {
	query := db.WithContext(ctx).
		Model(&domain.OverrideRequest{}).
		Where("agency_id = ?", agencyID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var reqs []domain.OverrideRequest
	if err := query.Order("created_at desc, id desc").Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *repository) FindPendingByApplication(ctx context.Context, db *gorm.DB, agencyID, applicationID snowflake.ID) (*domain.OverrideRequest, error) {
	var req domain.OverrideRequest
	err := db.WithContext(ctx).
		Where("agency_id = ? AND rule_application_id = ? AND status = ?",
			agencyID, applicationID, domain.StatusProposed).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *repository) Decide(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID, decision domain.Decision) (int64, error) {
	updates := map[string]interface{}{
		"status":     decision.Status,
		"decided_by": decision.DecidedBy,
		"decided_at": decision.DecidedAt,
		"updated_at": decision.DecidedAt,
	}
	if decision.Note != "" {
		updates["decision_note"] = decision.Note
	}

	res := db.WithContext(ctx).
		Model(&domain.OverrideRequest{}).
		Where("agency_id = ? AND id = ? AND status = ?", agencyID, id, domain.StatusProposed).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) MarkApplied(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.OverrideRequest{}).
		Where("agency_id = ? AND id = ? AND status = ?", agencyID, id, domain.StatusApproved).
		Updates(map[string]interface{}{
			"status":     domain.StatusApplied,
			"updated_at": at,
		}).Error
}

func (r *repository) MarkSuperseded(ctx context.Context, db *gorm.DB, agencyID, id snowflake.ID, at time.Time, note string) error {
	return db.WithContext(ctx).
		Model(&domain.OverrideRequest{}).
		Where("agency_id = ? AND id = ? AND status = ?", agencyID, id, domain.StatusApproved).
		Updates(map[string]interface{}{
			"status":        domain.StatusRejected,
			"decision_note": note,
			"updated_at":    at,
		}).Error
}
