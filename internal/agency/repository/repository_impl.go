package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/voyagekit/tariff/internal/agency/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, agency *domain.Agency) error {
	return db.WithContext(ctx).Create(agency).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Agency, error) {
	var agency domain.Agency
	err := db.WithContext(ctx).Where("id = ?", id).First(&agency).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &agency, nil
}

func (r *repository) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Agency, error) {
	var agency domain.Agency
	err := db.WithContext(ctx).Where("code = ?", code).First(&agency).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &agency, nil
}

func (r *repository) List(ctx context.Context, db *gorm.DB) ([]domain.Agency, error) {
	var agencies []domain.Agency
	if err := db.WithContext(ctx).Order("name asc").Find(&agencies).Error; err != nil {
		return nil, err
	}
	return agencies, nil
}
