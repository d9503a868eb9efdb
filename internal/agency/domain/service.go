package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidID     = errors.New("invalid_id")
	ErrDuplicateCode = errors.New("duplicate_agency_code")
	ErrNotFound      = errors.New("agency_not_found")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, agency *Agency) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Agency, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Agency, error)
	List(ctx context.Context, db *gorm.DB) ([]Agency, error)
}

type CreateRequest struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
	CountryCode  string `json:"country_code"`
	Currency     string `json:"currency"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Agency, error)
	Get(ctx context.Context, id string) (*Agency, error)
	List(ctx context.Context) ([]Agency, error)
}
