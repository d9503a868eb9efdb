// Package domain contains persistence models for the agency tenant service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Agency is a tenant: every rule, evaluation and ledger row is scoped to
// exactly one agency.
type Agency struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name         string            `gorm:"type:text;not null" json:"name"`
	Code         string            `gorm:"type:text;not null;uniqueIndex:ux_agencies_code" json:"code"`
	ContactEmail string            `gorm:"type:text;column:contact_email" json:"contact_email"`
	CountryCode  string            `gorm:"column:country_code" json:"country_code"`
	Currency     string            `gorm:"type:text" json:"currency"`
	IsDefault    bool              `gorm:"column:is_default" json:"is_default"`
	Metadata     datatypes.JSONMap `gorm:"type:text" json:"metadata"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Agency) TableName() string { return "agencies" }
