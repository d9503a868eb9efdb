package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/voyagekit/tariff/internal/agency/domain"
	agencyrepo "github.com/voyagekit/tariff/internal/agency/repository"
	"github.com/voyagekit/tariff/internal/clock"
	"github.com/voyagekit/tariff/internal/seed"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newAgencyService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(&domain.Agency{})
	assert.NoError(t, err)

	node, err := snowflake.NewNode(5)
	assert.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)),
		Repo:  agencyrepo.Provide(),
	})
	return svc, db
}

func TestCreateAgencySlugsCode(t *testing.T) {
	svc, _ := newAgencyService(t)
	ctx := context.Background()

	agency, err := svc.Create(ctx, domain.CreateRequest{
		Name:         "Voyage Travel Ltd",
		ContactEmail: "ops@voyage.example",
		CountryCode:  "gb",
		Currency:     "gbp",
	})
	assert.NoError(t, err)
	assert.NotZero(t, agency.ID)
	assert.Equal(t, "voyage-travel-ltd", agency.Code)
	assert.Equal(t, "GB", agency.CountryCode)
	assert.Equal(t, "GBP", agency.Currency)

	stored, err := svc.Get(ctx, agency.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, agency.Code, stored.Code)
}

func TestCreateAgencyDuplicateCode(t *testing.T) {
	svc, _ := newAgencyService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateRequest{Name: "Voyage Travel"})
	assert.NoError(t, err)

	// Different casing slugs to the same code.
	_, err = svc.Create(ctx, domain.CreateRequest{Name: "voyage TRAVEL"})
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)
}

func TestCreateAgencyRequiresName(t *testing.T) {
	svc, _ := newAgencyService(t)

	_, err := svc.Create(context.Background(), domain.CreateRequest{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestGetAgencyErrors(t *testing.T) {
	svc, _ := newAgencyService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	node, err := snowflake.NewNode(6)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnsureDefaultAgencyIdempotent(t *testing.T) {
	_, db := newAgencyService(t)

	node, err := snowflake.NewNode(7)
	assert.NoError(t, err)

	err = seed.EnsureDefaultAgency(db, node)
	assert.NoError(t, err)
	err = seed.EnsureDefaultAgency(db, node)
	assert.NoError(t, err)

	var count int64
	err = db.Model(&domain.Agency{}).Where("code = ?", "main").Count(&count).Error
	assert.NoError(t, err)
	assert.EqualValues(t, 1, count)

	var main domain.Agency
	err = db.Where("code = ?", "main").First(&main).Error
	assert.NoError(t, err)
	assert.True(t, main.IsDefault)
	// The seeded id must come from the node the caller wired in.
	assert.EqualValues(t, 7, main.ID.Node())
}
