package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/voyagekit/tariff/internal/agency/domain"
	"github.com/voyagekit/tariff/internal/clock"
	"github.com/voyagekit/tariff/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("agency.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Agency, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	code := slug.Make(name)
	existing, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicateCode
	}

	now := s.clock.Now()
	agency := &domain.Agency{
		ID:           s.genID.Generate(),
		Name:         name,
		Code:         code,
		ContactEmail: strings.TrimSpace(req.ContactEmail),
		CountryCode:  strings.ToUpper(strings.TrimSpace(req.CountryCode)),
		Currency:     strings.ToUpper(strings.TrimSpace(req.Currency)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Insert(ctx, s.db, agency); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateCode
		}
		return nil, err
	}

	s.log.Info("agency created",
		zap.String("agency_id", agency.ID.String()),
		zap.String("code", agency.Code),
	)
	return agency, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Agency, error) {
	agencyID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	agency, err := s.repo.FindByID(ctx, s.db, agencyID)
	if err != nil {
		return nil, err
	}
	if agency == nil {
		return nil, domain.ErrNotFound
	}
	return agency, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Agency, error) {
	return s.repo.List(ctx, s.db)
}
