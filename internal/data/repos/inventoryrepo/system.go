package inventoryrepo

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haventory/haventory-backend/internal/domain/inventory"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/dbctx"
	"github.com/haventory/haventory-backend/internal/platform/logger"
)

type SystemRepo interface {
	Create(dbc dbctx.Context, s *inventory.HomeSystem) (*inventory.HomeSystem, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*inventory.HomeSystem, error)
}

type systemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSystemRepo(db *gorm.DB, baseLog *logger.Logger) SystemRepo {
	return &systemRepo{db: db, log: baseLog.With("repo", "SystemRepo")}
}

func (r *systemRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *systemRepo) Create(dbc dbctx.Context, s *inventory.HomeSystem) (*inventory.HomeSystem, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if err := r.conn(dbc).WithContext(dbc.Ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

func (r *systemRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*inventory.HomeSystem, error) {
	var s inventory.HomeSystem
	err := r.conn(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("system_missing", "home system %s not found", id)
		}
		return nil, err
	}
	return &s, nil
}
