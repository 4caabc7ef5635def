package inventoryrepo

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haventory/haventory-backend/internal/domain/inventory"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/dbctx"
	"github.com/haventory/haventory-backend/internal/platform/logger"
)

type PropertyRepo interface {
	Create(dbc dbctx.Context, p *inventory.Property) (*inventory.Property, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*inventory.Property, error)
	GetByIngestToken(dbc dbctx.Context, token string) (*inventory.Property, error)
}

type propertyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPropertyRepo(db *gorm.DB, baseLog *logger.Logger) PropertyRepo {
	return &propertyRepo{db: db, log: baseLog.With("repo", "PropertyRepo")}
}

func (r *propertyRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *propertyRepo) Create(dbc dbctx.Context, p *inventory.Property) (*inventory.Property, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if strings.TrimSpace(p.IngestToken) == "" {
		p.IngestToken = uuid.NewString()
	}
	if err := r.conn(dbc).WithContext(dbc.Ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (r *propertyRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*inventory.Property, error) {
	var p inventory.Property
	err := r.conn(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("property_missing", "property %s not found", id)
		}
		return nil, err
	}
	return &p, nil
}

func (r *propertyRepo) GetByIngestToken(dbc dbctx.Context, token string) (*inventory.Property, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.NotFound("property_missing", "empty ingest token")
	}
	var p inventory.Property
	err := r.conn(dbc).WithContext(dbc.Ctx).Where("ingest_token = ?", token).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("property_missing", "no property for ingest token")
		}
		return nil, err
	}
	return &p, nil
}
