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

type ItemRepo interface {
	Create(dbc dbctx.Context, item *inventory.Item) (*inventory.Item, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*inventory.Item, error)
	// ListByPropertyID returns at most limit items; the resolution stage
	// depends on this bound to keep its prompt context small.
	ListByPropertyID(dbc dbctx.Context, propertyID uuid.UUID, limit int) ([]*inventory.Item, error)
}

type itemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewItemRepo(db *gorm.DB, baseLog *logger.Logger) ItemRepo {
	return &itemRepo{db: db, log: baseLog.With("repo", "ItemRepo")}
}

func (r *itemRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *itemRepo) Create(dbc dbctx.Context, item *inventory.Item) (*inventory.Item, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if err := r.conn(dbc).WithContext(dbc.Ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *itemRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*inventory.Item, error) {
	var item inventory.Item
	err := r.conn(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("item_missing", "item %s not found", id)
		}
		return nil, err
	}
	return &item, nil
}

func (r *itemRepo) ListByPropertyID(dbc dbctx.Context, propertyID uuid.UUID, limit int) ([]*inventory.Item, error) {
	if limit <= 0 {
		limit = 50
	}
	var results []*inventory.Item
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("property_id = ?", propertyID).
		Order("created_at ASC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
