package services

import (
	"github.com/google/uuid"

	"github.com/haventory/haventory-backend/internal/data/repos/inventoryrepo"
	"github.com/haventory/haventory-backend/internal/domain/docs"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/dbctx"
)

// linkResolver checks that a requested document link points at an entity
// the caller owns, and reports which property the link ultimately scopes
// the document to.
type linkResolver struct {
	properties inventoryrepo.PropertyRepo
	systems    inventoryrepo.SystemRepo
	items      inventoryrepo.ItemRepo
}

// resolve returns the property id behind the link, or uuid.Nil for an
// unlinked document. Ownership mismatches are AuthorizationErrors.
func (lr *linkResolver) resolve(dbc dbctx.Context, ownerID uuid.UUID, link docs.Link) (uuid.UUID, error) {
	switch link.Kind {
	case docs.LinkNone, "":
		return uuid.Nil, nil
	case docs.LinkProperty:
		p, err := lr.properties.GetByID(dbc, *link.Target)
		if err != nil {
			return uuid.Nil, err
		}
		if p.OwnerUserID != ownerID {
			return uuid.Nil, apperr.Authorization("property_forbidden", "property %s not owned by caller", p.ID)
		}
		return p.ID, nil
	case docs.LinkSystem:
		s, err := lr.systems.GetByID(dbc, *link.Target)
		if err != nil {
			return uuid.Nil, err
		}
		return lr.ownedProperty(dbc, ownerID, s.PropertyID)
	case docs.LinkItem:
		it, err := lr.items.GetByID(dbc, *link.Target)
		if err != nil {
			return uuid.Nil, err
		}
		return lr.ownedProperty(dbc, ownerID, it.PropertyID)
	default:
		return uuid.Nil, apperr.Validation("link_kind_invalid", "unknown link kind %q", link.Kind)
	}
}

func (lr *linkResolver) ownedProperty(dbc dbctx.Context, ownerID, propertyID uuid.UUID) (uuid.UUID, error) {
	p, err := lr.properties.GetByID(dbc, propertyID)
	if err != nil {
		return uuid.Nil, err
	}
	if p.OwnerUserID != ownerID {
		return uuid.Nil, apperr.Authorization("property_forbidden", "property %s not owned by caller", p.ID)
	}
	return p.ID, nil
}
