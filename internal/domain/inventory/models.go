package inventory

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Property is the top-level container a home's inventory hangs off. The
// ingest token is the opaque local part of the property's inbound email
// address (docs+<token>@...), used to route emailed documents.
type Property struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	Name        string `gorm:"not null" json:"name"`
	Address     string `gorm:"column:address" json:"address,omitempty"`
	IngestToken string `gorm:"column:ingest_token;uniqueIndex" json:"ingest_token,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Property) TableName() string { return "property" }

// HomeSystem groups items under a property (HVAC, plumbing, a room).
type HomeSystem struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	PropertyID uuid.UUID `gorm:"type:uuid;not null;index" json:"property_id"`
	Property   *Property `gorm:"constraint:OnDelete:CASCADE;foreignKey:PropertyID;references:ID" json:"property,omitempty"`

	Name string `gorm:"not null" json:"name"`
	Kind string `gorm:"column:kind" json:"kind,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (HomeSystem) TableName() string { return "home_system" }

// Item is a tracked appliance or component. The resolution stage matches
// extracted documents against these by manufacturer/model/serial/name.
type Item struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	PropertyID uuid.UUID  `gorm:"type:uuid;not null;index" json:"property_id"`
	Property   *Property  `gorm:"constraint:OnDelete:CASCADE;foreignKey:PropertyID;references:ID" json:"property,omitempty"`
	SystemID   *uuid.UUID `gorm:"type:uuid;index" json:"system_id,omitempty"`

	Name         string `gorm:"not null" json:"name"`
	Manufacturer string `gorm:"column:manufacturer" json:"manufacturer,omitempty"`
	Model        string `gorm:"column:model" json:"model,omitempty"`
	SerialNumber string `gorm:"column:serial_number" json:"serial_number,omitempty"`
	Category     string `gorm:"column:category" json:"category,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Item) TableName() string { return "item" }
