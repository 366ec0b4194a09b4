package models

import (
	"time"

	"gorm.io/gorm"
)

// Platform roles. Room visibility per role lives in utils.AllowedRoomTypes.
type Role string

const (
	RoleFounder    Role = "founder"
	RoleVC         Role = "vc"
	RoleExchange   Role = "exchange"
	RoleIDO        Role = "ido"
	RoleInfluencer Role = "influencer"
	RoleAgency     Role = "agency"
	RoleAdmin      Role = "admin"
)

// User is a platform account. Identity verification and onboarding live in
// an external system; this record carries what messaging needs.
type User struct {
	gorm.Model

	PublicID string `gorm:"uniqueIndex;size:36;not null" json:"public_id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Name     string `json:"name"`
	Role     Role   `gorm:"size:16;not null;default:'founder'" json:"role"`

	IsActive     bool `gorm:"default:true" json:"is_active"`
	TokenVersion int  `gorm:"default:0" json:"-"`

	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}
