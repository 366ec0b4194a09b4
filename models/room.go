package models

import (
	"fmt"
	"time"
)

type RoomType string

const (
	RoomTypeDeal     RoomType = "deal"
	RoomTypeListing  RoomType = "listing"
	RoomTypeIDO      RoomType = "ido"
	RoomTypeCampaign RoomType = "campaign"
	RoomTypeProposal RoomType = "proposal"
	RoomTypeTeam     RoomType = "team"
	RoomTypeOps      RoomType = "ops"
)

// RoomTypes is the closed room-type vocabulary.
var RoomTypes = []RoomType{
	RoomTypeDeal, RoomTypeListing, RoomTypeIDO, RoomTypeCampaign,
	RoomTypeProposal, RoomTypeTeam, RoomTypeOps,
}

func (t RoomType) Valid() bool {
	for _, rt := range RoomTypes {
		if t == rt {
			return true
		}
	}
	return false
}

type RoomStatus string

const (
	RoomStatusActive   RoomStatus = "active"
	RoomStatusClosed   RoomStatus = "closed"
	RoomStatusArchived RoomStatus = "archived"
)

type RoomSettings struct {
	SlowModeSeconds  int  `json:"slow_mode_seconds"`
	FilesAllowed     bool `json:"files_allowed"`
	CallsAllowed     bool `json:"calls_allowed"`
	ReactionsAllowed bool `json:"reactions_allowed"`
	ThreadsAllowed   bool `json:"threads_allowed"`
}

type RoomPrivacy struct {
	InviteOnly bool `json:"invite_only"`
	// DisappearingSeconds is the disappearing-message TTL; 0 disables it.
	DisappearingSeconds int `json:"disappearing_seconds"`
}

// Per-type room metadata. Exactly one variant may be set, matching the
// room's type; anything else fails Validate. Team and ops rooms carry none.
type DealMetadata struct {
	CounterpartID   string `json:"counterpart_id"`
	CounterpartName string `json:"counterpart_name"`
	CounterpartRole string `json:"counterpart_role"`
	ProjectTitle    string `json:"project_title"`
}

type ListingMetadata struct {
	ExchangeName string `json:"exchange_name"`
	TradingPair  string `json:"trading_pair"`
}

type IDOMetadata struct {
	LaunchpadName string `json:"launchpad_name"`
	TargetRaise   string `json:"target_raise"`
}

type CampaignMetadata struct {
	Brief  string `json:"brief"`
	Budget string `json:"budget"`
}

type ProposalMetadata struct {
	AgencyName string `json:"agency_name"`
	Scope      string `json:"scope"`
}

type RoomMetadata struct {
	Deal     *DealMetadata     `json:"deal,omitempty"`
	Listing  *ListingMetadata  `json:"listing,omitempty"`
	IDO      *IDOMetadata      `json:"ido,omitempty"`
	Campaign *CampaignMetadata `json:"campaign,omitempty"`
	Proposal *ProposalMetadata `json:"proposal,omitempty"`
}

// Validate checks that only the variant matching the room type is present.
func (m RoomMetadata) Validate(t RoomType) error {
	variants := map[RoomType]bool{
		RoomTypeDeal:     m.Deal != nil,
		RoomTypeListing:  m.Listing != nil,
		RoomTypeIDO:      m.IDO != nil,
		RoomTypeCampaign: m.Campaign != nil,
		RoomTypeProposal: m.Proposal != nil,
	}
	for variantType, set := range variants {
		if set && variantType != t {
			return fmt.Errorf("metadata variant %q does not match room type %q", variantType, t)
		}
	}
	return nil
}

// Room is a bounded collaboration context with fixed membership and a typed
// purpose. It exclusively owns its message log.
type Room struct {
	ID        string   `gorm:"primaryKey;size:36" json:"id"`
	Name      string   `gorm:"not null" json:"name"`
	Type      RoomType `gorm:"size:16;not null;index" json:"type"`
	ProjectID *string  `gorm:"index" json:"project_id,omitempty"`
	OrgID     *string  `gorm:"index" json:"org_id,omitempty"`

	Members StringSet `gorm:"serializer:json" json:"members"`
	OwnerID string    `gorm:"not null;index" json:"owner_id"`

	Privacy  RoomPrivacy  `gorm:"serializer:json" json:"privacy"`
	Settings RoomSettings `gorm:"serializer:json" json:"settings"`
	Status   RoomStatus   `gorm:"size:16;not null;default:'active';index" json:"status"`

	PinnedMessageIDs StringSet    `gorm:"serializer:json" json:"pinned_message_ids"`
	MutedBy          StringSet    `gorm:"serializer:json" json:"muted_by"`
	Metadata         RoomMetadata `gorm:"serializer:json" json:"metadata"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `gorm:"index" json:"last_activity_at"`
}

func (r *Room) IsMember(userID string) bool {
	return r.Members.Contains(userID)
}

// RoomName derives a display name from the room type via a fixed table.
func RoomName(t RoomType) string {
	names := map[RoomType]string{
		RoomTypeDeal:     "Deal Room",
		RoomTypeListing:  "Listing Room",
		RoomTypeIDO:      "IDO Room",
		RoomTypeCampaign: "Campaign Room",
		RoomTypeProposal: "Proposal Room",
		RoomTypeTeam:     "Team Room",
		RoomTypeOps:      "Operations Room",
	}
	if name, ok := names[t]; ok {
		return name
	}
	return "Chat Room"
}

// DefaultRoomSettings returns type-appropriate settings. Ops rooms run with
// reactions off and a modest slow mode; everything else starts permissive.
func DefaultRoomSettings(t RoomType) RoomSettings {
	settings := RoomSettings{
		FilesAllowed:     true,
		CallsAllowed:     true,
		ReactionsAllowed: true,
		ThreadsAllowed:   true,
	}
	if t == RoomTypeOps {
		settings.ReactionsAllowed = false
		settings.CallsAllowed = false
		settings.SlowModeSeconds = 10
	}
	return settings
}
