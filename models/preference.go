package models

import "time"

type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"` // "HH:MM", may be later than End (wraps midnight)
	End     string `json:"end"`
}

type RoomOverride struct {
	Enabled      bool `json:"enabled"`
	MentionsOnly bool `json:"mentions_only"`
}

type NotificationPrefs struct {
	Enabled         bool                    `json:"enabled"`
	QuietHours      QuietHours              `json:"quiet_hours"`
	PerRoom         map[string]RoomOverride `json:"per_room,omitempty"`
	EmailFallback   bool                    `json:"email_fallback"`
	EmailDelayHours int                     `json:"email_delay_hours"`
	FallbackEmail   string                  `json:"fallback_email,omitempty"`
}

type PrivacyPrefs struct {
	LockChats         bool `json:"lock_chats"`
	HidePreviews      bool `json:"hide_previews"`
	ScreenshotWarning bool `json:"screenshot_warning"`
}

type UIPrefs struct {
	Theme            string `json:"theme"`
	FontSize         string `json:"font_size"`
	ShowTimestamps   bool   `json:"show_timestamps"`
	ShowReadReceipts bool   `json:"show_read_receipts"`
}

// Preference holds one user's notification policy and privacy/UI settings.
// A row is created lazily with defaults on first read.
type Preference struct {
	UserID        string            `gorm:"primaryKey;size:36" json:"user_id"`
	Notifications NotificationPrefs `gorm:"serializer:json" json:"notifications"`
	Privacy       PrivacyPrefs      `gorm:"serializer:json" json:"privacy"`
	UI            UIPrefs           `gorm:"serializer:json" json:"ui"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func DefaultPreference(userID string) Preference {
	return Preference{
		UserID: userID,
		Notifications: NotificationPrefs{
			Enabled: true,
			QuietHours: QuietHours{
				Enabled: false,
				Start:   "22:00",
				End:     "08:00",
			},
			PerRoom:         map[string]RoomOverride{},
			EmailFallback:   true,
			EmailDelayHours: 24,
		},
		Privacy: PrivacyPrefs{
			ScreenshotWarning: true,
		},
		UI: UIPrefs{
			Theme:            "auto",
			FontSize:         "medium",
			ShowTimestamps:   true,
			ShowReadReceipts: true,
		},
	}
}
