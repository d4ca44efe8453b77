package workspace

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAsset Role = "asset"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAsset }

type Session struct {
	ID        string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	WorkDate  time.Time `gorm:"index;not null" json:"work_date"`
	CreatedAt time.Time `json:"created_at"`

	Views []View `gorm:"foreignKey:SessionID" json:"views"`
}

func (Session) TableName() string { return "sessions" }

type View struct {
	ID            string                         `gorm:"primaryKey;type:varchar(26)" json:"id"`
	SessionID     string                         `gorm:"type:varchar(26);index;not null" json:"session_id"`
	OriginalImage *string                        `gorm:"type:text" json:"original_image"`
	EditedImages  datatypes.JSONSlice[string]    `json:"edited_images"`
	ChatHistory   datatypes.JSONSlice[ChatEntry] `json:"chat_history"`
	Version       int64                          `gorm:"not null;default:0" json:"-"`
	CreatedAt     time.Time                      `json:"created_at"`
	UpdatedAt     time.Time                      `json:"updated_at"`

	AssetLibrary []Asset `gorm:"foreignKey:ViewID" json:"asset_library"`
}

func (View) TableName() string { return "views" }

// AfterFind keeps array fields non-nil so they encode as [] rather than null.
func (v *View) AfterFind(tx *gorm.DB) error {
	if v.EditedImages == nil {
		v.EditedImages = datatypes.JSONSlice[string]{}
	}
	if v.ChatHistory == nil {
		v.ChatHistory = datatypes.JSONSlice[ChatEntry]{}
	}
	return nil
}

// ChatEntry is embedded in View.ChatHistory. JSON keys match what the web
// client already stores.
type ChatEntry struct {
	ID        string  `json:"id"`
	Role      Role    `json:"role"`
	Content   string  `json:"content"`
	AssetName *string `json:"assetName"`
	AssetURL  *string `json:"assetUrl"`
	CreatedAt string  `json:"createdAt"`
}

type Asset struct {
	ID        string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	ViewID    string    `gorm:"type:varchar(26);index;not null" json:"view_id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	URL       string    `gorm:"type:text;not null" json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Asset) TableName() string { return "asset_library" }

// ViewSeed is the initial content of a view created with its session.
type ViewSeed struct {
	OriginalImage *string
	EditedImages  []string
	ChatHistory   []ChatEntry
}

// AssetPatch is a partial update; nil fields are left untouched.
type AssetPatch struct {
	Name *string
	URL  *string
}

func (p AssetPatch) Empty() bool { return p.Name == nil && p.URL == nil }
