//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	al "github.com/panyam/accountlink"
)

// StringSlice is a helper type for storing string slices as JSON text
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *StringSlice) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringSlice", value)
	}
	return json.Unmarshal(data, s)
}

// UserModel is the GORM model for users
type UserModel struct {
	ID           string      `gorm:"primaryKey;size:64"`
	Name         string      `gorm:"size:255;index"`
	Email        *string     `gorm:"size:320;uniqueIndex"`
	AvatarURL    string      `gorm:"size:1024"`
	PasswordHash string      `gorm:"size:255"`
	VideoIDs     StringSlice `gorm:"type:text"`
	CreatedAt    time.Time   `gorm:"autoCreateTime;index"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

// ProviderLinkModel is the GORM model for provider links.  The primary key
// makes a provider account belong to one user; the unique index allows one
// link per provider per user.
type ProviderLinkModel struct {
	Provider   string    `gorm:"primaryKey;size:32;uniqueIndex:idx_provider_links_user_provider,priority:2"`
	ProviderID string    `gorm:"primaryKey;size:255"`
	UserID     string    `gorm:"size:64;not null;uniqueIndex:idx_provider_links_user_provider,priority:1"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (ProviderLinkModel) TableName() string {
	return "provider_links"
}

func (m *UserModel) ToUser(links []ProviderLinkModel) *al.User {
	user := &al.User{
		ID:            m.ID,
		Name:          m.Name,
		AvatarURL:     m.AvatarURL,
		PasswordHash:  m.PasswordHash,
		ProviderLinks: make(map[string]string, len(links)),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.Email != nil {
		email := *m.Email
		user.Email = &email
	}
	if len(m.VideoIDs) > 0 {
		user.VideoIDs = append([]string(nil), m.VideoIDs...)
	}
	for _, link := range links {
		user.ProviderLinks[link.Provider] = link.ProviderID
	}
	return user
}

func UserToModel(u *al.User) *UserModel {
	model := &UserModel{
		ID:           u.ID,
		Name:         u.Name,
		AvatarURL:    u.AvatarURL,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.Email != nil {
		email := al.NormalizeEmail(*u.Email)
		model.Email = &email
	}
	if len(u.VideoIDs) > 0 {
		model.VideoIDs = StringSlice(append([]string(nil), u.VideoIDs...))
	}
	return model
}
