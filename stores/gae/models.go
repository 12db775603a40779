//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	al "github.com/panyam/accountlink"
)

// ProviderLinkProp is one provider link embedded in a UserEntity
type ProviderLinkProp struct {
	Provider   string `datastore:"provider"`
	ProviderID string `datastore:"provider_id"`
}

// UserEntity is the Datastore entity for users
type UserEntity struct {
	Key          *datastore.Key     `datastore:"__key__"`
	Name         string             `datastore:"name"`
	Email        string             `datastore:"email"`
	AvatarURL    string             `datastore:"avatar_url,noindex"`
	PasswordHash string             `datastore:"password_hash,noindex"`
	Links        []ProviderLinkProp `datastore:"links,noindex"`
	VideoIDs     []string           `datastore:"video_ids,noindex"`
	CreatedAt    time.Time          `datastore:"created_at"`
	UpdatedAt    time.Time          `datastore:"updated_at"`
}

// IdentityEntity is the Datastore entity for unique identities
// Key format: Kind + ":" + Value
type IdentityEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Kind      string         `datastore:"kind"`
	Value     string         `datastore:"value"`
	UserID    string         `datastore:"user_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

func (e *UserEntity) ToUser() *al.User {
	user := &al.User{
		ID:            e.Key.Name,
		Name:          e.Name,
		AvatarURL:     e.AvatarURL,
		PasswordHash:  e.PasswordHash,
		ProviderLinks: make(map[string]string, len(e.Links)),
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if e.Email != "" {
		email := e.Email
		user.Email = &email
	}
	if len(e.VideoIDs) > 0 {
		user.VideoIDs = append([]string(nil), e.VideoIDs...)
	}
	for _, link := range e.Links {
		user.ProviderLinks[link.Provider] = link.ProviderID
	}
	return user
}

func UserToEntity(u *al.User, key *datastore.Key) *UserEntity {
	entity := &UserEntity{
		Key:          key,
		Name:         u.Name,
		Email:        al.NormalizeEmail(u.EmailValue()),
		AvatarURL:    u.AvatarURL,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if len(u.VideoIDs) > 0 {
		entity.VideoIDs = append([]string(nil), u.VideoIDs...)
	}
	for provider, providerID := range u.ProviderLinks {
		entity.Links = append(entity.Links, ProviderLinkProp{Provider: provider, ProviderID: providerID})
	}
	return entity
}
