//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	al "github.com/panyam/accountlink"
)

// AutoMigrate runs database migrations for all accountlink tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&ProviderLinkModel{},
	)
}

// UserDirectory implements al.UserDirectory using GORM.  Open the database
// with gorm.Config{TranslateError: true} so constraint violations that slip
// past the in-transaction checks still surface as al.ErrDuplicate.
type UserDirectory struct {
	db  *gorm.DB
	Now func() time.Time
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

func (s *UserDirectory) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, al.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, al.ErrDuplicate)
	}
	return err
}

// load fetches the user row matching query plus its links.
func load(tx *gorm.DB, what string, query any, args ...any) (*al.User, error) {
	var model UserModel
	if err := tx.Where(query, args...).Order("created_at ASC").Take(&model).Error; err != nil {
		return nil, translate(err, what)
	}
	var links []ProviderLinkModel
	if err := tx.Where("user_id = ?", model.ID).Find(&links).Error; err != nil {
		return nil, err
	}
	return model.ToUser(links), nil
}

func (s *UserDirectory) FindByID(ctx context.Context, id string) (*al.User, error) {
	return load(s.db.WithContext(ctx), "user "+id, "id = ?", id)
}

func (s *UserDirectory) FindByEmail(ctx context.Context, email string) (*al.User, error) {
	email = al.NormalizeEmail(email)
	return load(s.db.WithContext(ctx), "email "+email, "email = ?", email)
}

func (s *UserDirectory) FindByName(ctx context.Context, name string) (*al.User, error) {
	return load(s.db.WithContext(ctx), "name "+name, "name = ?", name)
}

func (s *UserDirectory) FindByProviderLink(ctx context.Context, provider, providerID string) (*al.User, error) {
	tx := s.db.WithContext(ctx)
	var link ProviderLinkModel
	err := tx.First(&link, "provider = ? AND provider_id = ?", provider, providerID).Error
	if err != nil {
		return nil, translate(err, provider+" link "+providerID)
	}
	return load(tx, "user "+link.UserID, "id = ?", link.UserID)
}

// ensureUnowned fails with al.ErrDuplicate when a row matching query
// belongs to a user other than userID.
func ensureUnowned(tx *gorm.DB, model any, column, userID, what string, query string, args ...any) error {
	var owners []string
	if err := tx.Model(model).Where(query, args...).Pluck(column, &owners).Error; err != nil {
		return err
	}
	for _, owner := range owners {
		if owner != userID {
			return fmt.Errorf("%s: %w", what, al.ErrDuplicate)
		}
	}
	return nil
}

func checkIdentities(tx *gorm.DB, user *al.User) error {
	if user.Email != nil {
		if err := ensureUnowned(tx, &UserModel{}, "id", user.ID, "email "+*user.Email, "email = ?", *user.Email); err != nil {
			return err
		}
	}
	for provider, providerID := range user.ProviderLinks {
		if err := ensureUnowned(tx, &ProviderLinkModel{}, "user_id", user.ID, provider+" link "+providerID,
			"provider = ? AND provider_id = ?", provider, providerID); err != nil {
			return err
		}
	}
	return nil
}

func (s *UserDirectory) Create(ctx context.Context, user *al.User) (*al.User, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	model := UserToModel(user)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = s.now()
	}
	if model.UpdatedAt.IsZero() {
		model.UpdatedAt = model.CreatedAt
	}

	var created *al.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&UserModel{}).Where("id = ?", model.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("user %s: %w", model.ID, al.ErrDuplicate)
		}
		normalized := model.ToUser(nil)
		for provider, providerID := range user.ProviderLinks {
			normalized.ProviderLinks[provider] = providerID
		}
		if err := checkIdentities(tx, normalized); err != nil {
			return err
		}
		if err := tx.Create(model).Error; err != nil {
			return translate(err, "user "+model.ID)
		}
		var links []ProviderLinkModel
		for provider, providerID := range user.ProviderLinks {
			links = append(links, ProviderLinkModel{Provider: provider, ProviderID: providerID, UserID: model.ID})
		}
		if len(links) > 0 {
			if err := tx.Create(&links).Error; err != nil {
				return translate(err, "provider links of "+model.ID)
			}
		}
		created = model.ToUser(links)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *UserDirectory) Update(ctx context.Context, id string, patch al.UserPatch) (*al.User, error) {
	var updated *al.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := load(tx, "user "+id, "id = ?", id)
		if err != nil {
			return err
		}
		after := before.Clone()
		patch.Apply(after, s.now())
		if err := checkIdentities(tx, after); err != nil {
			return err
		}

		err = tx.Model(&UserModel{}).Where("id = ?", id).Updates(map[string]any{
			"name":          after.Name,
			"email":         after.Email,
			"avatar_url":    after.AvatarURL,
			"password_hash": after.PasswordHash,
			"updated_at":    after.UpdatedAt,
		}).Error
		if err != nil {
			return translate(err, "user "+id)
		}

		for provider, providerID := range patch.ProviderLinks {
			old, had := before.ProviderLinks[provider]
			if had && old == providerID {
				continue
			}
			if had {
				if err := tx.Where("provider = ? AND provider_id = ?", provider, old).Delete(&ProviderLinkModel{}).Error; err != nil {
					return err
				}
			}
			link := &ProviderLinkModel{Provider: provider, ProviderID: providerID, UserID: id}
			if err := tx.Create(link).Error; err != nil {
				return translate(err, provider+" link "+providerID)
			}
		}
		updated = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
