//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	al "github.com/panyam/accountlink"
)

// Kind constants for Datastore entities
const (
	KindUser     = "User"
	KindIdentity = "Identity"
)

const emailIdentity = "email"

// UserDirectory implements al.UserDirectory using Google Cloud Datastore
type UserDirectory struct {
	client    *datastore.Client
	namespace string
	Now       func() time.Time
}

// NewUserDirectory creates a new Datastore-backed UserDirectory
func NewUserDirectory(client *datastore.Client, namespace string) *UserDirectory {
	return &UserDirectory{
		client:    client,
		namespace: namespace,
	}
}

func (s *UserDirectory) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *UserDirectory) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *UserDirectory) identityKey(kind, value string) *datastore.Key {
	return s.namespacedKey(KindIdentity, kind+":"+value)
}

func (s *UserDirectory) FindByID(ctx context.Context, id string) (*al.User, error) {
	var entity UserEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindUser, id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, fmt.Errorf("user not found: %s: %w", id, al.ErrNotFound)
		}
		return nil, err
	}
	return entity.ToUser(), nil
}

func (s *UserDirectory) findByIdentity(ctx context.Context, kind, value string) (*al.User, error) {
	var identity IdentityEntity
	if err := s.client.Get(ctx, s.identityKey(kind, value), &identity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, fmt.Errorf("no user for %s %s: %w", kind, value, al.ErrNotFound)
		}
		return nil, err
	}
	return s.FindByID(ctx, identity.UserID)
}

func (s *UserDirectory) FindByEmail(ctx context.Context, email string) (*al.User, error) {
	return s.findByIdentity(ctx, emailIdentity, al.NormalizeEmail(email))
}

func (s *UserDirectory) FindByProviderLink(ctx context.Context, provider, providerID string) (*al.User, error) {
	return s.findByIdentity(ctx, provider, providerID)
}

func (s *UserDirectory) FindByName(ctx context.Context, name string) (*al.User, error) {
	query := datastore.NewQuery(KindUser).
		Namespace(s.namespace).
		FilterField("name", "=", name).
		Order("created_at").
		Limit(1)

	it := s.client.Run(ctx, query)
	var entity UserEntity
	_, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, fmt.Errorf("no user named %s: %w", name, al.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return entity.ToUser(), nil
}

// claim records userID as the owner of (kind, value), failing with
// al.ErrDuplicate when another user already owns it.
func (s *UserDirectory) claim(tx *datastore.Transaction, kind, value, userID string, now time.Time) error {
	key := s.identityKey(kind, value)
	var existing IdentityEntity
	err := tx.Get(key, &existing)
	switch {
	case err == nil && existing.UserID != userID:
		return fmt.Errorf("%s %s: %w", kind, value, al.ErrDuplicate)
	case err == nil:
		return nil
	case !errors.Is(err, datastore.ErrNoSuchEntity):
		return err
	}
	_, err = tx.Put(key, &IdentityEntity{
		Key:       key,
		Kind:      kind,
		Value:     value,
		UserID:    userID,
		CreatedAt: now,
	})
	return err
}

func (s *UserDirectory) Create(ctx context.Context, user *al.User) (*al.User, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	stored := user.Clone()
	stored.Email = al.OptionalEmail(stored.EmailValue())
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}

	key := s.namespacedKey(KindUser, stored.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing UserEntity
		err := tx.Get(key, &existing)
		if err == nil {
			return fmt.Errorf("user %s: %w", stored.ID, al.ErrDuplicate)
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if stored.Email != nil {
			if err := s.claim(tx, emailIdentity, *stored.Email, stored.ID, now); err != nil {
				return err
			}
		}
		for provider, providerID := range stored.ProviderLinks {
			if err := s.claim(tx, provider, providerID, stored.ID, now); err != nil {
				return err
			}
		}
		_, err = tx.Put(key, UserToEntity(stored, key))
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *UserDirectory) Update(ctx context.Context, id string, patch al.UserPatch) (*al.User, error) {
	key := s.namespacedKey(KindUser, id)
	var updated *al.User
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return fmt.Errorf("user not found: %s: %w", id, al.ErrNotFound)
			}
			return err
		}
		before := entity.ToUser()
		after := before.Clone()
		now := s.now()
		patch.Apply(after, now)

		if after.Email != nil && after.EmailValue() != before.EmailValue() {
			if err := s.claim(tx, emailIdentity, *after.Email, id, now); err != nil {
				return err
			}
			if before.Email != nil {
				if err := tx.Delete(s.identityKey(emailIdentity, *before.Email)); err != nil {
					return err
				}
			}
		}
		for provider, providerID := range patch.ProviderLinks {
			old, had := before.ProviderLinks[provider]
			if had && old == providerID {
				continue
			}
			if err := s.claim(tx, provider, providerID, id, now); err != nil {
				return err
			}
			if had {
				if err := tx.Delete(s.identityKey(provider, old)); err != nil {
					return err
				}
			}
		}

		if _, err := tx.Put(key, UserToEntity(after, key)); err != nil {
			return err
		}
		updated = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
