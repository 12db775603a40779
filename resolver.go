package accountlink

import (
	"context"
	"errors"
	"time"
)

// Resolver maps a NormalizedProfile to exactly one persisted User, creating
// the account or linking the provider to an existing one.
//
// Resolution order:
//
//  1. The current owner of (provider, provider id), if any, is looked up.
//  2. An existing account is looked up by email, or by display name when
//     the profile has no email.
//  3. A found account gets the provider link (overwriting an older id for
//     the same provider) unless the link belongs to someone else, which is a
//     ResolutionConflict.
//  4. With no account found a new one is created, unless the link is already
//     owned, which is also a ResolutionConflict.
//
// Resolve is idempotent: replaying the same profile performs no writes.
type Resolver struct {
	Directory UserDirectory

	// Avatar treated as "not set" when deciding whether a provider avatar
	// may replace the stored one.  Defaults to DefaultAvatarURL.
	PlaceholderAvatarURL string

	NewID func() string
	Now   func() time.Time
}

func NewResolver(directory UserDirectory) *Resolver {
	return &Resolver{Directory: directory}
}

func (r *Resolver) Resolve(ctx context.Context, profile NormalizedProfile) (*User, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	owner, err := r.lookup(ctx, "find provider link", func() (*User, error) {
		return r.Directory.FindByProviderLink(ctx, profile.Provider, profile.ProviderID)
	})
	if err != nil {
		return nil, err
	}

	existing, err := r.findExisting(ctx, profile)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		if owner != nil {
			return nil, NewResolutionConflict(profile.Provider, profile.ProviderID, owner.ID)
		}
		return r.create(ctx, profile)
	}
	if owner != nil && owner.ID != existing.ID {
		return nil, NewResolutionConflict(profile.Provider, profile.ProviderID, owner.ID)
	}
	return r.link(ctx, existing, profile)
}

func (r *Resolver) findExisting(ctx context.Context, profile NormalizedProfile) (*User, error) {
	if profile.HasEmail() {
		return r.lookup(ctx, "find by email", func() (*User, error) {
			return r.Directory.FindByEmail(ctx, *profile.Email)
		})
	}
	return r.lookup(ctx, "find by name", func() (*User, error) {
		return r.Directory.FindByName(ctx, profile.DisplayName)
	})
}

// lookup turns ErrNotFound into a nil user and everything else into a
// StorageError.
func (r *Resolver) lookup(ctx context.Context, op string, find func() (*User, error)) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError(op, err)
	}
	user, err := find()
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, NewStorageError(op, err)
	}
	return user, nil
}

func (r *Resolver) link(ctx context.Context, user *User, profile NormalizedProfile) (*User, error) {
	var patch UserPatch
	if current, ok := user.ProviderID(profile.Provider); !ok || current != profile.ProviderID {
		patch.ProviderLinks = map[string]string{profile.Provider: profile.ProviderID}
	}
	if user.Name == "" && profile.DisplayName != "" {
		patch.Name = &profile.DisplayName
	}
	if profile.AvatarURL != "" && profile.AvatarURL != user.AvatarURL &&
		(user.AvatarURL == "" || user.AvatarURL == r.placeholderAvatar()) {
		patch.AvatarURL = &profile.AvatarURL
	}
	if patch.IsEmpty() {
		return user, nil
	}

	updated, err := r.Directory.Update(ctx, user.ID, patch)
	if err != nil {
		return nil, NewStorageError("link provider", err)
	}
	return updated, nil
}

func (r *Resolver) create(ctx context.Context, profile NormalizedProfile) (*User, error) {
	now := r.now()
	avatar := profile.AvatarURL
	if avatar == "" {
		avatar = r.placeholderAvatar()
	}
	user := &User{
		ID:            r.newID(),
		Name:          profile.DisplayName,
		Email:         profile.Email,
		AvatarURL:     avatar,
		ProviderLinks: map[string]string{profile.Provider: profile.ProviderID},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := r.Directory.Create(ctx, user)
	if err != nil {
		return nil, NewStorageError("create user", err)
	}
	return created, nil
}

func (r *Resolver) placeholderAvatar() string {
	if r.PlaceholderAvatarURL != "" {
		return r.PlaceholderAvatarURL
	}
	return DefaultAvatarURL
}

func (r *Resolver) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return NewUserID()
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}
