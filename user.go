package accountlink

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultAvatarURL is the placeholder avatar given to locally registered users.
const DefaultAvatarURL = "/img/rogo.png"

// User is the canonical account record every authentication event resolves to.
type User struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     *string `json:"email,omitempty"`
	AvatarURL string  `json:"avatar_url"`

	// bcrypt hash of the local password.  Empty when the account was created
	// through a provider and never set one.
	PasswordHash string `json:"password_hash,omitempty"`

	// provider name -> provider assigned id
	ProviderLinks map[string]string `json:"provider_links"`

	// Owned content, maintained outside this package.
	VideoIDs []string `json:"video_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPassword returns true if the user can log in with a local password.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// EmailValue returns the email or "" when absent.
func (u *User) EmailValue() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// ProviderID returns the id linked for provider, if any.
func (u *User) ProviderID(provider string) (string, bool) {
	id, ok := u.ProviderLinks[provider]
	return id, ok
}

// Clone returns a deep copy so callers never share maps or slices with a store.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Email != nil {
		email := *u.Email
		out.Email = &email
	}
	out.ProviderLinks = maps.Clone(u.ProviderLinks)
	if out.ProviderLinks == nil {
		out.ProviderLinks = map[string]string{}
	}
	out.VideoIDs = slices.Clone(u.VideoIDs)
	return &out
}

// UserPatch describes a partial update.  Nil fields are left untouched and
// ProviderLinks entries are merged into the stored links.
type UserPatch struct {
	Name          *string
	Email         *string
	AvatarURL     *string
	PasswordHash  *string
	ProviderLinks map[string]string
}

// IsEmpty returns true if applying the patch would change nothing.
func (p UserPatch) IsEmpty() bool {
	return p.Name == nil && p.Email == nil && p.AvatarURL == nil && p.PasswordHash == nil && len(p.ProviderLinks) == 0
}

// Apply mutates u in place.  Stores call this so the merge rules live in one place.
func (p UserPatch) Apply(u *User, now time.Time) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		email := NormalizeEmail(*p.Email)
		u.Email = &email
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if len(p.ProviderLinks) > 0 {
		if u.ProviderLinks == nil {
			u.ProviderLinks = map[string]string{}
		}
		maps.Copy(u.ProviderLinks, p.ProviderLinks)
	}
	u.UpdatedAt = now
}

// UserDirectory is the persistence capability the core depends on.
//
// Lookups return ErrNotFound when nothing matches.  Create and Update return
// ErrDuplicate when the write would give two users the same email or the same
// (provider, provider id) pair.  Any other error is a backend failure.
// Returned users are copies owned by the caller.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByName returns the earliest created user with this display name.
	FindByName(ctx context.Context, name string) (*User, error)

	FindByProviderLink(ctx context.Context, provider, providerID string) (*User, error)

	// Create persists a new user.  user.ID must already be assigned.
	Create(ctx context.Context, user *User) (*User, error)

	Update(ctx context.Context, id string, patch UserPatch) (*User, error)
}

// NewUserID returns a fresh opaque user id.
func NewUserID() string {
	return uuid.NewString()
}

// NormalizeEmail trims and lower-cases an address so it can be used as a
// lookup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// OptionalEmail returns nil for a blank address, otherwise a pointer to the
// normalized address.
func OptionalEmail(email string) *string {
	email = NormalizeEmail(email)
	if email == "" {
		return nil
	}
	return &email
}
