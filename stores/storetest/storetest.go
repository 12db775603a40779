// Package storetest is the conformance suite every accountlink.UserDirectory
// implementation runs in its own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/panyam/accountlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty directory.  It is called once per subtest.
type Factory func(t *testing.T) accountlink.UserDirectory

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }

// NewUser builds a user for tests.  email may be "" for none.
func NewUser(id, name, email string, created time.Time) *accountlink.User {
	u := &accountlink.User{
		ID:            id,
		Name:          name,
		AvatarURL:     accountlink.DefaultAvatarURL,
		ProviderLinks: map[string]string{},
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	if email != "" {
		u.Email = strp(email)
	}
	return u
}

func mustCreate(t *testing.T, dir accountlink.UserDirectory, u *accountlink.User) *accountlink.User {
	t.Helper()
	created, err := dir.Create(context.Background(), u)
	require.NoError(t, err)
	return created
}

// Run exercises the full UserDirectory contract.
func Run(t *testing.T, newDirectory Factory) {
	ctx := context.Background()

	t.Run("create and find by id", func(t *testing.T) {
		dir := newDirectory(t)
		u := NewUser("u1", "Ann", "ann@x.com", baseTime)
		u.PasswordHash = "hash"
		u.ProviderLinks["github"] = "42"
		u.VideoIDs = []string{"v1", "v2"}
		created := mustCreate(t, dir, u)
		assert.Equal(t, "u1", created.ID)

		got, err := dir.FindByID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Ann", got.Name)
		require.NotNil(t, got.Email)
		assert.Equal(t, "ann@x.com", *got.Email)
		assert.Equal(t, "hash", got.PasswordHash)
		assert.Equal(t, accountlink.DefaultAvatarURL, got.AvatarURL)
		assert.Equal(t, map[string]string{"github": "42"}, got.ProviderLinks)
		assert.ElementsMatch(t, []string{"v1", "v2"}, got.VideoIDs)
		assert.WithinDuration(t, baseTime, got.CreatedAt, time.Second)
	})

	t.Run("missing lookups return ErrNotFound", func(t *testing.T) {
		dir := newDirectory(t)
		mustCreate(t, dir, NewUser("u1", "Ann", "ann@x.com", baseTime))

		_, err := dir.FindByID(ctx, "nope")
		assert.ErrorIs(t, err, accountlink.ErrNotFound)
		_, err = dir.FindByEmail(ctx, "bob@x.com")
		assert.ErrorIs(t, err, accountlink.ErrNotFound)
		_, err = dir.FindByName(ctx, "Bob")
		assert.ErrorIs(t, err, accountlink.ErrNotFound)
		_, err = dir.FindByProviderLink(ctx, "github", "1")
		assert.ErrorIs(t, err, accountlink.ErrNotFound)
	})

	t.Run("users without email", func(t *testing.T) {
		dir := newDirectory(t)
		mustCreate(t, dir, NewUser("u1", "Ann", "", baseTime))
		mustCreate(t, dir, NewUser("u2", "Bob", "", baseTime))

		got, err := dir.FindByID(ctx, "u2")
		require.NoError(t, err)
		assert.Nil(t, got.Email)
	})

	t.Run("find by email", func(t *testing.T) {
		dir := newDirectory(t)
		mustCreate(t, dir, NewUser("u1", "Ann", "ann@x.com", baseTime))
		mustCreate(t, dir, NewUser("u2", "Bob", "bob@x.com", baseTime))

		got, err := dir.FindByEmail(ctx, "bob@x.com")
		require.NoError(t, err)
		assert.Equal(t, "u2", got.ID)
	})

	t.Run("find by name returns earliest created", func(t *testing.T) {
		dir := newDirectory(t)
		mustCreate(t, dir, NewUser("late", "Ann", "", baseTime.Add(time.Hour)))
		mustCreate(t, dir, NewUser("early", "Ann", "", baseTime))

		got, err := dir.FindByName(ctx, "Ann")
		require.NoError(t, err)
		assert.Equal(t, "early", got.ID)
	})

	t.Run("find by provider link", func(t *testing.T) {
		dir := newDirectory(t)
		u := NewUser("u1", "Ann", "", baseTime)
		u.ProviderLinks["kakao"] = "777"
		mustCreate(t, dir, u)

		got, err := dir.FindByProviderLink(ctx, "kakao", "777")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)
		_, err = dir.FindByProviderLink(ctx, "github", "777")
		assert.ErrorIs(t, err, accountlink.ErrNotFound)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		dir := newDirectory(t)
		mustCreate(t, dir, NewUser("u1", "Ann", "ann@x.com", baseTime))
		_, err := dir.Create(ctx, NewUser("u2", "Other Ann", "ann@x.com", baseTime))
		assert.ErrorIs(t, err, accountlink.ErrDuplicate)

		_, err = dir.FindByID(ctx, "u2")
		assert.ErrorIs(t, err, accountlink.ErrNotFound)
	})

	t.Run("duplicate provider link is rejected", func(t *testing.T) {
		dir := newDirectory(t)
		u1 := NewUser("u1", "Ann", "", baseTime)
		u1.ProviderLinks["github"] = "42"
		mustCreate(t, dir, u1)

		u2 := NewUser("u2", "Bob", "", baseTime)
		u2.ProviderLinks["github"] = "42"
		_, err := dir.Create(ctx, u2)
		assert.ErrorIs(t, err, accountlink.ErrDuplicate)
	})

	t.Run("update applies patch and merges links", func(t *testing.T) {
		dir := newDirectory(t)
		u := NewUser("u1", "", "ann@x.com", baseTime)
		u.ProviderLinks["google"] = "g1"
		mustCreate(t, dir, u)

		name, avatar, hash := "Ann", "https://img/a.png", "newhash"
		updated, err := dir.Update(ctx, "u1", accountlink.UserPatch{
			Name:          &name,
			AvatarURL:     &avatar,
			PasswordHash:  &hash,
			ProviderLinks: map[string]string{"github": "42"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Ann", updated.Name)
		assert.Equal(t, map[string]string{"google": "g1", "github": "42"}, updated.ProviderLinks)

		got, err := dir.FindByID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Ann", got.Name)
		assert.Equal(t, avatar, got.AvatarURL)
		assert.Equal(t, "newhash", got.PasswordHash)
		assert.Equal(t, "ann@x.com", got.EmailValue())

		byLink, err := dir.FindByProviderLink(ctx, "github", "42")
		require.NoError(t, err)
		assert.Equal(t, "u1", byLink.ID)
	})

	t.Run("update overwrites link for same provider", func(t *testing.T) {
		dir := newDirectory(t)
		u := NewUser("u1", "Ann", "", baseTime)
		u.ProviderLinks["github"] = "old"
		mustCreate(t, dir, u)

		_, err := dir.Update(ctx, "u1", accountlink.UserPatch{ProviderLinks: map[string]string{"github": "new"}})
		require.NoError(t, err)

		_, err = dir.FindByProviderLink(ctx, "github", "old")
		assert.ErrorIs(t, err, accountlink.ErrNotFound)
		got, err := dir.FindByProviderLink(ctx, "github", "new")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)
	})

	t.Run("update conflicts", func(t *testing.T) {
		dir := newDirectory(t)
		u1 := NewUser("u1", "Ann", "ann@x.com", baseTime)
		u1.ProviderLinks["github"] = "42"
		mustCreate(t, dir, u1)
		mustCreate(t, dir, NewUser("u2", "Bob", "bob@x.com", baseTime))

		_, err := dir.Update(ctx, "u2", accountlink.UserPatch{Email: strp("ann@x.com")})
		assert.ErrorIs(t, err, accountlink.ErrDuplicate)
		_, err = dir.Update(ctx, "u2", accountlink.UserPatch{ProviderLinks: map[string]string{"github": "42"}})
		assert.ErrorIs(t, err, accountlink.ErrDuplicate)

		got, err := dir.FindByID(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, "bob@x.com", got.EmailValue())
		assert.Empty(t, got.ProviderLinks)
	})

	t.Run("update missing user", func(t *testing.T) {
		dir := newDirectory(t)
		_, err := dir.Update(ctx, "nope", accountlink.UserPatch{Name: strp("x")})
		assert.ErrorIs(t, err, accountlink.ErrNotFound)
	})

	t.Run("returned users are copies", func(t *testing.T) {
		dir := newDirectory(t)
		mustCreate(t, dir, NewUser("u1", "Ann", "", baseTime))

		got, err := dir.FindByID(ctx, "u1")
		require.NoError(t, err)
		got.ProviderLinks["github"] = "sneaky"
		got.Name = "Changed"

		again, err := dir.FindByID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Ann", again.Name)
		assert.Empty(t, again.ProviderLinks)
	})
}
