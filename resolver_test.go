package accountlink_test

import (
	"context"
	"errors"
	"testing"
	"time"

	al "github.com/panyam/accountlink"
)

func newTestResolver(dir al.UserDirectory) *al.Resolver {
	r := al.NewResolver(dir)
	r.Now = func() time.Time { return testTime }
	return r
}

func githubProfile(id, name, email string) al.NormalizedProfile {
	return al.NormalizedProfile{
		Provider:    al.ProviderGithub,
		ProviderID:  id,
		Email:       al.OptionalEmail(email),
		DisplayName: name,
		AvatarURL:   "https://avatars.example.com/" + id,
	}
}

func TestResolve_CreatesNewUser(t *testing.T) {
	dir := newTestDirectory(t)
	r := newTestResolver(dir)

	user, err := r.Resolve(context.Background(), githubProfile("42", "Ann", "ann@x.com"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if user.ID == "" {
		t.Fatal("Expected a user id")
	}
	if user.Name != "Ann" || user.EmailValue() != "ann@x.com" {
		t.Errorf("Unexpected user %+v", user)
	}
	if id, _ := user.ProviderID("github"); id != "42" {
		t.Errorf("Expected github link 42, got %q", id)
	}
	if user.HasPassword() {
		t.Error("Provider created users must not have a password")
	}
	if user.AvatarURL != "https://avatars.example.com/42" {
		t.Errorf("Expected provider avatar, got %q", user.AvatarURL)
	}
	if dir.creates != 1 {
		t.Errorf("Expected 1 create, got %d", dir.creates)
	}
}

func TestResolve_PlaceholderAvatarWhenMissing(t *testing.T) {
	dir := newTestDirectory(t)
	r := newTestResolver(dir)
	profile := githubProfile("1", "NoPic", "")
	profile.AvatarURL = ""

	user, err := r.Resolve(context.Background(), profile)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if user.AvatarURL != al.DefaultAvatarURL {
		t.Errorf("Expected placeholder avatar, got %q", user.AvatarURL)
	}
	if user.Email != nil {
		t.Errorf("Expected no email, got %q", *user.Email)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	dir := newTestDirectory(t)
	r := newTestResolver(dir)
	ctx := context.Background()
	profile := githubProfile("42", "Ann", "ann@x.com")

	first, err := r.Resolve(ctx, profile)
	if err != nil {
		t.Fatalf("First resolve failed: %v", err)
	}
	writes := dir.writes()

	for i := 0; i < 3; i++ {
		again, err := r.Resolve(ctx, profile)
		if err != nil {
			t.Fatalf("Resolve #%d failed: %v", i+2, err)
		}
		if again.ID != first.ID {
			t.Errorf("Expected same user %s, got %s", first.ID, again.ID)
		}
	}
	if dir.writes() != writes {
		t.Errorf("Expected no writes on replay, got %d more", dir.writes()-writes)
	}
}

func TestResolve_LinksLocalAccountByEmail(t *testing.T) {
	dir := newTestDirectory(t)
	local := newTestLocal(dir)
	ctx := context.Background()
	ann := mustRegister(t, local, "Ann", "ann@x.com", "p1")

	user, err := newTestResolver(dir).Resolve(ctx, githubProfile("42", "Annie G", "ANN@x.com"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if user.ID != ann.ID {
		t.Fatalf("Expected link to %s, got new user %s", ann.ID, user.ID)
	}
	if user.PasswordHash != ann.PasswordHash {
		t.Error("Linking must preserve the password hash")
	}
	if user.Name != "Ann" {
		t.Errorf("Linking must not overwrite a name, got %q", user.Name)
	}
	if user.AvatarURL != "https://avatars.example.com/42" {
		t.Errorf("Placeholder avatar should be replaced, got %q", user.AvatarURL)
	}
	if dir.creates != 1 {
		t.Errorf("Expected only the registration create, got %d", dir.creates)
	}

	// The local password still works after linking.
	if _, err := local.Login(ctx, "ann@x.com", "p1"); err != nil {
		t.Errorf("Login after linking failed: %v", err)
	}
}

func TestResolve_KeepsCustomAvatar(t *testing.T) {
	dir := newTestDirectory(t)
	seedUser(t, dir, &al.User{ID: "u1", Name: "Ann", Email: strPtr("ann@x.com"), AvatarURL: "https://me/custom.png"})

	user, err := newTestResolver(dir).Resolve(context.Background(), githubProfile("42", "Ann", "ann@x.com"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if user.AvatarURL != "https://me/custom.png" {
		t.Errorf("Custom avatar was replaced with %q", user.AvatarURL)
	}
}

func TestResolve_FillsEmptyName(t *testing.T) {
	dir := newTestDirectory(t)
	seedUser(t, dir, &al.User{ID: "u1", Email: strPtr("ann@x.com")})

	user, err := newTestResolver(dir).Resolve(context.Background(), githubProfile("42", "Ann", "ann@x.com"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if user.Name != "Ann" {
		t.Errorf("Expected empty name to be filled, got %q", user.Name)
	}
}

func TestResolve_NameFallbackWithoutEmail(t *testing.T) {
	dir := newTestDirectory(t)
	seedUser(t, dir, &al.User{ID: "older", Name: "Kim", CreatedAt: testTime})
	seedUser(t, dir, &al.User{ID: "newer", Name: "Kim", CreatedAt: testTime.Add(time.Hour)})

	profile := al.NormalizedProfile{Provider: al.ProviderKakao, ProviderID: "777", DisplayName: "Kim"}
	user, err := newTestResolver(dir).Resolve(context.Background(), profile)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if user.ID != "older" {
		t.Errorf("Expected the earliest Kim to be linked, got %s", user.ID)
	}
	if id, _ := user.ProviderID("kakao"); id != "777" {
		t.Errorf("Expected kakao link, got %q", id)
	}
}

func TestResolve_ReplacesOldLinkForSameProvider(t *testing.T) {
	dir := newTestDirectory(t)
	seedUser(t, dir, &al.User{ID: "u1", Name: "Ann", Email: strPtr("ann@x.com"), ProviderLinks: map[string]string{"github": "old"}})

	user, err := newTestResolver(dir).Resolve(context.Background(), githubProfile("new", "Ann", "ann@x.com"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id, _ := user.ProviderID("github"); id != "new" {
		t.Errorf("Expected github link to be replaced, got %q", id)
	}
}

func TestResolve_ConflictWhenLinkOwnedByAnotherUser(t *testing.T) {
	dir := newTestDirectory(t)
	seedUser(t, dir, &al.User{ID: "a", Name: "A", Email: strPtr("a@x.com"), ProviderLinks: map[string]string{"github": "42"}})
	seedUser(t, dir, &al.User{ID: "b", Name: "B", Email: strPtr("b@x.com")})
	writes := dir.writes()

	_, err := newTestResolver(dir).Resolve(context.Background(), githubProfile("42", "B", "b@x.com"))
	assertKind(t, err, al.KindConflict, al.ErrCodeProviderLinked)
	if !errors.Is(err, al.ErrResolutionConflict) {
		t.Error("Expected errors.Is(err, ErrResolutionConflict)")
	}
	if dir.writes() != writes {
		t.Error("A conflict must not write anything")
	}

	b, _ := dir.FindByID(context.Background(), "b")
	if _, linked := b.ProviderID("github"); linked {
		t.Error("User b must not be linked")
	}
}

func TestResolve_ConflictWhenLinkOwnedAndNoMatch(t *testing.T) {
	dir := newTestDirectory(t)
	seedUser(t, dir, &al.User{ID: "a", Name: "A", Email: strPtr("a@x.com"), ProviderLinks: map[string]string{"github": "42"}})

	_, err := newTestResolver(dir).Resolve(context.Background(), githubProfile("42", "A", "changed@x.com"))
	assertKind(t, err, al.KindConflict, al.ErrCodeProviderLinked)
	if dir.creates != 1 {
		t.Errorf("Expected no new user, got %d creates", dir.creates)
	}
}

func TestResolve_Failures(t *testing.T) {
	t.Run("invalid profile", func(t *testing.T) {
		dir := newTestDirectory(t)
		_, err := newTestResolver(dir).Resolve(context.Background(), al.NormalizedProfile{Provider: "github", DisplayName: "x"})
		assertKind(t, err, al.KindValidation, al.ErrCodeMalformedProfile)
		if dir.writes() != 0 {
			t.Error("Invalid profile must not write")
		}
	})

	t.Run("storage failure", func(t *testing.T) {
		dir := newTestDirectory(t)
		dir.failWith = errBackendDown
		_, err := newTestResolver(dir).Resolve(context.Background(), githubProfile("42", "Ann", "ann@x.com"))
		assertKind(t, err, al.KindStorage, al.ErrCodeStorageFailure)
		if !errors.Is(err, errBackendDown) {
			t.Error("Expected the backend error to be wrapped")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newTestResolver(newTestDirectory(t)).Resolve(ctx, githubProfile("42", "Ann", "ann@x.com"))
		assertKind(t, err, al.KindStorage, "")
		if !errors.Is(err, context.Canceled) {
			t.Error("Expected context.Canceled to be wrapped")
		}
	})
}
