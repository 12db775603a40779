package accountlink_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	al "github.com/panyam/accountlink"
	"github.com/panyam/accountlink/stores/fs"
)

var testTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

// recordingDirectory wraps a directory and counts writes.  failWith, when
// set, is returned by every call.
type recordingDirectory struct {
	al.UserDirectory
	creates  int
	updates  int
	failWith error
}

func (d *recordingDirectory) FindByID(ctx context.Context, id string) (*al.User, error) {
	if d.failWith != nil {
		return nil, d.failWith
	}
	return d.UserDirectory.FindByID(ctx, id)
}

func (d *recordingDirectory) FindByEmail(ctx context.Context, email string) (*al.User, error) {
	if d.failWith != nil {
		return nil, d.failWith
	}
	return d.UserDirectory.FindByEmail(ctx, email)
}

func (d *recordingDirectory) FindByName(ctx context.Context, name string) (*al.User, error) {
	if d.failWith != nil {
		return nil, d.failWith
	}
	return d.UserDirectory.FindByName(ctx, name)
}

func (d *recordingDirectory) FindByProviderLink(ctx context.Context, provider, providerID string) (*al.User, error) {
	if d.failWith != nil {
		return nil, d.failWith
	}
	return d.UserDirectory.FindByProviderLink(ctx, provider, providerID)
}

func (d *recordingDirectory) Create(ctx context.Context, user *al.User) (*al.User, error) {
	if d.failWith != nil {
		return nil, d.failWith
	}
	d.creates++
	return d.UserDirectory.Create(ctx, user)
}

func (d *recordingDirectory) Update(ctx context.Context, id string, patch al.UserPatch) (*al.User, error) {
	if d.failWith != nil {
		return nil, d.failWith
	}
	d.updates++
	return d.UserDirectory.Update(ctx, id, patch)
}

func (d *recordingDirectory) writes() int { return d.creates + d.updates }

var errBackendDown = errors.New("backend down")

func newTestDirectory(t *testing.T) *recordingDirectory {
	t.Helper()
	return &recordingDirectory{UserDirectory: fs.NewFSUserDirectory(t.TempDir())}
}

// newTestLocal returns LocalCredentials with a cheap bcrypt cost.
func newTestLocal(dir al.UserDirectory) *al.LocalCredentials {
	local := al.NewLocalCredentials(dir)
	local.Hasher = al.BcryptHasher{Cost: bcrypt.MinCost}
	local.Now = func() time.Time { return testTime }
	return local
}

func newTestAuthenticator(dir al.UserDirectory) *al.Authenticator {
	auth := al.NewAuthenticator(dir)
	auth.Local = newTestLocal(dir)
	return auth
}

// seedUser stores a user directly, bypassing registration.
func seedUser(t *testing.T, dir al.UserDirectory, u *al.User) *al.User {
	t.Helper()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = testTime
	}
	if u.ProviderLinks == nil {
		u.ProviderLinks = map[string]string{}
	}
	created, err := dir.Create(context.Background(), u)
	if err != nil {
		t.Fatalf("Failed to seed user %s: %v", u.ID, err)
	}
	return created
}

func mustRegister(t *testing.T, local *al.LocalCredentials, name, email, password string) *al.User {
	t.Helper()
	reg := al.Registration{Name: name, Password: password, PasswordConfirmation: password}
	if email != "" {
		reg.Email = &email
	}
	user, err := local.Register(context.Background(), reg)
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", name, err)
	}
	return user
}

func assertKind(t *testing.T, err error, kind al.Kind, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s error %q, got nil", kind, code)
	}
	if got := al.KindOf(err); got != kind {
		t.Errorf("Expected kind %s, got %s (%v)", kind, got, err)
	}
	if code != "" {
		if got := al.CodeOf(err); got != code {
			t.Errorf("Expected code %q, got %q (%v)", code, got, err)
		}
	}
}
