package fs

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	al "github.com/panyam/accountlink"
)

// FSUserDirectory stores users as JSON files under <StoragePath>/users and
// keeps a unique identity index for emails and provider links.
type FSUserDirectory struct {
	StoragePath string

	// Now is used for index timestamps; defaults to time.Now.
	Now func() time.Time

	mu sync.RWMutex
}

func NewFSUserDirectory(storagePath string) *FSUserDirectory {
	return &FSUserDirectory{StoragePath: storagePath}
}

func (s *FSUserDirectory) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *FSUserDirectory) index() identityIndex {
	return identityIndex{root: s.StoragePath}
}

func (s *FSUserDirectory) getUserPath(userId string) string {
	return filepath.Join(s.StoragePath, "users", url.PathEscape(userId)+".json")
}

func (s *FSUserDirectory) readUser(userId string) (*al.User, error) {
	var user al.User
	found, err := readJSONFile(s.getUserPath(userId), &user)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("user not found: %s: %w", userId, al.ErrNotFound)
	}
	if user.ProviderLinks == nil {
		user.ProviderLinks = map[string]string{}
	}
	return &user, nil
}

func (s *FSUserDirectory) FindByID(ctx context.Context, id string) (*al.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readUser(id)
}

func (s *FSUserDirectory) FindByEmail(ctx context.Context, email string) (*al.User, error) {
	return s.findByIdentity(emailIndexKind, al.NormalizeEmail(email))
}

func (s *FSUserDirectory) FindByProviderLink(ctx context.Context, provider, providerID string) (*al.User, error) {
	return s.findByIdentity(provider, providerID)
}

func (s *FSUserDirectory) findByIdentity(kind, value string) (*al.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, err := s.index().owner(kind, value)
	if err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, fmt.Errorf("no user for %s %s: %w", kind, value, al.ErrNotFound)
	}
	return s.readUser(owner)
}

// FindByName scans every user file.  Names are not unique so there is no
// index for them.
func (s *FSUserDirectory) FindByName(ctx context.Context, name string) (*al.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.StoragePath, "users"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no user named %s: %w", name, al.ErrNotFound)
		}
		return nil, err
	}

	var earliest *al.User
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		var user al.User
		found, err := readJSONFile(filepath.Join(s.StoragePath, "users", entry.Name()), &user)
		if err != nil {
			return nil, err
		}
		if !found || user.Name != name {
			continue
		}
		if earliest == nil || user.CreatedAt.Before(earliest.CreatedAt) {
			earliest = &user
		}
	}
	if earliest == nil {
		return nil, fmt.Errorf("no user named %s: %w", name, al.ErrNotFound)
	}
	if earliest.ProviderLinks == nil {
		earliest.ProviderLinks = map[string]string{}
	}
	return earliest, nil
}

func (s *FSUserDirectory) Create(ctx context.Context, user *al.User) (*al.User, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.getUserPath(user.ID)); err == nil {
		return nil, fmt.Errorf("user %s: %w", user.ID, al.ErrDuplicate)
	}

	stored := user.Clone()
	if stored.Email != nil {
		email := al.NormalizeEmail(*stored.Email)
		stored.Email = &email
	}
	if err := s.checkIdentities(stored, nil); err != nil {
		return nil, err
	}
	if err := writeJSONFile(s.getUserPath(stored.ID), stored); err != nil {
		return nil, err
	}
	if err := s.reindex(nil, stored); err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

func (s *FSUserDirectory) Update(ctx context.Context, id string, patch al.UserPatch) (*al.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := s.readUser(id)
	if err != nil {
		return nil, err
	}
	after := before.Clone()
	patch.Apply(after, s.now())

	if err := s.checkIdentities(after, before); err != nil {
		return nil, err
	}
	if err := writeJSONFile(s.getUserPath(id), after); err != nil {
		return nil, err
	}
	if err := s.reindex(before, after); err != nil {
		return nil, err
	}
	return after.Clone(), nil
}

// checkIdentities fails with ErrDuplicate if any identity of user is owned by
// someone else.  Must be called with the write lock held.
func (s *FSUserDirectory) checkIdentities(user, before *al.User) error {
	idx := s.index()
	check := func(kind, value string) error {
		owner, err := idx.owner(kind, value)
		if err != nil {
			return err
		}
		if owner != "" && owner != user.ID {
			return fmt.Errorf("%s %s: %w", kind, value, al.ErrDuplicate)
		}
		return nil
	}
	if user.Email != nil && (before == nil || before.EmailValue() != *user.Email) {
		if err := check(emailIndexKind, *user.Email); err != nil {
			return err
		}
	}
	for provider, providerID := range user.ProviderLinks {
		if err := check(provider, providerID); err != nil {
			return err
		}
	}
	return nil
}

// reindex moves index entries from before to after.  before is nil for new
// users.
func (s *FSUserDirectory) reindex(before, after *al.User) error {
	idx := s.index()
	now := s.now()
	if before != nil {
		if before.Email != nil && before.EmailValue() != after.EmailValue() {
			if err := idx.remove(emailIndexKind, *before.Email); err != nil {
				return err
			}
		}
		for provider, providerID := range before.ProviderLinks {
			if after.ProviderLinks[provider] != providerID {
				if err := idx.remove(provider, providerID); err != nil {
					return err
				}
			}
		}
	}
	if after.Email != nil {
		if err := idx.put(emailIndexKind, *after.Email, after.ID, now); err != nil {
			return err
		}
	}
	for provider, providerID := range after.ProviderLinks {
		if err := idx.put(provider, providerID, after.ID, now); err != nil {
			return err
		}
	}
	return nil
}
