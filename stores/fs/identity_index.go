package fs

import (
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const emailIndexKind = "email"

// identityEntry maps one unique identity (an email or a provider link) to the
// user that owns it.
type identityEntry struct {
	Kind      string    `json:"kind"`
	Value     string    `json:"value"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// identityIndex keeps one JSON file per identity under
// <StoragePath>/identities so unique lookups never scan every user.
type identityIndex struct {
	root string
}

func (x identityIndex) path(kind, value string) string {
	return filepath.Join(x.root, "identities", url.PathEscape(kind+":"+value)+".json")
}

// owner returns the user id owning (kind, value) or "" if unowned.
func (x identityIndex) owner(kind, value string) (string, error) {
	var entry identityEntry
	found, err := readJSONFile(x.path(kind, value), &entry)
	if err != nil || !found {
		return "", err
	}
	return entry.UserID, nil
}

func (x identityIndex) put(kind, value, userID string, now time.Time) error {
	return writeJSONFile(x.path(kind, value), &identityEntry{
		Kind:      kind,
		Value:     value,
		UserID:    userID,
		CreatedAt: now,
	})
}

func (x identityIndex) remove(kind, value string) error {
	err := os.Remove(x.path(kind, value))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
