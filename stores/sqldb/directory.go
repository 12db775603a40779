package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	al "github.com/panyam/accountlink"
)

const userColumns = `id, name, email, avatar_url, password_hash, created_at, updated_at`

type userRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        *string   `db:"email"`
	AvatarURL    string    `db:"avatar_url"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type linkRow struct {
	Provider   string    `db:"provider"`
	ProviderID string    `db:"provider_id"`
	UserID     string    `db:"user_id"`
	CreatedAt  time.Time `db:"created_at"`
}

type videoRow struct {
	UserID   string `db:"user_id"`
	VideoID  string `db:"video_id"`
	Position int    `db:"position"`
}

// Directory implements accountlink.UserDirectory over sqlx.
type Directory struct {
	db  *sqlx.DB
	Now func() time.Time
}

func NewDirectory(db *sqlx.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func load(ctx context.Context, q sqlx.ExtContext, what, where string, args ...any) (*al.User, error) {
	var row userRow
	query := q.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + where + ` ORDER BY created_at ASC LIMIT 1`)
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", what, al.ErrNotFound)
		}
		return nil, err
	}

	var links []linkRow
	err := sqlx.SelectContext(ctx, q, &links,
		q.Rebind(`SELECT provider, provider_id, user_id, created_at FROM provider_links WHERE user_id = ?`), row.ID)
	if err != nil {
		return nil, err
	}
	var videos []string
	err = sqlx.SelectContext(ctx, q, &videos,
		q.Rebind(`SELECT video_id FROM user_videos WHERE user_id = ? ORDER BY position`), row.ID)
	if err != nil {
		return nil, err
	}

	user := &al.User{
		ID:            row.ID,
		Name:          row.Name,
		Email:         row.Email,
		AvatarURL:     row.AvatarURL,
		PasswordHash:  row.PasswordHash,
		ProviderLinks: make(map[string]string, len(links)),
		VideoIDs:      videos,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	for _, link := range links {
		user.ProviderLinks[link.Provider] = link.ProviderID
	}
	return user, nil
}

func (d *Directory) FindByID(ctx context.Context, id string) (*al.User, error) {
	return load(ctx, d.db, "user "+id, "id = ?", id)
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (*al.User, error) {
	email = al.NormalizeEmail(email)
	return load(ctx, d.db, "email "+email, "email = ?", email)
}

func (d *Directory) FindByName(ctx context.Context, name string) (*al.User, error) {
	return load(ctx, d.db, "name "+name, "name = ?", name)
}

func (d *Directory) FindByProviderLink(ctx context.Context, provider, providerID string) (*al.User, error) {
	return load(ctx, d.db, provider+" link "+providerID,
		"id = (SELECT user_id FROM provider_links WHERE provider = ? AND provider_id = ?)", provider, providerID)
}

// ensureUnowned fails with al.ErrDuplicate when query yields an owner other
// than userID.
func ensureUnowned(ctx context.Context, tx *sqlx.Tx, userID, what, query string, args ...any) error {
	var owners []string
	if err := tx.SelectContext(ctx, &owners, tx.Rebind(query), args...); err != nil {
		return err
	}
	for _, owner := range owners {
		if owner != userID {
			return fmt.Errorf("%s: %w", what, al.ErrDuplicate)
		}
	}
	return nil
}

func checkIdentities(ctx context.Context, tx *sqlx.Tx, user *al.User) error {
	if user.Email != nil {
		err := ensureUnowned(ctx, tx, user.ID, "email "+*user.Email,
			`SELECT id FROM users WHERE email = ?`, *user.Email)
		if err != nil {
			return err
		}
	}
	for provider, providerID := range user.ProviderLinks {
		err := ensureUnowned(ctx, tx, user.ID, provider+" link "+providerID,
			`SELECT user_id FROM provider_links WHERE provider = ? AND provider_id = ?`, provider, providerID)
		if err != nil {
			return err
		}
	}
	return nil
}

func translate(err error, what string) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", what, al.ErrDuplicate)
	}
	return err
}

func insertLink(ctx context.Context, tx *sqlx.Tx, link linkRow) error {
	_, err := sqlx.NamedExecContext(ctx, tx,
		`INSERT INTO provider_links (provider, provider_id, user_id, created_at)
		 VALUES (:provider, :provider_id, :user_id, :created_at)`, link)
	return translate(err, link.Provider+" link "+link.ProviderID)
}

func (d *Directory) Create(ctx context.Context, user *al.User) (*al.User, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	stored := user.Clone()
	if stored.Email != nil {
		stored.Email = al.OptionalEmail(*stored.Email)
	}
	now := d.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}

	err := withTx(ctx, d.db, func(tx *sqlx.Tx) error {
		var count int
		if err := tx.GetContext(ctx, &count, tx.Rebind(`SELECT COUNT(*) FROM users WHERE id = ?`), stored.ID); err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("user %s: %w", stored.ID, al.ErrDuplicate)
		}
		if err := checkIdentities(ctx, tx, stored); err != nil {
			return err
		}

		_, err := sqlx.NamedExecContext(ctx, tx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES (:id, :name, :email, :avatar_url, :password_hash, :created_at, :updated_at)`,
			userRow{
				ID:           stored.ID,
				Name:         stored.Name,
				Email:        stored.Email,
				AvatarURL:    stored.AvatarURL,
				PasswordHash: stored.PasswordHash,
				CreatedAt:    stored.CreatedAt,
				UpdatedAt:    stored.UpdatedAt,
			})
		if err != nil {
			return translate(err, "user "+stored.ID)
		}
		for provider, providerID := range stored.ProviderLinks {
			link := linkRow{Provider: provider, ProviderID: providerID, UserID: stored.ID, CreatedAt: now}
			if err := insertLink(ctx, tx, link); err != nil {
				return err
			}
		}
		for i, videoID := range stored.VideoIDs {
			_, err := sqlx.NamedExecContext(ctx, tx,
				`INSERT INTO user_videos (user_id, video_id, position) VALUES (:user_id, :video_id, :position)`,
				videoRow{UserID: stored.ID, VideoID: videoID, Position: i})
			if err != nil {
				return translate(err, "video "+videoID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (d *Directory) Update(ctx context.Context, id string, patch al.UserPatch) (*al.User, error) {
	var updated *al.User
	err := withTx(ctx, d.db, func(tx *sqlx.Tx) error {
		before, err := load(ctx, tx, "user "+id, "id = ?", id)
		if err != nil {
			return err
		}
		after := before.Clone()
		now := d.now()
		patch.Apply(after, now)
		if err := checkIdentities(ctx, tx, after); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(
			`UPDATE users SET name = ?, email = ?, avatar_url = ?, password_hash = ?, updated_at = ? WHERE id = ?`),
			after.Name, after.Email, after.AvatarURL, after.PasswordHash, after.UpdatedAt, id)
		if err != nil {
			return translate(err, "user "+id)
		}

		for provider, providerID := range patch.ProviderLinks {
			old, had := before.ProviderLinks[provider]
			if had && old == providerID {
				continue
			}
			if had {
				_, err := tx.ExecContext(ctx, tx.Rebind(
					`DELETE FROM provider_links WHERE provider = ? AND provider_id = ?`), provider, old)
				if err != nil {
					return err
				}
			}
			link := linkRow{Provider: provider, ProviderID: providerID, UserID: id, CreatedAt: now}
			if err := insertLink(ctx, tx, link); err != nil {
				return err
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
