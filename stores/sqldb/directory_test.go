package sqldb

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	al "github.com/panyam/accountlink"
	"github.com/panyam/accountlink/stores/storetest"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDirectory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) al.UserDirectory {
		return NewDirectory(openTestDB(t))
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(context.Background(), db))

	var tables []string
	require.NoError(t, db.Select(&tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'provider_links', 'user_videos') ORDER BY name`))
	assert.Equal(t, []string{"provider_links", "user_videos", "users"}, tables)
}

func TestDirectory_SchemaEnforcesUniqueness(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	dir := NewDirectory(db)

	u := storetest.NewUser("u1", "Ann", "ann@x.com", time.Now().UTC())
	u.ProviderLinks["github"] = "42"
	_, err := dir.Create(ctx, u)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO provider_links (provider, provider_id, user_id, created_at) VALUES ('github', '43', 'u1', ?)`, time.Now())
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))

	_, err = db.Exec(`INSERT INTO users (id, email, created_at, updated_at) VALUES ('u2', 'ann@x.com', ?, ?)`, time.Now(), time.Now())
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := gooseDialect("mysql")
	assert.Error(t, err)
}
