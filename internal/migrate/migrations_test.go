package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"missionline/internal/db"
	"missionline/internal/migrate"
)

func TestVersionTracksMigrations(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()

	v, err := migrate.Version(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, 0, v)

	require.NoError(t, migrate.MigrateContext(ctx, conn))
	v, err = migrate.Version(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	// second run is a no-op
	require.NoError(t, migrate.MigrateContext(ctx, conn))
	again, err := migrate.Version(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, v, again)
}
