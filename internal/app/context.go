package app

import (
	"context"
	"database/sql"
	"fmt"

	"missionline/internal/config"
	"missionline/internal/db"
	"missionline/internal/engine"
	"missionline/internal/migrate"
)

// Workspace is an opened, migrated workspace.
type Workspace struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

func (w Workspace) Close() error {
	return w.DB.Close()
}

// Open opens the workspace database, applies migrations and loads
// missionline.yml when present, falling back to defaults. The config's
// catalog is imported; mission types that already exist are left alone.
func Open(ctx context.Context, workspace string) (Workspace, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return Workspace{}, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return Workspace{}, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return Workspace{}, err
	}
	seed := cfg != nil
	if cfg == nil {
		cfg = config.Default()
	}
	eng := engine.New(conn)
	if seed {
		if _, err := eng.ImportCatalog(ctx, cfg.Catalog.MissionTypes); err != nil {
			conn.Close()
			return Workspace{}, fmt.Errorf("import catalog: %w", err)
		}
	}
	return Workspace{DB: conn, Config: cfg, Engine: eng}, nil
}
