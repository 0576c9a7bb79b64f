// Package postgresql provides PostgreSQL persistence for workflow records and artifacts.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/promoflow/pkg/persistence"
	"github.com/dukex/promoflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	packageRepo  *PackageRepository
	artifactRepo *ArtifactRepository
}

// NewPersistence connects to PostgreSQL and brings the schema up to date.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	err = Migrate(ctx, logger, database)
	if err != nil {
		_ = database.Close()

		return nil, err
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		packageRepo:  NewPackageRepository(database, logger),
		artifactRepo: NewArtifactRepository(database, logger),
	}, nil
}

// IsURL reports whether databaseURL points at PostgreSQL.
func IsURL(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://")
}

// Open opens and pings the database.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return database, nil
}

// Migrate applies every pending schema migration.
func Migrate(ctx context.Context, logger *slog.Logger, database *sql.DB) error {
	err := sqlbase.NewMigrationManager(logger, database, migrations()).RunMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) PackageRepository() persistence.PackageRepository {
	return p.packageRepo
}

func (p *Persistence) ArtifactRepository() persistence.ArtifactRepository {
	return p.artifactRepo
}
