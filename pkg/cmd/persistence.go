package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/promoflow/pkg/persistence"
	"github.com/dukex/promoflow/pkg/persistence/file"
	"github.com/dukex/promoflow/pkg/persistence/postgresql"
)

// NewPersistence picks the implementation from the URL scheme. Anything that
// is not a PostgreSQL URL is treated as a file:// directory.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	if postgresql.IsURL(databaseURL) {
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to connect to PostgreSQL: %w", err))
		}

		return p
	}

	return file.NewPersistence(databaseURL)
}
