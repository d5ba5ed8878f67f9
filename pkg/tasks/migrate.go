package tasks

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"

	apperr "github.com/17ms/zeronote/pkg/errors"
	"github.com/17ms/zeronote/pkg/logging"
)

// embedMigrations holds the goose SQL files so the binary carries its
// own schema.
//
//go:embed migrations/*.sql
var embedMigrations embed.FS

// Migrate applies pending schema migrations to db. It is idempotent; an
// up-to-date schema yields no results and no log lines. The caller owns
// db and closes it afterwards.
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	migrationFS, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "tasks: failed to open embedded migrations")
	}

	provider, err := goose.NewProvider(database.DialectPostgres, db, migrationFS)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternalDatabase, "tasks: failed to create migration provider")
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternalDatabase, "tasks: failed to apply migrations")
	}
	logger = logging.OrDefault(logger)
	for _, r := range results {
		logger.InfoContext(ctx, "applied migration",
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration))
	}
	return nil
}
