package automation

import (
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewPostgresStore opens a Postgres-backed automation job store at dsn,
// running goose migrations before returning, per the expanded spec's
// Postgres-capable automation repository. Grounded on ncecere-raito and
// benjamindataiads-feedenrich, the two pack repos that pair pgx/v5 with
// goose/v3 for their own job/ingestion tables.
func NewPostgresStore(dsn string) (*Store, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("automation: parsing postgres dsn: %w", err)
	}
	db := stdlib.OpenDB(*cfg)

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("automation: setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("automation: running migrations: %w", err)
	}

	return &Store{db: db, dialect: postgresDialect()}, nil
}
