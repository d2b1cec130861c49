package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/fairscope-hq/expo-harvester/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// postgresGateway implements Gateway backed by a PostgreSQL database.
type postgresGateway struct {
	db   *sql.DB
	opts Options
}

// Compile-time check that postgresGateway implements Gateway.
var _ Gateway = (*postgresGateway)(nil)

// openPostgres opens a connection to the database at the given URL,
// configures the connection pool, and runs any pending migrations.
func openPostgres(databaseURL string, opts Options) (Gateway, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &postgresGateway{db: db, opts: opts}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (g *postgresGateway) Close() error {
	return g.db.Close()
}

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (g *postgresGateway) CountCompanies(ctx context.Context, eventURL string) (int, error) {
	var count int
	err := g.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM companies c
		JOIN events e ON e.id = c.event_id
		WHERE e.canonical_url = $1`,
		eventURL,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count companies: %w", err)
	}
	return count, nil
}

func (g *postgresGateway) EventExists(ctx context.Context, canonicalURL string) (bool, error) {
	var exists bool
	err := g.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM events WHERE canonical_url = $1)`,
		canonicalURL,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("event exists: %w", err)
	}
	return exists, nil
}

func (g *postgresGateway) ExistingCompanyNames(ctx context.Context, eventURL string) (map[string]bool, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT c.normalized_name
		FROM companies c
		JOIN events e ON e.id = c.event_id
		WHERE e.canonical_url = $1`,
		eventURL,
	)
	if err != nil {
		return nil, fmt.Errorf("query company names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan company name: %w", err)
		}
		names[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate company names: %w", err)
	}
	return names, nil
}

// UpsertEvent inserts the event or refreshes its mutable fields, returning
// the stable id either way.
func (g *postgresGateway) UpsertEvent(ctx context.Context, ev domain.Event) (int64, error) {
	var id int64
	err := g.db.QueryRowContext(ctx, `
		INSERT INTO events (name, event_date, canonical_url, listing_url, site_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (canonical_url) DO UPDATE
		SET name = EXCLUDED.name, event_date = EXCLUDED.event_date
		RETURNING id`,
		ev.Name,
		nullTime(ev.Date),
		ev.CanonicalURL,
		ev.ListingURL,
		ev.SiteID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert event: %w", err)
	}
	return id, nil
}

// InsertCompanies persists the batch inside one transaction. Country names
// are mapped to ids with a fallback to the configured default; the default
// industry id is stamped on every row.
func (g *postgresGateway) InsertCompanies(ctx context.Context, eventID int64, companies []domain.Company) error {
	if len(companies) == 0 {
		return nil
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, c := range companies {
		if err := insertCompany(ctx, tx, eventID, c, g.opts); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit companies: %w", err)
	}
	return nil
}

func insertCompany(ctx context.Context, db executor, eventID int64, c domain.Company, opts Options) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO companies (
			event_id, industry_id, name, normalized_name, description,
			address, country_id, phone, email, website, profile_url
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, COALESCE((SELECT id FROM countries WHERE lower(name) = lower($7)), $8),
			$9, $10, $11, $12
		)
		ON CONFLICT (event_id, normalized_name) DO NOTHING`,
		eventID,
		opts.DefaultIndustryID,
		c.Name,
		domain.NormalizeName(c.Name),
		nullString(c.Description),
		nullString(c.Address),
		c.Country,
		opts.DefaultCountryID,
		nullString(c.Phone),
		nullString(c.Email),
		nullString(c.Website),
		nullString(c.ProfileURL),
	)
	if err != nil {
		return fmt.Errorf("insert company %q: %w", c.Name, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
