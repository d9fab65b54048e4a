// Package store provides storage backends for document templates.
//
// Three backends share one interface: an in-memory store seeded with the
// built-in templates, an SQLite store for single-node deployments, and a
// PostgreSQL store. A lookup miss is (nil, nil), not an error; callers treat
// missing templates as a soft condition.
package store

import (
	"context"
	"strings"

	"github.com/lexdraft/lexdraft/internal/models"
)

// Store is the template storage interface shared by all backends.
type Store interface {
	// GetTemplate returns the template with the given id, or (nil, nil) when
	// no such template exists.
	GetTemplate(ctx context.Context, id string) (*models.DocumentTemplate, error)
	// ListTemplates returns all stored templates.
	ListTemplates(ctx context.Context) ([]models.DocumentTemplate, error)
	// SaveTemplate inserts or replaces a template by id.
	SaveTemplate(ctx context.Context, tmpl models.DocumentTemplate) error
	// Close releases the backend's resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	// PostgresDSN is the PostgreSQL connection string.
	PostgresDSN string
	// SQLiteDSN is the SQLite database file path.
	SQLiteDSN string
}

// Option configures store creation.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.PostgresDSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.SQLiteDSN = dsn }
}

// DSN type constants returned by DetectDSNType.
const (
	DSNTypePostgres = "postgres"
	DSNTypeSQLite   = "sqlite"
)

// DetectDSNType inspects a DSN and reports which backend it addresses.
// Anything that is not recognizably a PostgreSQL connection string is
// treated as an SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DSNTypePostgres
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// NewStore creates the backend matching the supplied options: PostgreSQL when
// a Postgres DSN is set, SQLite when an SQLite DSN is set, and the seeded
// in-memory store otherwise.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.PostgresDSN != "":
		return NewPostgresStore(opts...)
	case cfg.SQLiteDSN != "":
		return NewSQLiteStore(opts...)
	default:
		return NewInMemoryStore(), nil
	}
}
