// Package store provides storage backends for document templates.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/lexdraft/lexdraft/internal/models"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the maximum number of open connections.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the maximum number of idle connections.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the maximum amount of time a connection may
	// be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL store from the configured DSN.
// Migrations run on open and the built-in templates are seeded when the
// table is empty.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.PostgresDSN
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL DSN not set")
	}

	slog.Debug("PostgresStore: opening database")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("PostgresStore: failed to open connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore: ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.seedBuiltins(context.Background()); err != nil {
		return nil, err
	}
	slog.Debug("PostgresStore: ready")
	return s, nil
}

func (s *PostgresStore) seedBuiltins(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_templates`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count templates: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, tmpl := range builtinTemplates() {
		if err := s.SaveTemplate(ctx, tmpl); err != nil {
			return err
		}
	}
	slog.Info("PostgresStore: seeded built-in templates", "count", len(builtinTemplates()))
	return nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (*models.DocumentTemplate, error) {
	var tmpl models.DocumentTemplate
	var fieldsJSON []byte
	err := s.db.QueryRowContext(ctx, `SELECT id, name, fields FROM document_templates WHERE id = $1`, id).
		Scan(&tmpl.ID, &tmpl.Name, &fieldsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetTemplate: query failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query template %s: %w", id, err)
	}
	if err := json.Unmarshal(fieldsJSON, &tmpl.Fields); err != nil {
		slog.Error("PostgresStore.GetTemplate: invalid fields JSON", "error", err, "id", id)
		return nil, fmt.Errorf("failed to decode fields for template %s: %w", id, err)
	}
	return &tmpl, nil
}

func (s *PostgresStore) ListTemplates(ctx context.Context) ([]models.DocumentTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, fields FROM document_templates ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore.ListTemplates: query failed", "error", err)
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []models.DocumentTemplate
	for rows.Next() {
		var tmpl models.DocumentTemplate
		var fieldsJSON []byte
		if err := rows.Scan(&tmpl.ID, &tmpl.Name, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		if err := json.Unmarshal(fieldsJSON, &tmpl.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields for template %s: %w", tmpl.ID, err)
		}
		templates = append(templates, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate template rows: %w", err)
	}
	return templates, nil
}

func (s *PostgresStore) SaveTemplate(ctx context.Context, tmpl models.DocumentTemplate) error {
	if tmpl.ID == "" {
		return &models.ValidationError{Field: "id", Reason: "template id must not be empty"}
	}
	fieldsJSON, err := json.Marshal(tmpl.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields for template %s: %w", tmpl.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO document_templates (id, name, fields, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, fields = EXCLUDED.fields, updated_at = NOW()`,
		tmpl.ID, tmpl.Name, fieldsJSON)
	if err != nil {
		slog.Error("PostgresStore.SaveTemplate: upsert failed", "error", err, "id", tmpl.ID)
		return fmt.Errorf("failed to save template %s: %w", tmpl.ID, err)
	}
	slog.Debug("PostgresStore.SaveTemplate: saved", "id", tmpl.ID)
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
