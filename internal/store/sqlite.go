// Package store provides storage backends for document templates.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lexdraft/lexdraft/internal/models"
)

// DefaultDirPermissions defines the permissions for created database
// directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates an SQLite store at the configured file path. The
// parent directory is created if needed, migrations run on open, and the
// built-in templates are seeded when the table is empty.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.SQLiteDSN
	if dsn == "" {
		return nil, fmt.Errorf("SQLite DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore: failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	slog.Debug("SQLiteStore: opening database", "path", dsn)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("SQLiteStore: failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore: ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.seedBuiltins(context.Background()); err != nil {
		return nil, err
	}
	slog.Debug("SQLiteStore: ready", "path", dsn)
	return s, nil
}

// seedBuiltins inserts the built-in templates when the table is empty.
func (s *SQLiteStore) seedBuiltins(ctx context.Context) error {
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
	slog.Info("SQLiteStore: seeded built-in templates", "count", len(builtinTemplates()))
	return nil
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*models.DocumentTemplate, error) {
	var tmpl models.DocumentTemplate
	var fieldsJSON string
	err := s.db.QueryRowContext(ctx, `SELECT id, name, fields FROM document_templates WHERE id = ?`, id).
		Scan(&tmpl.ID, &tmpl.Name, &fieldsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetTemplate: query failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query template %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &tmpl.Fields); err != nil {
		slog.Error("SQLiteStore.GetTemplate: invalid fields JSON", "error", err, "id", id)
		return nil, fmt.Errorf("failed to decode fields for template %s: %w", id, err)
	}
	return &tmpl, nil
}

func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]models.DocumentTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, fields FROM document_templates ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore.ListTemplates: query failed", "error", err)
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []models.DocumentTemplate
	for rows.Next() {
		var tmpl models.DocumentTemplate
		var fieldsJSON string
		if err := rows.Scan(&tmpl.ID, &tmpl.Name, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &tmpl.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields for template %s: %w", tmpl.ID, err)
		}
		templates = append(templates, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate template rows: %w", err)
	}
	return templates, nil
}

func (s *SQLiteStore) SaveTemplate(ctx context.Context, tmpl models.DocumentTemplate) error {
	if tmpl.ID == "" {
		return &models.ValidationError{Field: "id", Reason: "template id must not be empty"}
	}
	fieldsJSON, err := json.Marshal(tmpl.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields for template %s: %w", tmpl.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO document_templates (id, name, fields, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, fields = excluded.fields, updated_at = CURRENT_TIMESTAMP`,
		tmpl.ID, tmpl.Name, string(fieldsJSON))
	if err != nil {
		slog.Error("SQLiteStore.SaveTemplate: upsert failed", "error", err, "id", tmpl.ID)
		return fmt.Errorf("failed to save template %s: %w", tmpl.ID, err)
	}
	slog.Debug("SQLiteStore.SaveTemplate: saved", "id", tmpl.ID)
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
