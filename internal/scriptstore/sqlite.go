package scriptstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/muse-core/internal/config"
	"github.com/loqalabs/muse-core/internal/script"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the persistent Store backed by a single SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	cfg config.StoreConfig
	log *slog.Logger
}

// OpenSQLite opens (and if needed creates) the database at cfg.Path.
func OpenSQLite(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, unavailable("create data dir", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("open sqlite", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable("ping sqlite", err)
	}

	s := &SQLiteStore{db: db, cfg: cfg, log: log.With(slog.String("component", "script-store"))}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, unavailable("init schema", err)
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			s.log.Warn("script store vacuum failed", slog.String("error", err.Error()))
		}
	}

	s.log.Info("script store opened", slog.String("mode", "sqlite"), slog.String("path", cfg.Path))
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS scripts (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    text TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scripts_created ON scripts(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *SQLiteStore) vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// QueryAllScripts returns every script in insertion order.
func (s *SQLiteStore) QueryAllScripts(ctx context.Context) ([]script.Script, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, text, created_at FROM scripts ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, unavailable("query scripts", err)
	}
	defer rows.Close()

	scripts := []script.Script{}
	for rows.Next() {
		sc, err := scanScript(rows)
		if err != nil {
			return nil, unavailable("scan script", err)
		}
		scripts = append(scripts, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query scripts", err)
	}
	return scripts, nil
}

func (s *SQLiteStore) QueryScript(ctx context.Context, id uuid.UUID) (script.Script, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, text, created_at FROM scripts WHERE id = ?`, id.String())
	sc, err := scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return script.Script{}, false, nil
	}
	if err != nil {
		return script.Script{}, false, unavailable("query script", err)
	}
	return sc, true, nil
}

func (s *SQLiteStore) InsertScript(ctx context.Context, sc script.Script) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scripts(id, title, text, created_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title=excluded.title, text=excluded.text, created_at=excluded.created_at`,
		sc.ID.String(), sc.Title, sc.Text, sc.CreatedAtMillis())
	return unavailable("insert script", err)
}

func (s *SQLiteStore) DeleteScript(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scripts WHERE id = ?`, id.String())
	return unavailable("delete script", err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanScript(row scanner) (script.Script, error) {
	var (
		rawID   string
		sc      script.Script
		created int64
	)
	if err := row.Scan(&rawID, &sc.Title, &sc.Text, &created); err != nil {
		return script.Script{}, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return script.Script{}, fmt.Errorf("decode id %q: %w", rawID, err)
	}
	sc.ID = id
	sc.CreatedAt = time.UnixMilli(created).UTC()
	return sc, nil
}
