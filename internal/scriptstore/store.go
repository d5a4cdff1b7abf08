package scriptstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/loqalabs/muse-core/internal/config"
	"github.com/loqalabs/muse-core/internal/script"
)

// ErrUnavailable marks failures of the backing engine. Callers match it with errors.Is.
var ErrUnavailable = errors.New("script store unavailable")

// Store persists scripts by identifier.
type Store interface {
	QueryAllScripts(ctx context.Context) ([]script.Script, error)
	// QueryScript reports false when no script has the given id.
	QueryScript(ctx context.Context, id uuid.UUID) (script.Script, bool, error)
	// InsertScript replaces any existing record with the same id.
	InsertScript(ctx context.Context, s script.Script) error
	// DeleteScript is a no-op for unknown ids.
	DeleteScript(ctx context.Context, id uuid.UUID) error
	Close() error
}

// StoreError wraps an engine failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrUnavailable, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrUnavailable }

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// Open returns the backend selected by cfg.Mode.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (Store, error) {
	switch cfg.Mode {
	case "memory":
		log.Info("script store opened", slog.String("mode", "memory"))
		return NewMemory(), nil
	case "sqlite", "":
		return OpenSQLite(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown store mode %q", cfg.Mode)
	}
}
