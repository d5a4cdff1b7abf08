package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/loqalabs/muse-core/internal/async"
	"github.com/loqalabs/muse-core/internal/script"
)

// AsyncRepository exposes the repository as background tasks.
type AsyncRepository struct {
	r *Repository
}

func Async(r *Repository) AsyncRepository {
	return AsyncRepository{r: r}
}

// Lookup is the result of a by-id query. Found is false when the id is unknown.
type Lookup[T any] struct {
	Value T
	Found bool
}

func (a AsyncRepository) QueryAllScripts(ctx context.Context) *async.Task[[]script.Script] {
	return async.Go(ctx, a.r.QueryAllScripts)
}

func (a AsyncRepository) QueryScript(ctx context.Context, id uuid.UUID) *async.Task[Lookup[script.Script]] {
	return async.Go(ctx, func(ctx context.Context) (Lookup[script.Script], error) {
		sc, ok, err := a.r.QueryScript(ctx, id)
		return Lookup[script.Script]{Value: sc, Found: ok}, err
	})
}

func (a AsyncRepository) InsertScript(ctx context.Context, sc script.Script) *async.Task[struct{}] {
	return async.Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.r.InsertScript(ctx, sc)
	})
}

func (a AsyncRepository) DeleteScript(ctx context.Context, id uuid.UUID) *async.Task[struct{}] {
	return async.Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.r.DeleteScript(ctx, id)
	})
}

func (a AsyncRepository) QueryPhrases(ctx context.Context, id uuid.UUID) *async.Task[Lookup[Phrases]] {
	return async.Go(ctx, func(ctx context.Context) (Lookup[Phrases], error) {
		p, ok, err := a.r.QueryPhrases(ctx, id)
		return Lookup[Phrases]{Value: p, Found: ok}, err
	})
}
