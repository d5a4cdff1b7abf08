package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/loqalabs/muse-core/internal/async"
	"github.com/loqalabs/muse-core/internal/cachefs"
	"github.com/loqalabs/muse-core/internal/script"
	"github.com/loqalabs/muse-core/internal/scriptstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/muse-core/repo"

// Repository puts the script store and the cache resolver behind one facade.
type Repository struct {
	store         scriptstore.Store
	files         cachefs.Resolver
	pool          *async.Pool
	maxTextLength int

	tracer  trace.Tracer
	ops     metric.Int64Counter
	phrases metric.Int64Histogram
}

type Option func(*Repository)

// WithPool sets the worker pool used for phrase derivation.
func WithPool(pool *async.Pool) Option {
	return func(r *Repository) { r.pool = pool }
}

func WithMaxTextLength(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.maxTextLength = n
		}
	}
}

func New(store scriptstore.Store, files cachefs.Resolver, opts ...Option) *Repository {
	r := &Repository{
		store:         store,
		files:         files,
		maxTextLength: MaxTextLength,
		tracer:        otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pool == nil {
		r.pool = async.NewPool(1)
	}

	meter := otel.Meter(instrumentationName)
	if c, err := meter.Int64Counter("muse.repo.operations", metric.WithDescription("Repository operations by result")); err == nil {
		r.ops = c
	}
	if h, err := meter.Int64Histogram("muse.repo.phrases", metric.WithDescription("Phrases derived per script")); err == nil {
		r.phrases = h
	}
	return r
}

// MaxTextLength is the configured split limit.
func (r *Repository) MaxTextLength() int { return r.maxTextLength }

func (r *Repository) QueryAllScripts(ctx context.Context) ([]script.Script, error) {
	ctx, span := r.start(ctx, "query_all_scripts")
	scripts, err := r.store.QueryAllScripts(ctx)
	r.finish(ctx, span, "query_all_scripts", err)
	return scripts, err
}

// QueryScript reports false when the script does not exist.
func (r *Repository) QueryScript(ctx context.Context, id uuid.UUID) (script.Script, bool, error) {
	ctx, span := r.start(ctx, "query_script", attribute.String("script.id", id.String()))
	sc, ok, err := r.store.QueryScript(ctx, id)
	span.SetAttributes(attribute.Bool("script.found", ok))
	r.finish(ctx, span, "query_script", err)
	return sc, ok, err
}

func (r *Repository) InsertScript(ctx context.Context, sc script.Script) error {
	ctx, span := r.start(ctx, "insert_script", attribute.String("script.id", sc.ID.String()))
	err := r.store.InsertScript(ctx, sc)
	r.finish(ctx, span, "insert_script", err)
	return err
}

func (r *Repository) DeleteScript(ctx context.Context, id uuid.UUID) error {
	ctx, span := r.start(ctx, "delete_script", attribute.String("script.id", id.String()))
	err := r.store.DeleteScript(ctx, id)
	r.finish(ctx, span, "delete_script", err)
	return err
}

// PCMCache resolves the cache file for a phrase spoken by voiceID.
func (r *Repository) PCMCache(voiceID, phrase string) (string, error) {
	return r.files.PCMCacheFile(voiceID, phrase)
}

// QueryPhrases splits the script's text into phrases on the worker pool.
// The bool is false when the script does not exist.
func (r *Repository) QueryPhrases(ctx context.Context, id uuid.UUID) (Phrases, bool, error) {
	sc, ok, err := r.QueryScript(ctx, id)
	if err != nil || !ok {
		return Phrases{}, ok, err
	}

	ctx, span := r.start(ctx, "query_phrases", attribute.String("script.id", id.String()))
	limit := r.maxTextLength
	task := async.Submit(ctx, r.pool, func(context.Context) (Phrases, error) {
		return SplitPhrases(sc.Text, limit), nil
	})
	phrases, err := task.Wait(ctx)
	if err == nil {
		span.SetAttributes(
			attribute.Int("phrases.count", len(phrases.Items)),
			attribute.Bool("phrases.truncated", phrases.Truncated),
		)
		if r.phrases != nil {
			r.phrases.Record(ctx, int64(len(phrases.Items)))
		}
	}
	r.finish(ctx, span, "query_phrases", err)
	if err != nil {
		return Phrases{}, false, err
	}
	return phrases, true, nil
}

func (r *Repository) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "muse.repo."+op, trace.WithAttributes(attrs...))
}

func (r *Repository) finish(ctx context.Context, span trace.Span, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if r.ops != nil {
		r.ops.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), attribute.String("result", result)))
	}
	span.End()
}
