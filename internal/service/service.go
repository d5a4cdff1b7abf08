// Package service answers repository and export requests over NATS.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/muse-core/internal/bus"
	"github.com/loqalabs/muse-core/internal/cachefs"
	"github.com/loqalabs/muse-core/internal/export"
	"github.com/loqalabs/muse-core/internal/protocol"
	"github.com/loqalabs/muse-core/internal/repo"
	"github.com/loqalabs/muse-core/internal/script"
	"github.com/nats-io/nats.go"
)

const requestTimeout = 30 * time.Second

type Service struct {
	bus      *bus.Client
	repo     *repo.Repository
	exporter *export.Pipeline
	queue    string
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	subs   []*nats.Subscription
}

type handlerFunc func(ctx context.Context, data []byte) (any, bool, error)

func New(parent context.Context, busClient *bus.Client, r *repo.Repository, exporter *export.Pipeline, queue string, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:      busClient,
		repo:     r,
		exporter: exporter,
		queue:    queue,
		logger:   log.With(slog.String("component", "script-service")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Service) Start() error {
	routes := map[string]handlerFunc{
		protocol.SubjectScriptsList:   s.handleList,
		protocol.SubjectScriptsGet:    s.handleGet,
		protocol.SubjectScriptsInsert: s.handleInsert,
		protocol.SubjectScriptsDelete: s.handleDelete,
		protocol.SubjectPhrasesQuery:  s.handlePhrases,
		protocol.SubjectCacheResolve:  s.handleCacheResolve,
	}
	if s.exporter != nil {
		routes[protocol.SubjectExportRequest] = s.handleExport
	}

	for subject, handler := range routes {
		sub, err := s.bus.Conn().QueueSubscribe(subject, s.queue, s.dispatch(subject, handler))
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	s.logger.Info("script service started", slog.Int("subjects", len(s.subs)))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.unsubscribe()
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return len(s.subs) > 0 && s.bus.Healthy() }

func (s *Service) unsubscribe() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *Service) dispatch(subject string, handler handlerFunc) nats.MsgHandler {
	return func(msg *nats.Msg) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
			defer cancel()

			data, found, err := handler(ctx, msg.Data)
			reply := protocol.Reply{OK: err == nil, NotFound: !found && err == nil}
			if err != nil {
				reply.Error = err.Error()
				s.logger.Warn("request failed", slog.String("subject", subject), slogError(err))
			} else if data != nil {
				encoded, encErr := json.Marshal(data)
				if encErr != nil {
					reply = protocol.Reply{Error: encErr.Error()}
				} else {
					reply.Data = encoded
				}
			}
			s.respond(msg, reply)
		}()
	}
}

func (s *Service) respond(msg *nats.Msg, reply protocol.Reply) {
	if msg.Reply == "" {
		return
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("failed to marshal reply", slogError(err))
		return
	}
	if err := msg.Respond(payload); err != nil {
		s.logger.Warn("failed to send reply", slogError(err))
	}
}

func (s *Service) handleList(ctx context.Context, _ []byte) (any, bool, error) {
	scripts, err := s.repo.QueryAllScripts(ctx)
	if err != nil {
		return nil, false, err
	}
	out := make([]protocol.Script, 0, len(scripts))
	for _, sc := range scripts {
		out = append(out, toWire(sc))
	}
	return out, true, nil
}

func (s *Service) handleGet(ctx context.Context, data []byte) (any, bool, error) {
	id, err := decodeRef(data)
	if err != nil {
		return nil, false, err
	}
	sc, ok, err := s.repo.QueryScript(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return toWire(sc), true, nil
}

func (s *Service) handleInsert(ctx context.Context, data []byte) (any, bool, error) {
	var req protocol.InsertScript
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, false, fmt.Errorf("decode insert request: %w", err)
	}
	sc := script.New(req.Title, req.Text)
	if !req.CreatedAt.IsZero() {
		sc = script.NewAt(req.Title, req.Text, req.CreatedAt)
	}
	if req.ID != "" {
		id, err := script.ParseID(req.ID)
		if err != nil {
			return nil, false, err
		}
		sc.ID = id
	}
	if err := s.repo.InsertScript(ctx, sc); err != nil {
		return nil, false, err
	}
	return toWire(sc), true, nil
}

func (s *Service) handleDelete(ctx context.Context, data []byte) (any, bool, error) {
	id, err := decodeRef(data)
	if err != nil {
		return nil, false, err
	}
	return nil, true, s.repo.DeleteScript(ctx, id)
}

func (s *Service) handlePhrases(ctx context.Context, data []byte) (any, bool, error) {
	id, err := decodeRef(data)
	if err != nil {
		return nil, false, err
	}
	phrases, ok, err := s.repo.QueryPhrases(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return protocol.Phrases{ScriptID: id.String(), Items: phrases.Items, Truncated: phrases.Truncated}, true, nil
}

func (s *Service) handleCacheResolve(_ context.Context, data []byte) (any, bool, error) {
	var req protocol.CacheResolve
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, false, fmt.Errorf("decode cache request: %w", err)
	}
	if req.VoiceID == "" || req.Phrase == "" {
		return nil, false, errors.New("voice_id and phrase are required")
	}
	path, err := s.repo.PCMCache(req.VoiceID, req.Phrase)
	if err != nil {
		return nil, false, err
	}
	exists, err := cachefs.Exists(path)
	if err != nil {
		return nil, false, err
	}
	return protocol.CachePath{Path: path, Exists: exists}, true, nil
}

func (s *Service) handleExport(ctx context.Context, data []byte) (any, bool, error) {
	var req protocol.ExportRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, false, fmt.Errorf("decode export request: %w", err)
	}
	id, err := script.ParseID(req.ScriptID)
	if err != nil {
		return nil, false, err
	}
	result, err := s.exporter.Export(ctx, export.Request{ScriptID: id, VoiceID: req.VoiceID, OutputPath: req.OutputPath})
	if errors.Is(err, export.ErrScriptNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

func decodeRef(data []byte) (uuid.UUID, error) {
	var ref protocol.ScriptRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return uuid.Nil, fmt.Errorf("decode script ref: %w", err)
	}
	return script.ParseID(ref.ID)
}

func toWire(sc script.Script) protocol.Script {
	return protocol.Script{
		ID:        sc.ID.String(),
		Title:     sc.Title,
		Text:      sc.Text,
		Summary:   sc.Summary(),
		CreatedAt: sc.CreatedAt,
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
