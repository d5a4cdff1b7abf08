package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/loqalabs/muse-core/internal/bus"
	"github.com/loqalabs/muse-core/internal/cachefs"
	"github.com/loqalabs/muse-core/internal/config"
	"github.com/loqalabs/muse-core/internal/protocol"
	"github.com/loqalabs/muse-core/internal/repo"
	"github.com/loqalabs/muse-core/internal/scriptstore"
	"github.com/loqalabs/muse-core/internal/service"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/require"
)

func startDaemon(t *testing.T) string {
	t.Helper()
	opts := test.DefaultTestOptions
	opts.Port = -1
	ns := test.RunServer(&opts)
	t.Cleanup(ns.Shutdown)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := bus.Connect(context.Background(), config.BusConfig{Servers: []string{ns.ClientURL()}, ConnectTimeout: 2000}, log)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	files, err := cachefs.New(t.TempDir())
	require.NoError(t, err)
	svc := service.New(context.Background(), client, repo.New(scriptstore.NewMemory(), files), nil, "muse", log)
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Close)
	return ns.ClientURL()
}

func TestInsertThenQueryPhrases(t *testing.T) {
	url := startDaemon(t)

	var out bytes.Buffer
	err := run("insert", []string{"-servers", url, "-title", "Intro"}, strings.NewReader("Hello   world\n\n\ntest   "), &out)
	require.NoError(t, err)
	var created protocol.Script
	require.NoError(t, json.Unmarshal(out.Bytes(), &created))
	require.Equal(t, "Intro", created.Title)

	out.Reset()
	require.NoError(t, run("phrases", []string{"-servers", url, "-id", created.ID}, nil, &out))
	var phrases protocol.Phrases
	require.NoError(t, json.Unmarshal(out.Bytes(), &phrases))
	require.Equal(t, []string{"Hello", "world", "test"}, phrases.Items)

	out.Reset()
	require.NoError(t, run("delete", []string{"-servers", url, "-id", created.ID}, nil, &out))
	require.Equal(t, "ok\n", out.String())

	err = run("get", []string{"-servers", url, "-id", created.ID}, nil, &out)
	require.EqualError(t, err, "script not found")
}

func TestUnknownCommand(t *testing.T) {
	err := run("frobnicate", nil, nil, io.Discard)
	require.ErrorContains(t, err, "unknown command")
}
