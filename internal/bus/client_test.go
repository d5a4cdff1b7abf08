package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/muse-core/internal/config"
	"github.com/loqalabs/muse-core/internal/protocol"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T) *Client {
	t.Helper()
	opts := test.DefaultTestOptions
	opts.Port = -1
	ns := test.RunServer(&opts)
	t.Cleanup(ns.Shutdown)

	client, err := Connect(context.Background(), config.BusConfig{Servers: []string{ns.ClientURL()}, ConnectTimeout: 2000}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.True(t, client.Healthy())
	return client
}

func respondWith(t *testing.T, c *Client, subject string, reply protocol.Reply) {
	t.Helper()
	payload, err := json.Marshal(reply)
	require.NoError(t, err)
	sub, err := c.Conn().Subscribe(subject, func(msg *nats.Msg) { _ = msg.Respond(payload) })
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	require.NoError(t, c.Conn().Flush())
}

func TestConnectRequiresServers(t *testing.T) {
	_, err := Connect(context.Background(), config.BusConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestRequestDecodesData(t *testing.T) {
	c := connect(t)
	respondWith(t, c, "test.ok", protocol.Reply{OK: true, Data: json.RawMessage(`{"path":"/tmp/a.pcm","exists":true}`)})

	var out protocol.CachePath
	found, err := c.Request(context.Background(), "test.ok", protocol.CacheResolve{VoiceID: "v", Phrase: "a"}, &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, protocol.CachePath{Path: "/tmp/a.pcm", Exists: true}, out)
}

func TestRequestReportsNotFound(t *testing.T) {
	c := connect(t)
	respondWith(t, c, "test.missing", protocol.Reply{OK: true, NotFound: true})

	found, err := c.Request(context.Background(), "test.missing", protocol.ScriptRef{ID: "x"}, nil)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRequestWrapsRemoteError(t *testing.T) {
	c := connect(t)
	respondWith(t, c, "test.fail", protocol.Reply{Error: "store unavailable"})

	_, err := c.Request(context.Background(), "test.fail", struct{}{}, nil)
	require.ErrorIs(t, err, ErrRemote)
	require.ErrorContains(t, err, "store unavailable")
}

func TestRequestWithoutResponder(t *testing.T) {
	c := connect(t)
	_, err := c.Request(context.Background(), "test.nobody", struct{}{}, nil)
	require.ErrorIs(t, err, nats.ErrNoResponders)
}
