package runtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/loqalabs/muse-core/internal/config"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.HTTP.Bind = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Bus.Port = -1
	cfg.Store.Mode = "memory"
	cfg.Cache.Root = t.TempDir()
	cfg.Export.Dir = t.TempDir()
	return cfg
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestRuntimeServesProbesAndStops(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt := New(testConfig(t), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Start(ctx) }()

	select {
	case <-rt.Started():
	case err := <-done:
		t.Fatalf("runtime exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("runtime did not start")
	}

	base := "http://" + rt.Addr()
	if code, body := get(t, base+"/healthz"); code != http.StatusOK || body != "ok" {
		t.Fatalf("healthz = %d %q", code, body)
	}
	if code, body := get(t, base+"/readyz"); code != http.StatusOK || body != "ready" {
		t.Fatalf("readyz = %d %q", code, body)
	}
	if code, _ := get(t, base+"/metrics"); code != http.StatusOK {
		t.Fatalf("metrics = %d", code)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runtime returned error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("runtime did not stop")
	}
}

func TestRuntimeFailsOnBadSynthConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t)
	cfg.TTS.Mode = "exec"
	cfg.TTS.Command = ""

	err := New(cfg, logger).Start(context.Background())
	if err == nil {
		t.Fatal("expected startup error")
	}
}
