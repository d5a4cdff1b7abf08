package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/loqalabs/muse-core/internal/bus"
	"github.com/loqalabs/muse-core/internal/config"
	"github.com/loqalabs/muse-core/internal/export"
	"github.com/loqalabs/muse-core/internal/protocol"
)

var version = "0.1.0-dev"

const usage = "expected one of: list, get, insert, delete, phrases, cache, export, version"

type busFlags struct {
	servers string
	token   string
	timeout time.Duration
}

func (b *busFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&b.servers, "servers", envOr("MUSE_BUS_SERVERS", "nats://localhost:4222"), "Comma-separated NATS servers")
	fs.StringVar(&b.token, "token", os.Getenv("MUSE_BUS_TOKEN"), "NATS auth token")
	fs.DurationVar(&b.timeout, "timeout", 2*time.Minute, "Request timeout")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if os.Args[1] == "version" {
		fmt.Println(version)
		return
	}

	if err := run(os.Args[1], os.Args[2:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(command string, args []string, stdin io.Reader, stdout io.Writer) error {
	var bf busFlags
	var id, title, file, voice, phrase, out string
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	bf.register(fs)

	var (
		subject string
		payload any
		result  any
	)
	switch command {
	case "list":
		fs.Parse(args)
		subject, payload, result = protocol.SubjectScriptsList, struct{}{}, &[]protocol.Script{}
	case "get", "delete", "phrases":
		fs.StringVar(&id, "id", "", "Script identifier")
		fs.Parse(args)
		payload = protocol.ScriptRef{ID: id}
		switch command {
		case "get":
			subject, result = protocol.SubjectScriptsGet, &protocol.Script{}
		case "delete":
			subject = protocol.SubjectScriptsDelete
		default:
			subject, result = protocol.SubjectPhrasesQuery, &protocol.Phrases{}
		}
	case "insert":
		fs.StringVar(&id, "id", "", "Script identifier to replace (optional)")
		fs.StringVar(&title, "title", "", "Script title")
		fs.StringVar(&file, "file", "-", "Text file, or - for stdin")
		fs.Parse(args)
		text, err := readText(file, stdin)
		if err != nil {
			return err
		}
		subject, payload, result = protocol.SubjectScriptsInsert, protocol.InsertScript{ID: id, Title: title, Text: text}, &protocol.Script{}
	case "cache":
		fs.StringVar(&voice, "voice", "", "Voice identifier")
		fs.StringVar(&phrase, "phrase", "", "Phrase")
		fs.Parse(args)
		subject, payload, result = protocol.SubjectCacheResolve, protocol.CacheResolve{VoiceID: voice, Phrase: phrase}, &protocol.CachePath{}
	case "export":
		fs.StringVar(&id, "id", "", "Script identifier")
		fs.StringVar(&voice, "voice", "", "Voice identifier (defaults to the daemon's voice)")
		fs.StringVar(&out, "out", "", "Output WAV path, relative to the daemon's export directory")
		fs.Parse(args)
		subject, payload, result = protocol.SubjectExportRequest, protocol.ExportRequest{ScriptID: id, VoiceID: voice, OutputPath: out}, &export.Result{}
	default:
		return fmt.Errorf("unknown command %q; %s", command, usage)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithTimeout(context.Background(), bf.timeout)
	defer cancel()

	client, err := bus.Connect(ctx, config.BusConfig{
		Servers:        strings.Split(bf.servers, ","),
		Token:          bf.token,
		ConnectTimeout: 2000,
	}, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	found, err := client.Request(ctx, subject, payload, result)
	if err != nil {
		return err
	}
	if !found {
		return errors.New("script not found")
	}
	if result == nil {
		fmt.Fprintln(stdout, "ok")
		return nil
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func readText(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script file: %w", err)
	}
	return string(data), nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
