package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel      string `yaml:"log_level"`
	TraceExporter string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Store       StoreConfig     `yaml:"store"`
	Cache       CacheConfig     `yaml:"cache"`
	Phrases     PhrasesConfig   `yaml:"phrases"`
	TTS         TTSConfig       `yaml:"tts"`
	Export      ExportConfig    `yaml:"export"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	QueueGroup     string   `yaml:"queue_group"`
}

// StoreConfig selects and tunes the script store backend.
type StoreConfig struct {
	Mode          string `yaml:"mode"` // sqlite, memory
	Path          string `yaml:"path"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type CacheConfig struct {
	Root string `yaml:"root"`
}

type PhrasesConfig struct {
	MaxTextLength int `yaml:"max_text_length"`
	Workers       int `yaml:"workers"`
}

type TTSConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type ExportConfig struct {
	Dir string `yaml:"dir"`
}

func Default() Config {
	return Config{
		RuntimeName: "muse-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			TraceExporter: "none",
			OTLPEndpoint:  "",
			OTLPInsecure:  true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			QueueGroup:     "muse",
		},
		Store: StoreConfig{
			Mode: "sqlite",
			Path: "./data/muse.db",
		},
		Cache: CacheConfig{
			Root: "./data/cache",
		},
		Phrases: PhrasesConfig{
			MaxTextLength: 25_000,
			Workers:       4,
		},
		TTS: TTSConfig{
			Mode:       "mock",
			Voice:      "default",
			SampleRate: 22050,
			Channels:   1,
			TimeoutMS:  45000,
		},
		Export: ExportConfig{
			Dir: "./data/export",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "MUSE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "MUSE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "MUSE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "MUSE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "MUSE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "MUSE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "MUSE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.TraceExporter, "MUSE_TELEMETRY_TRACE_EXPORTER")
	overrideBool(&cfg.Bus.Embedded, "MUSE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "MUSE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "MUSE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "MUSE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "MUSE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "MUSE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "MUSE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "MUSE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.QueueGroup, "MUSE_BUS_QUEUE_GROUP")
	overrideString(&cfg.Store.Mode, "MUSE_STORE_MODE")
	overrideString(&cfg.Store.Path, "MUSE_STORE_PATH")
	overrideBool(&cfg.Store.VacuumOnStart, "MUSE_STORE_VACUUM_ON_START")
	overrideString(&cfg.Cache.Root, "MUSE_CACHE_ROOT")
	overrideInt(&cfg.Phrases.MaxTextLength, "MUSE_PHRASES_MAX_TEXT_LENGTH")
	overrideInt(&cfg.Phrases.Workers, "MUSE_PHRASES_WORKERS")
	overrideString(&cfg.TTS.Mode, "MUSE_TTS_MODE")
	overrideString(&cfg.TTS.Command, "MUSE_TTS_COMMAND")
	overrideString(&cfg.TTS.Voice, "MUSE_TTS_VOICE")
	overrideInt(&cfg.TTS.SampleRate, "MUSE_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "MUSE_TTS_CHANNELS")
	overrideInt(&cfg.TTS.TimeoutMS, "MUSE_TTS_TIMEOUT_MS")
	overrideString(&cfg.Export.Dir, "MUSE_EXPORT_DIR")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port != -1 && (cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535) {
			return errors.New("bus.port must be -1 (random) or between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout", "otlp":
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	if cfg.Telemetry.TraceExporter == "otlp" && cfg.Telemetry.OTLPEndpoint == "" {
		return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
	}
	if cfg.Bus.QueueGroup == "" {
		return errors.New("bus.queue_group must not be empty")
	}
	switch cfg.Store.Mode {
	case "sqlite":
		if cfg.Store.Path == "" {
			return errors.New("store.path must not be empty when mode=sqlite")
		}
	case "memory":
	default:
		return errors.New("store.mode must be one of sqlite|memory")
	}
	if cfg.Phrases.MaxTextLength <= 0 {
		return errors.New("phrases.max_text_length must be positive")
	}
	if cfg.Phrases.Workers <= 0 {
		return errors.New("phrases.workers must be >= 1")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec":
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	if cfg.Export.Dir == "" {
		return errors.New("export.dir must not be empty")
	}
	return nil
}
