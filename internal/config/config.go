package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// History backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Config struct {
	Port       string `yaml:"port"`
	PublicHost string `yaml:"public_host"`
	TLS        bool   `yaml:"tls"`

	APIKey string `yaml:"api_key"`

	LiveModel           string `yaml:"live_model"`
	LiveVoice           string `yaml:"live_voice"`
	SystemInstruction   string `yaml:"system_instruction"`
	InputTranscription  bool   `yaml:"input_transcription"`
	OutputTranscription bool   `yaml:"output_transcription"`

	ThinkingModel  string        `yaml:"thinking_model"`
	ThinkingBudget int32         `yaml:"thinking_budget"`
	SearchModel    string        `yaml:"search_model"`
	ImageModel     string        `yaml:"image_model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	HistoryBackend     string `yaml:"history_backend"`
	HistoryDir         string `yaml:"history_dir"`
	HistoryDatabaseURL string `yaml:"history_database_url"`
	HistoryLimit       int    `yaml:"history_limit"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

func Defaults() Config {
	return Config{
		Port:                "8080",
		LiveModel:           "gemini-2.5-flash-native-audio-preview-09-2025",
		LiveVoice:           "Zephyr",
		SystemInstruction:   "You are a helpful and friendly AI assistant.",
		InputTranscription:  true,
		OutputTranscription: true,
		ThinkingModel:       "gemini-2.5-pro",
		ThinkingBudget:      32768,
		SearchModel:         "gemini-2.5-flash",
		ImageModel:          "gemini-2.5-flash-image",
		RequestTimeout:      2 * time.Minute,
		HistoryBackend:      BackendMemory,
		HistoryDir:          "data/history",
		HistoryLimit:        50,
		LogLevel:            "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file at path
// and the environment, in increasing precedence.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults without consulting the
// environment.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Defaults()
	if err := decode(r, &cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getenv("PORT", cfg.Port)
	cfg.PublicHost = getenv("PUBLIC_HOST", cfg.PublicHost)
	cfg.APIKey = getenv("GEMINI_API_KEY", getenv("API_KEY", cfg.APIKey))
	cfg.LiveModel = getenv("LIVE_MODEL", cfg.LiveModel)
	cfg.LiveVoice = getenv("LIVE_VOICE", cfg.LiveVoice)
	cfg.SystemInstruction = getenv("SYSTEM_INSTRUCTION", cfg.SystemInstruction)
	cfg.ThinkingModel = getenv("THINKING_MODEL", cfg.ThinkingModel)
	cfg.SearchModel = getenv("SEARCH_MODEL", cfg.SearchModel)
	cfg.ImageModel = getenv("IMAGE_MODEL", cfg.ImageModel)
	cfg.HistoryBackend = getenv("HISTORY_BACKEND", cfg.HistoryBackend)
	cfg.HistoryDir = getenv("HISTORY_DIR", cfg.HistoryDir)
	cfg.HistoryDatabaseURL = getenv("HISTORY_DATABASE_URL", cfg.HistoryDatabaseURL)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getenv("LOG_FILE", cfg.LogFile)

	var errs []error
	if v := os.Getenv("TLS"); v != "" {
		cfg.TLS = v == "1" || strings.EqualFold(v, "true")
	}
	if err := envBool("INPUT_TRANSCRIPTION", &cfg.InputTranscription); err != nil {
		errs = append(errs, err)
	}
	if err := envBool("OUTPUT_TRANSCRIPTION", &cfg.OutputTranscription); err != nil {
		errs = append(errs, err)
	}
	if v := os.Getenv("THINKING_BUDGET"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: THINKING_BUDGET %q: %w", v, err))
		} else {
			cfg.ThinkingBudget = int32(n)
		}
	}
	if v := os.Getenv("HISTORY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: HISTORY_LIMIT %q: %w", v, err))
		} else {
			cfg.HistoryLimit = n
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: REQUEST_TIMEOUT %q: %w", v, err))
		} else {
			cfg.RequestTimeout = d
		}
	}
	return errors.Join(errs...)
}

// Validate returns a joined error listing every invalid value.
func Validate(cfg Config) error {
	var errs []error
	if cfg.Port == "" {
		errs = append(errs, errors.New("config: port is required"))
	}
	switch cfg.HistoryBackend {
	case BackendMemory:
	case BackendFile:
		if cfg.HistoryDir == "" {
			errs = append(errs, errors.New("config: history_dir is required for the file backend"))
		}
	case BackendPostgres:
		if cfg.HistoryDatabaseURL == "" {
			errs = append(errs, errors.New("config: history_database_url is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: history_backend %q is invalid; valid values: memory, file, postgres", cfg.HistoryBackend))
	}
	if cfg.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("config: history_limit %d must be positive", cfg.HistoryLimit))
	}
	if cfg.ThinkingBudget < 0 {
		errs = append(errs, fmt.Errorf("config: thinking_budget %d must not be negative", cfg.ThinkingBudget))
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	return errors.Join(errs...)
}

// Scheme is the URL scheme clients should use.
func (c Config) Scheme() string {
	if c.TLS {
		return "https"
	}
	return "http"
}

// Host is the public host:port, localhost when unset.
func (c Config) Host() string {
	if c.PublicHost != "" {
		return c.PublicHost
	}
	return "localhost:" + c.Port
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, dst *bool) error {
	v := os.Getenv(k)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s %q: %w", k, v, err)
	}
	*dst = b
	return nil
}
