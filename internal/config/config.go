// Package config loads runtime settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Completion providers.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Store, ledger and blob backends.
const (
	BackendNotion   = "notion"
	BackendSurreal  = "surreal"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	BlobS3   = "s3"
	BlobGCS  = "gcs"
	BlobNone = "none"
)

// Config holds all configuration values.
type Config struct {
	// Discord source
	DiscordToken    string `yaml:"discord_token"`
	DiscordBaseURL  string `yaml:"discord_base_url"`
	TargetChannelID string `yaml:"target_channel_id"`
	// DiscordSelfID is the bot user id; looked up via /users/@me when empty.
	DiscordSelfID string `yaml:"discord_self_id"`

	// Sync window
	TimeZone string `yaml:"timezone"`

	// Backends
	StoreBackend  string `yaml:"store_backend"`
	LedgerBackend string `yaml:"ledger_backend"`

	// Notion
	NotionAPIKey     string `yaml:"notion_api_key"`
	NotionBaseURL    string `yaml:"notion_base_url"`
	FormDatabaseID   string `yaml:"form_database_id"`
	AssetsDatabaseID string `yaml:"assets_database_id"`
	DoneDatabaseID   string `yaml:"done_messages_database_id"`

	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Postgres ledger
	PostgresDSN string `yaml:"postgres_dsn"`

	// Blob relocation
	BlobBackend       string `yaml:"blob_backend"`
	BlobBucket        string `yaml:"blob_bucket"`
	BlobPrefix        string `yaml:"blob_prefix"`
	BlobEndpoint      string `yaml:"blob_endpoint"`
	BlobPublicBaseURL string `yaml:"blob_public_base_url"`
	BlobRegion        string `yaml:"blob_region"`
	AWSRegion         string `yaml:"aws_region"`

	// Completion service
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	LLMBaseURL      string `yaml:"llm_base_url"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OllamaHost      string `yaml:"ollama_host"`

	// Run lock (empty disables it)
	RedisURL   string `yaml:"redis_url"`
	RunLockTTL string `yaml:"run_lock_ttl"`

	// Logging
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		DiscordBaseURL: "https://discord.com/api/v10",
		TimeZone:       "Asia/Tokyo",

		StoreBackend:  BackendNotion,
		LedgerBackend: "",

		NotionBaseURL: "https://api.notion.com",

		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "threadsync",
		SurrealDBDatabase:  "knowledge",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		BlobPrefix: "attachments/",
		AWSRegion:  "us-east-1",

		LLMProvider: ProviderOpenAI,
		LLMModel:    "mlx-community/gemma-3-1b-it-qat",
		LLMBaseURL:  "http://localhost:1234/v1",
		OllamaHost:  "http://localhost:11434",

		RunLockTTL: "15m",

		LogFile:  "/tmp/threadsync.log",
		LogLevel: "INFO",
	}
}

// Load reads configuration from environment variables over the defaults.
func Load() Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// LoadFile decodes the YAML file at path over the defaults, then applies
// environment overrides. An empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	for key, field := range map[string]*string{
		"DISCORD_BOT_TOKEN":         &c.DiscordToken,
		"DISCORD_BASE_URL":          &c.DiscordBaseURL,
		"TARGET_CHANNEL_ID":         &c.TargetChannelID,
		"DISCORD_SELF_ID":           &c.DiscordSelfID,
		"SYNC_TIMEZONE":             &c.TimeZone,
		"STORE_BACKEND":             &c.StoreBackend,
		"LEDGER_BACKEND":            &c.LedgerBackend,
		"NOTION_API_KEY":            &c.NotionAPIKey,
		"NOTION_BASE_URL":           &c.NotionBaseURL,
		"FORM_DATABASE_ID":          &c.FormDatabaseID,
		"ASSETS_DATABASE_ID":        &c.AssetsDatabaseID,
		"DONE_MESSAGES_DATABASE_ID": &c.DoneDatabaseID,
		"SURREALDB_URL":             &c.SurrealDBURL,
		"SURREALDB_NAMESPACE":       &c.SurrealDBNamespace,
		"SURREALDB_DATABASE":        &c.SurrealDBDatabase,
		"SURREALDB_USER":            &c.SurrealDBUser,
		"SURREALDB_PASS":            &c.SurrealDBPass,
		"SURREALDB_AUTH_LEVEL":      &c.SurrealDBAuthLevel,
		"POSTGRES_DSN":              &c.PostgresDSN,
		"BLOB_BACKEND":              &c.BlobBackend,
		"BLOB_BUCKET":               &c.BlobBucket,
		"BLOB_PREFIX":               &c.BlobPrefix,
		"BLOB_ENDPOINT":             &c.BlobEndpoint,
		"BLOB_PUBLIC_BASE_URL":      &c.BlobPublicBaseURL,
		"BLOB_REGION":               &c.BlobRegion,
		"AWS_REGION":                &c.AWSRegion,
		"LLM_PROVIDER":              &c.LLMProvider,
		"LLM_MODEL":                 &c.LLMModel,
		"LLM_BASE_URL":              &c.LLMBaseURL,
		"OPENAI_API_KEY":            &c.OpenAIAPIKey,
		"ANTHROPIC_API_KEY":         &c.AnthropicAPIKey,
		"OLLAMA_HOST":               &c.OllamaHost,
		"REDIS_URL":                 &c.RedisURL,
		"RUN_LOCK_TTL":              &c.RunLockTTL,
		"THREADSYNC_LOG_FILE":       &c.LogFile,
		"THREADSYNC_LOG_LEVEL":      &c.LogLevel,
	} {
		*field = getEnv(key, *field)
	}
}

// Ledger returns the ledger backend, defaulting to the store backend.
func (c Config) Ledger() string {
	if c.LedgerBackend != "" {
		return c.LedgerBackend
	}
	return c.StoreBackend
}

// Region returns the blob region, falling back to the AWS region.
func (c Config) Region() string {
	if c.BlobRegion != "" {
		return c.BlobRegion
	}
	return c.AWSRegion
}

// Location returns the sync time zone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LockTTL returns the run lock expiry.
func (c Config) LockTTL() time.Duration {
	d, err := time.ParseDuration(c.RunLockTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// Level returns the parsed log level.
func (c Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

// ValidateSync reports settings missing for a sync run.
func (c Config) ValidateSync() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_BOT_TOKEN is required"))
	}
	if c.TargetChannelID == "" {
		errs = append(errs, errors.New("TARGET_CHANNEL_ID is required"))
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("SYNC_TIMEZONE: %w", err))
	}
	switch c.BlobBackend {
	case BlobS3, BlobGCS:
		if c.BlobBucket == "" {
			errs = append(errs, errors.New("BLOB_BUCKET is required for blob backend "+c.BlobBackend))
		}
	case BlobNone:
	case "":
		// Source CDN links expire, so persistent stores need a real bucket
		// unless none was chosen on purpose.
		if c.StoreBackend != BackendMemory {
			errs = append(errs, fmt.Errorf("BLOB_BACKEND is required for store backend %s: use s3 or gcs, or none to keep source URLs", c.StoreBackend))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported blob backend: %s", c.BlobBackend))
	}
	if c.Ledger() == BackendNotion && c.DoneDatabaseID == "" {
		errs = append(errs, errors.New("DONE_MESSAGES_DATABASE_ID is required for the notion ledger"))
	}
	if c.Ledger() == BackendPostgres && c.PostgresDSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres ledger"))
	}
	errs = append(errs, c.validateStore())
	return errors.Join(errs...)
}

// ValidateStore reports settings missing for store-only commands.
func (c Config) ValidateStore() error {
	return c.validateStore()
}

func (c Config) validateStore() error {
	var errs []error
	switch c.StoreBackend {
	case BackendNotion:
		if c.NotionAPIKey == "" {
			errs = append(errs, errors.New("NOTION_API_KEY is required"))
		}
		if c.FormDatabaseID == "" {
			errs = append(errs, errors.New("FORM_DATABASE_ID is required"))
		}
		if c.AssetsDatabaseID == "" {
			errs = append(errs, errors.New("ASSETS_DATABASE_ID is required"))
		}
	case BackendSurreal, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported store backend: %s", c.StoreBackend))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
