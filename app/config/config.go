// Package config loads service configuration and opens backend connections.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TASKD_"

// Store backends.
const (
	BackendNeo4j  = "neo4j"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// Duration is a time.Duration that reads from strings such as "15s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Store    StoreConfig    `toml:"store"`
	Neo4j    Neo4jConfig    `toml:"neo4j"`
	Mongo    MongoConfig    `toml:"mongo"`
	Auth     AuthConfig     `toml:"auth"`
	Redis    RedisConfig    `toml:"redis"`
	NATS     NATSConfig     `toml:"nats"`
	Features FeaturesConfig `toml:"features"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	AllowedOrigins  []string `toml:"allowed_origins"`
}

// StoreConfig selects the task document store.
type StoreConfig struct {
	Backend        string `toml:"backend"`
	DatabaseID     string `toml:"database_id"`
	TaskCollection string `toml:"task_collection"`
}

// Neo4jConfig holds Neo4j connection settings.
type Neo4jConfig struct {
	URI      string `toml:"uri"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI string `toml:"uri"`
}

// AuthConfig holds account and session settings.
type AuthConfig struct {
	JWTSecret   string   `toml:"jwt_secret"`
	TokenTTL    Duration `toml:"token_ttl"`
	RecoveryTTL Duration `toml:"recovery_ttl"`
	ResetURL    string   `toml:"reset_url"`
	UserDBPath  string   `toml:"user_db_path"`
}

// RedisConfig holds Redis settings. An empty Addr keeps tokens in memory.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// NATSConfig holds NATS settings. An empty URL disables task events.
type NATSConfig struct {
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// FeaturesConfig toggles optional features.
type FeaturesConfig struct {
	Attachments bool `toml:"attachments"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration{10 * time.Second},
			WriteTimeout:    Duration{10 * time.Second},
			ShutdownTimeout: Duration{15 * time.Second},
			AllowedOrigins:  []string{"*"},
		},
		Store: StoreConfig{
			Backend:        BackendMemory,
			TaskCollection: "tasks",
		},
		Neo4j: Neo4jConfig{
			URI:      "neo4j://localhost:7687",
			Username: "neo4j",
		},
		Auth: AuthConfig{
			TokenTTL:    Duration{24 * time.Hour},
			RecoveryTTL: Duration{time.Hour},
			UserDBPath:  "taskd.db",
		},
		NATS: NATSConfig{
			SubjectPrefix: "taskd",
		},
		LogLevel: "info",
	}
}

// Options says where Load looks for configuration.
type Options struct {
	// File is a TOML file. Empty skips it; a missing file is an error.
	File string
	// EnvFile is a dotenv file. A missing file is ignored.
	EnvFile string
	// Getenv reads the process environment. Defaults to os.Getenv.
	Getenv func(string) string
}

// Load builds the configuration. Later sources override earlier ones:
// defaults, the TOML file, the dotenv file, the process environment.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", opts.File, err)
		}
	}

	dotenv := map[string]string{}
	if opts.EnvFile != "" {
		values, err := godotenv.Read(opts.EnvFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read env file %s: %w", opts.EnvFile, err)
		}
		if values != nil {
			dotenv = values
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	lookup := func(key string) (string, bool) {
		if v := getenv(EnvPrefix + key); v != "" {
			return v, true
		}
		v, ok := dotenv[EnvPrefix+key]
		return v, ok && v != ""
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			}
		}
	}

	str("SERVER_ADDR", &c.Server.Addr)
	dur("SERVER_READ_TIMEOUT", &c.Server.ReadTimeout)
	dur("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeout)
	dur("SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	if v, ok := lookup("SERVER_ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}

	str("STORE_BACKEND", &c.Store.Backend)
	str("STORE_DATABASE_ID", &c.Store.DatabaseID)
	str("STORE_TASK_COLLECTION", &c.Store.TaskCollection)

	str("NEO4J_URI", &c.Neo4j.URI)
	str("NEO4J_USERNAME", &c.Neo4j.Username)
	str("NEO4J_PASSWORD", &c.Neo4j.Password)

	str("MONGO_URI", &c.Mongo.URI)

	str("AUTH_JWT_SECRET", &c.Auth.JWTSecret)
	dur("AUTH_TOKEN_TTL", &c.Auth.TokenTTL)
	dur("AUTH_RECOVERY_TTL", &c.Auth.RecoveryTTL)
	str("AUTH_RESET_URL", &c.Auth.ResetURL)
	str("AUTH_USER_DB_PATH", &c.Auth.UserDBPath)

	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	if v, ok := lookup("REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, err))
		}
		c.Redis.DB = db
	}

	str("NATS_URL", &c.NATS.URL)
	str("NATS_SUBJECT_PREFIX", &c.NATS.SubjectPrefix)

	if v, ok := lookup("FEATURES_ATTACHMENTS"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sFEATURES_ATTACHMENTS: %w", EnvPrefix, err))
		}
		c.Features.Attachments = enabled
	}

	str("LOG_LEVEL", &c.LogLevel)
	return errors.Join(errs...)
}

// Validate returns every setup problem found. An empty result means the
// configuration is usable.
func (c *Config) Validate() []string {
	var issues []string

	switch c.Store.Backend {
	case BackendMemory:
	case BackendNeo4j:
		if c.Neo4j.URI == "" {
			issues = append(issues, "Neo4j URI is not configured. Please set TASKD_NEO4J_URI.")
		}
	case BackendMongo:
		if c.Mongo.URI == "" {
			issues = append(issues, "MongoDB URI is not configured. Please set TASKD_MONGO_URI.")
		}
	default:
		issues = append(issues, fmt.Sprintf("Unknown store backend %q. Use neo4j, mongo or memory.", c.Store.Backend))
	}
	if c.Store.Backend != BackendMemory && c.Store.DatabaseID == "" {
		issues = append(issues, "Database ID is not configured. Please set TASKD_STORE_DATABASE_ID.")
	}
	if c.Store.TaskCollection == "" {
		issues = append(issues, "Task collection is not configured. Please set TASKD_STORE_TASK_COLLECTION.")
	}
	if c.Auth.JWTSecret == "" {
		issues = append(issues, "JWT secret is not configured. Please set TASKD_AUTH_JWT_SECRET.")
	}
	if c.Auth.UserDBPath == "" {
		issues = append(issues, "User database path is not configured. Please set TASKD_AUTH_USER_DB_PATH.")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		issues = append(issues, err.Error())
	}
	return issues
}

// ParseLogLevel maps a level name to a slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
