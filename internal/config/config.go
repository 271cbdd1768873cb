package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	envConfigPath = "CODEPILOT_CONFIG"
	envAddr       = "CODEPILOT_ADDR"
	envDB         = "CODEPILOT_DB"
	envLogLevel   = "CODEPILOT_LOG_LEVEL"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Logging     LoggingConfig             `json:"logging" yaml:"logging"`
}

type BasicConfig struct {
	ServerAddress     string   `json:"server_address" yaml:"server_address"`
	Database          string   `json:"database" yaml:"database"`
	MinWorkers        int      `json:"min_workers" yaml:"min_workers"`
	MaxWorkers        int      `json:"max_workers" yaml:"max_workers"`
	QueueSize         int      `json:"queue_size" yaml:"queue_size"`
	WorkerIdleTimeout int      `json:"worker_idle_timeout" yaml:"worker_idle_timeout"` // minutes
	TokenTTL          int      `json:"token_ttl" yaml:"token_ttl"`                     // hours
	StatsCacheTTL     int      `json:"stats_cache_ttl" yaml:"stats_cache_ttl"`         // seconds
	CORSOrigins       []string `json:"cors_origins" yaml:"cors_origins"`
	IdentityHeader    string   `json:"identity_header" yaml:"identity_header"`
	EmailHeader       string   `json:"email_header" yaml:"email_header"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	DBName   string `json:"db_name" yaml:"db_name"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Load reads configuration from the provided path. An empty path falls back to
// $CODEPILOT_CONFIG and then config.json. A .env file next to the config file is
// loaded first so environment overrides can live there; it may be absent but
// not malformed.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envConfigPath)
	}
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	envPath := filepath.Join(filepath.Dir(absPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg, err := Parse(data, filepath.Ext(absPath))
	if err != nil {
		return nil, err
	}

	for name, db := range cfg.Databases {
		if db.DSN == "" || db.DSN == ":memory:" || strings.HasPrefix(db.DSN, "file:") {
			continue
		}
		if isSQLite(name) && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}
	return cfg, nil
}

// Parse decodes raw configuration bytes. ext selects the format (".yaml"/".yml"
// for YAML, anything else for JSON). Environment overrides and defaults are applied.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if _, ok := cfg.Databases[cfg.BasicConfig.Database]; !ok {
		return nil, fmt.Errorf("database config for %s not found", cfg.BasicConfig.Database)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(envAddr)); v != "" {
		c.BasicConfig.ServerAddress = v
	}
	if v := strings.TrimSpace(os.Getenv(envDB)); v != "" {
		c.BasicConfig.Database = v
	}
	if v := strings.TrimSpace(os.Getenv(envLogLevel)); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) applyDefaults() {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = ":8090"
	}
	if b.Database == "" {
		b.Database = "sqlite3"
	}
	if b.MinWorkers <= 0 {
		b.MinWorkers = 1
	}
	if b.MaxWorkers < b.MinWorkers {
		b.MaxWorkers = b.MinWorkers * 4
	}
	if b.QueueSize <= 0 {
		b.QueueSize = 128
	}
	if b.TokenTTL <= 0 {
		b.TokenTTL = 24
	}
	if b.StatsCacheTTL <= 0 {
		b.StatsCacheTTL = 60
	}
	if b.IdentityHeader == "" {
		b.IdentityHeader = "X-Forwarded-User"
	}
	if b.EmailHeader == "" {
		b.EmailHeader = "X-Forwarded-Email"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Database returns the settings of the configured driver.
func (c *Config) Database() (string, DatabaseConfig) {
	name := c.BasicConfig.Database
	return name, c.Databases[name]
}

func isSQLite(name string) bool {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}
