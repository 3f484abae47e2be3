package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"printflow/common"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig     `yaml:"server"`
	Database DatabaseConfig   `yaml:"database"`
	Auth     AuthConfig       `yaml:"auth"`
	Log      common.LogConfig `yaml:"log"`
	Search   SearchConfig     `yaml:"search"`
	Tracing  TracingConfig    `yaml:"tracing"`
}

type ServerConfig struct {
	Port               string   `yaml:"port"`
	Mode               string   `yaml:"mode"`
	CorsAllowedOrigins []string `yaml:"corsAllowedOrigins"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3 or mysql
	Args   string `yaml:"args"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwtSecret"`
	Issuer        string        `yaml:"issuer"`
	TokenExpiry   time.Duration `yaml:"tokenExpiry"`
	AdminPassword string        `yaml:"adminPassword"`
}

type SearchConfig struct {
	ElasticsearchURL string `yaml:"elasticsearchUrl"`
	IndexName        string `yaml:"indexName"`
	SyncCron         string `yaml:"syncCron"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", Mode: "release", CorsAllowedOrigins: []string{"http://localhost:3000"}},
		Database: DatabaseConfig{Driver: "sqlite3", Args: "printflow.db"},
		Auth:     AuthConfig{Issuer: common.ServiceName, TokenExpiry: 24 * time.Hour},
		Log:      common.LogConfig{Level: "info", Format: "text"},
		Search:   SearchConfig{IndexName: "works", SyncCron: "0 0 23 * * ?"},
	}
}

// Load reads .env (if present), then the yaml file named by PRINTFLOW_CONFIG (if set),
// and finally applies environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c := Default()
	if path := os.Getenv("PRINTFLOW_CONFIG"); path != "" {
		if err := c.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) loadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Port, "SERVER_PORT")
	setString(&c.Server.Mode, "GIN_MODE")
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.CorsAllowedOrigins = splitList(v)
	}

	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.Args, "DB_ARGS")
	// MYSQL_* variables build the dsn when no explicit args are given
	if c.Database.Driver == "mysql" && os.Getenv("DB_ARGS") == "" && os.Getenv("MYSQL_HOST") != "" {
		c.Database.Args = fmt.Sprintf("%s:%s@(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			getEnv("MYSQL_USERNAME", "root"), os.Getenv("MYSQL_PASSWORD"),
			os.Getenv("MYSQL_HOST"), getEnv("MYSQL_PORT", "3306"), getEnv("MYSQL_DATABASE", common.ServiceName))
	}

	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Auth.Issuer, "JWT_ISSUER")
	setString(&c.Auth.AdminPassword, "ADMIN_PASSWORD")
	if v := os.Getenv("JWT_EXPIRY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid JWT_EXPIRY '%s': %w", v, err)
		}
		c.Auth.TokenExpiry = d
	}

	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Log.File, "LOG_FILE")

	setString(&c.Search.ElasticsearchURL, "ELASTICSEARCH_URL")
	setString(&c.Search.IndexName, "ELASTICSEARCH_INDEX")
	setString(&c.Search.SyncCron, "INDEX_SYNC_CRON")

	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TRACING_ENABLED '%s': %w", v, err)
		}
		c.Tracing.Enabled = enabled
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Database.Driver != "sqlite3" && c.Database.Driver != "mysql" {
		return fmt.Errorf("unsupported database driver '%s'", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Auth.TokenExpiry <= 0 {
		return errors.New("token expiry must be positive")
	}
	return nil
}

func setString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
