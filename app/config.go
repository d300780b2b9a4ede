package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"provision-svc/app/utils"

	"gopkg.in/yaml.v3"
)

const defaultTokenSecret = "change-me-in-production"

// Config holds application configuration
type Config struct {
	ServerPort string `yaml:"server_port" validate:"required,numeric"`
	LogLevel   string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogJSON    bool   `yaml:"log_json"`

	StoreDriver  string `yaml:"store_driver" validate:"oneof=postgres memory"`
	DBHost       string `yaml:"db_host"`
	DBPort       string `yaml:"db_port"`
	DBUser       string `yaml:"db_user"`
	DBPassword   string `yaml:"db_password"`
	DBName       string `yaml:"db_name"`
	DBSSLMode    string `yaml:"db_ssl_mode"`
	MigrationDir string `yaml:"migration_dir"`
	AutoMigrate  bool   `yaml:"auto_migrate"`

	TokenSecret        string `yaml:"token_secret" validate:"required"`
	TokenExpirationSec int64  `yaml:"token_expiration_sec" validate:"gt=0"`

	StatusInterval   time.Duration `yaml:"status_interval" validate:"gt=0"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes" validate:"gt=0"`
	SchedulerWorkers int           `yaml:"scheduler_workers" validate:"min=1"`
	TaskTimeout      time.Duration `yaml:"task_timeout" validate:"gt=0"`
	RetryMax         int           `yaml:"retry_max" validate:"min=0"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`

	EventRetentionDays int      `yaml:"event_retention_days" validate:"min=0"`
	CORSOrigins        []string `yaml:"cors_origins"`

	// SeedNodes are loaded into the memory store at startup
	SeedNodes []SeedNode `yaml:"seed_nodes" validate:"dive"`
}

// SeedNode describes a node preloaded into the memory store
type SeedNode struct {
	NodeID   string `yaml:"node_id" validate:"required"`
	Hostname string `yaml:"hostname"`
	Status   string `yaml:"status" validate:"required"`
	Owner    string `yaml:"owner"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		ServerPort:         "5240",
		LogLevel:           "info",
		StoreDriver:        "postgres",
		DBHost:             "localhost",
		DBPort:             "5432",
		DBUser:             "postgres",
		DBPassword:         "postgres",
		DBName:             "provisiondb",
		DBSSLMode:          "disable",
		MigrationDir:       "storage/postgres/migrations",
		AutoMigrate:        true,
		TokenSecret:        defaultTokenSecret,
		TokenExpirationSec: 7 * 86400,
		StatusInterval:     60 * time.Second,
		MaxBodyBytes:       256 << 20,
		SchedulerWorkers:   8,
		TaskTimeout:        2 * time.Minute,
		RetryMax:           5,
		RetryBaseDelay:     time.Second,
		RetryMaxDelay:      30 * time.Second,
		EventRetentionDays: 90,
		CORSOrigins:        []string{"http://localhost:5173", "http://localhost:3000"},
	}
}

// LoadConfig loads configuration from an optional YAML file named by
// CONFIG_FILE and then from environment variables, which take precedence.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.TokenSecret == defaultTokenSecret {
		return nil, fmt.Errorf("TOKEN_SIGNING_SECRET must be set")
	}
	if err := utils.ValidateStruct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ConnString builds the Postgres connection string
func (c *Config) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// RetryPolicy returns the task retry policy
func (c *Config) RetryPolicy() *utils.RetryPolicy {
	return utils.NewRetryPolicy(c.RetryMax, c.RetryBaseDelay, c.RetryMaxDelay)
}

func (c *Config) applyEnv() error {
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.StoreDriver = getEnv("STORE_DRIVER", c.StoreDriver)
	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBPort = getEnv("DB_PORT", c.DBPort)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.DBSSLMode = getEnv("DB_SSL_MODE", c.DBSSLMode)
	c.MigrationDir = getEnv("MIGRATION_DIR", c.MigrationDir)
	c.TokenSecret = getEnv("TOKEN_SIGNING_SECRET", c.TokenSecret)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.CORSOrigins = strings.Split(origins, ",")
	}

	var err error
	if c.LogJSON, err = getEnvBool("LOG_JSON", c.LogJSON); err != nil {
		return err
	}
	if c.AutoMigrate, err = getEnvBool("AUTO_MIGRATE", c.AutoMigrate); err != nil {
		return err
	}
	if c.TokenExpirationSec, err = getEnvInt64("TOKEN_EXPIRATION_SEC", c.TokenExpirationSec); err != nil {
		return err
	}
	if c.MaxBodyBytes, err = getEnvInt64("MAX_BODY_BYTES", c.MaxBodyBytes); err != nil {
		return err
	}
	if c.SchedulerWorkers, err = getEnvInt("SCHEDULER_WORKERS", c.SchedulerWorkers); err != nil {
		return err
	}
	if c.RetryMax, err = getEnvInt("RETRY_MAX", c.RetryMax); err != nil {
		return err
	}
	if c.EventRetentionDays, err = getEnvInt("EVENT_RETENTION_DAYS", c.EventRetentionDays); err != nil {
		return err
	}
	if c.StatusInterval, err = getEnvDuration("STATUS_INTERVAL", c.StatusInterval); err != nil {
		return err
	}
	if c.TaskTimeout, err = getEnvDuration("TASK_TIMEOUT", c.TaskTimeout); err != nil {
		return err
	}
	if c.RetryBaseDelay, err = getEnvDuration("RETRY_BASE_DELAY", c.RetryBaseDelay); err != nil {
		return err
	}
	if c.RetryMaxDelay, err = getEnvDuration("RETRY_MAX_DELAY", c.RetryMaxDelay); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
