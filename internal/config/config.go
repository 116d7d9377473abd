package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"attachment-service/internal/storage"
)

// Config holds the full application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Logger   LoggerConfig   `yaml:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `yaml:"port"`
	Mode            string        `yaml:"mode"`
	BasePath        string        `yaml:"base_path"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// GetDSN builds the postgres DSN
func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// StorageConfig holds attachment storage configuration.
// Loaded once at startup and treated as immutable for the process lifetime.
type StorageConfig struct {
	// Root is the single directory all attachment files live under
	Root string `yaml:"root"`
	// MaxFileSize is the maximum size of a single uploaded file in bytes
	MaxFileSize int64 `yaml:"max_file_size"`
	// MaxBatchCount is the maximum number of files per upload request
	MaxBatchCount int `yaml:"max_batch_count"`
	// MaxBatchSize is the maximum aggregate size of an upload request in bytes
	MaxBatchSize int64 `yaml:"max_batch_size"`
	// AllowedTypes maps allowed file extensions to acceptable declared
	// content types. When present in the config file it replaces the
	// built-in table entirely.
	AllowedTypes map[string][]string `yaml:"allowed_types"`
	// ReconcileSchedule is the cron schedule for the disk/metadata sweep
	ReconcileSchedule string `yaml:"reconcile_schedule"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	ServiceURL string        `yaml:"service_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a yaml file and applies environment overrides
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            "8083",
			Mode:            "debug",
			BasePath:        "/api/bugs",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Name:            "bugtracker",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Root:              "./uploads",
			MaxFileSize:       5 * 1024 * 1024,
			MaxBatchCount:     5,
			MaxBatchSize:      20 * 1024 * 1024,
			ReconcileSchedule: "0 */6 * * *",
		},
		Auth: AuthConfig{
			Timeout: 5 * time.Second,
		},
		Logger: LoggerConfig{
			Level: "info",
		},
	}

	// Load from yaml file if exists
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Override with environment variables
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		cfg.Server.Mode = mode
	}
	if basePath := os.Getenv("SERVER_BASE_PATH"); basePath != "" {
		cfg.Server.BasePath = basePath
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Database.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Database.Name = name
	}
	if root := os.Getenv("STORAGE_ROOT"); root != "" {
		cfg.Storage.Root = root
	}
	if maxSize := os.Getenv("STORAGE_MAX_FILE_SIZE"); maxSize != "" {
		if n, err := strconv.ParseInt(maxSize, 10, 64); err == nil {
			cfg.Storage.MaxFileSize = n
		}
	}
	if maxCount := os.Getenv("STORAGE_MAX_BATCH_COUNT"); maxCount != "" {
		if n, err := strconv.Atoi(maxCount); err == nil {
			cfg.Storage.MaxBatchCount = n
		}
	}
	if maxBatch := os.Getenv("STORAGE_MAX_BATCH_SIZE"); maxBatch != "" {
		if n, err := strconv.ParseInt(maxBatch, 10, 64); err == nil {
			cfg.Storage.MaxBatchSize = n
		}
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if authURL := os.Getenv("AUTH_SERVICE_URL"); authURL != "" {
		cfg.Auth.ServiceURL = authURL
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logger.Level = logLevel
	}

	// The allow-list default is applied after parsing: yaml merges into
	// pre-populated maps, which would make it impossible to narrow the
	// built-in table from a config file.
	if cfg.Storage.AllowedTypes == nil {
		cfg.Storage.AllowedTypes = storage.DefaultAllowedTypes()
	}

	return cfg, nil
}
