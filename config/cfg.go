package config

import (
	"fmt"
	"time"

	"flipbook-app/internal/envHelper"
)

type AppConfig struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Storage    StorageConfig    `json:"storage"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	Auth       AuthConfig       `json:"auth"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	Log        LogConfig        `json:"log"`
}

type ServerConfig struct {
	Port            string `json:"port"`
	Mode            string `json:"mode"`
	CORSOrigin      string `json:"cors_origin"`
	MaxFileBytes    int64  `json:"max_file_bytes"`
	MaxBodyBytes    int64  `json:"max_body_bytes"`
	PublicBaseURL   string `json:"public_base_url"`
	UploadPerMinute int    `json:"upload_per_minute"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	Name     string `json:"name"`
	// Path is the sqlite3 database file.
	Path string `json:"path"`
}

type StorageConfig struct {
	Backend  string `json:"backend"`
	Dir      string `json:"dir"`
	Bucket   string `json:"bucket"`
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"`
	Prefix   string `json:"prefix"`
}

type PipelineConfig struct {
	Rasterizer   string  `json:"rasterizer"`
	Scale        float64 `json:"scale"`
	Workers      int     `json:"workers"`
	ReorderDepth int     `json:"reorder_depth"`
}

type AuthConfig struct {
	SessionTTL     time.Duration `json:"session_ttl"`
	BcryptCost     int           `json:"bcrypt_cost"`
	LoginPerMinute int           `json:"login_per_minute"`
}

type DispatcherConfig struct {
	WorkerCount int `json:"worker_count"`
	QueueSize   int `json:"queue_size"`
}

type LogConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"`
	ReportCaller bool   `json:"report_caller"`
}

// Load reads the configuration from the environment. Call envHelper.LoadEnv
// first if a .env file should be honoured.
func Load() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Port:            envHelper.GetEnvOrDefault("PORT", "3000"),
			Mode:            envHelper.GetEnvOrDefault("GIN_MODE", "release"),
			CORSOrigin:      envHelper.GetEnvOrDefault("CORS_ORIGIN", "*"),
			MaxFileBytes:    int64(envHelper.GetEnvInt("MAX_FILE_MB", 10)) << 20,
			MaxBodyBytes:    int64(envHelper.GetEnvInt("MAX_BODY_MB", 50)) << 20,
			PublicBaseURL:   envHelper.GetEnvOrDefault("API_URL", ""),
			UploadPerMinute: envHelper.GetEnvInt("UPLOAD_PER_MINUTE", 30),
		},
		Database: DatabaseConfig{
			Driver:   envHelper.GetEnvOrDefault("DB_DRIVER", "sqlite3"),
			Host:     envHelper.GetEnvOrDefault("DB_HOST", "localhost"),
			Port:     envHelper.GetEnvOrDefault("DB_PORT", "3306"),
			User:     envHelper.GetEnvOrDefault("DB_USERNAME", "flipbook"),
			Password: envHelper.GetEnvOrDefault("DB_PASSWORD", ""),
			Name:     envHelper.GetEnvOrDefault("DB_DATABASE", "flipbook"),
			Path:     envHelper.GetEnvOrDefault("DB_PATH", "flipbook.db"),
		},
		Storage: StorageConfig{
			Backend:  envHelper.GetEnvOrDefault("STORAGE_BACKEND", "local"),
			Dir:      envHelper.GetEnvOrDefault("UPLOAD_DIR", "uploads"),
			Bucket:   envHelper.GetEnvOrDefault("STORAGE_BUCKET", ""),
			Region:   envHelper.GetEnvOrDefault("AWS_REGION", "us-east-1"),
			Endpoint: envHelper.GetEnvOrDefault("S3_ENDPOINT", ""),
			Prefix:   envHelper.GetEnvOrDefault("STORAGE_PREFIX", "leaves"),
		},
		Pipeline: PipelineConfig{
			Rasterizer:   envHelper.GetEnvOrDefault("RASTERIZER", "fitz"),
			Scale:        envHelper.GetEnvFloat("RENDER_SCALE", 2.0),
			Workers:      envHelper.GetEnvInt("RENDER_WORKERS", 4),
			ReorderDepth: envHelper.GetEnvInt("REORDER_DEPTH", 8),
		},
		Auth: AuthConfig{
			SessionTTL:     envHelper.GetEnvDuration("SESSION_TTL", 7*24*time.Hour),
			BcryptCost:     envHelper.GetEnvInt("BCRYPT_COST", 10),
			LoginPerMinute: envHelper.GetEnvInt("LOGIN_PER_MINUTE", 20),
		},
		Dispatcher: DispatcherConfig{
			WorkerCount: envHelper.GetEnvInt("WORKER_COUNT", 2),
			QueueSize:   envHelper.GetEnvInt("QUEUE_SIZE", 10),
		},
		Log: LogConfig{
			Level:        envHelper.GetEnvOrDefault("LOG_LEVEL", "info"),
			Format:       envHelper.GetEnvOrDefault("LOG_FORMAT", "text"),
			ReportCaller: envHelper.GetEnvBool("LOG_CALLER", false),
		},
	}
}

// DSN returns the data source name for the configured driver.
func (c DatabaseConfig) DSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC", c.User, c.Password, c.Host, c.Port, c.Name)
	default:
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", c.Path)
	}
}

// Redacted is the DSN with the password masked, for logs.
func (c DatabaseConfig) Redacted() string {
	if c.Driver != "mysql" {
		return c.DSN()
	}
	return fmt.Sprintf("%s:****@tcp(%s:%s)/%s", c.User, c.Host, c.Port, c.Name)
}
