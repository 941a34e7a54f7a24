// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Reconcile   ReconcileConfig
	Cache       CacheConfig
	Archive     ArchiveConfig
	SalesSource SalesSourceConfig
	Drive       DriveConfig
	LogLevel    string
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver         string
	URL            string
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	SQLitePath     string
	MaxConcurrency int
}

type ReconcileConfig struct {
	BatchSize      int
	DefaultNode    string
	StockCountry   string
	LockEnabled    bool
	LockTTLSeconds int
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	ReportTTLSeconds int
}

type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type SalesSourceConfig struct {
	DSN   string
	Query string
}

type DriveConfig struct {
	CredentialsJSON string
	StockFolderID   string
}

var (
	once     sync.Once
	instance *Config
)

// Load reads configuration once per process.
func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		// Set default values
		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 30)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 300)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("LOG_LEVEL", "info")
		viper.SetDefault("STORE_DRIVER", "postgres")
		viper.SetDefault("DATABASE_URL", "")
		viper.SetDefault("DB_HOST", "")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "")
		viper.SetDefault("DB_NAME", "plan_demanda")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("SQLITE_PATH", "./data/plan_demanda.db")
		viper.SetDefault("DB_MAX_CONCURRENCY", 10)
		viper.SetDefault("RECONCILE_BATCH_SIZE", 50)
		viper.SetDefault("RECONCILE_DEFAULT_NODE", "Mercadolibre_Chile")
		viper.SetDefault("RECONCILE_STOCK_COUNTRY", "Chile")
		viper.SetDefault("RECONCILE_LOCK_ENABLED", true)
		viper.SetDefault("RECONCILE_LOCK_TTL_SECONDS", 300)
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_REPORT_TTL_SECONDS", 120)
		viper.SetDefault("ARCHIVE_ENABLED", false)
		viper.SetDefault("S3_BUCKET", "plan-demanda-uploads")
		viper.SetDefault("S3_USE_SSL", true)
		viper.SetDefault("SALES_SOURCE_DSN", "")
		viper.SetDefault("SALES_SOURCE_QUERY", "")
		viper.SetDefault("GOOGLE_DRIVE_CREDENTIALS_JSON", "")
		viper.SetDefault("GOOGLE_DRIVE_STOCK_FOLDER", "")

		// Read from environment variables
		viper.AutomaticEnv()

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Driver:         viper.GetString("STORE_DRIVER"),
				URL:            viper.GetString("DATABASE_URL"),
				Host:           viper.GetString("DB_HOST"),
				Port:           viper.GetString("DB_PORT"),
				User:           viper.GetString("DB_USER"),
				Password:       viper.GetString("DB_PASSWORD"),
				DBName:         viper.GetString("DB_NAME"),
				SSLMode:        viper.GetString("DB_SSLMODE"),
				SQLitePath:     viper.GetString("SQLITE_PATH"),
				MaxConcurrency: viper.GetInt("DB_MAX_CONCURRENCY"),
			},
			Reconcile: ReconcileConfig{
				BatchSize:      viper.GetInt("RECONCILE_BATCH_SIZE"),
				DefaultNode:    viper.GetString("RECONCILE_DEFAULT_NODE"),
				StockCountry:   viper.GetString("RECONCILE_STOCK_COUNTRY"),
				LockEnabled:    viper.GetBool("RECONCILE_LOCK_ENABLED"),
				LockTTLSeconds: viper.GetInt("RECONCILE_LOCK_TTL_SECONDS"),
			},
			Cache: CacheConfig{
				Enabled:          viper.GetBool("CACHE_ENABLED"),
				RedisURL:         viper.GetString("REDIS_URL"),
				RedisHost:        viper.GetString("REDIS_HOST"),
				RedisPort:        viper.GetString("REDIS_PORT"),
				RedisPassword:    viper.GetString("REDIS_PASSWORD"),
				RedisDB:          viper.GetInt("REDIS_DB"),
				ReportTTLSeconds: viper.GetInt("CACHE_REPORT_TTL_SECONDS"),
			},
			Archive: ArchiveConfig{
				Enabled:   viper.GetBool("ARCHIVE_ENABLED"),
				Endpoint:  viper.GetString("S3_ENDPOINT"),
				AccessKey: viper.GetString("S3_ACCESS_KEY"),
				SecretKey: viper.GetString("S3_SECRET_KEY"),
				Bucket:    viper.GetString("S3_BUCKET"),
				UseSSL:    viper.GetBool("S3_USE_SSL"),
			},
			SalesSource: SalesSourceConfig{
				DSN:   viper.GetString("SALES_SOURCE_DSN"),
				Query: viper.GetString("SALES_SOURCE_QUERY"),
			},
			Drive: DriveConfig{
				CredentialsJSON: viper.GetString("GOOGLE_DRIVE_CREDENTIALS_JSON"),
				StockFolderID:   viper.GetString("GOOGLE_DRIVE_STOCK_FOLDER"),
			},
			LogLevel: viper.GetString("LOG_LEVEL"),
		}
	})

	return instance
}

// Validate reports missing store configuration.
func (c DatabaseConfig) Validate() error {
	switch c.Driver {
	case "memory":
		return nil
	case "sqlite3":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for STORE_DRIVER=sqlite3")
		}
		return nil
	case "postgres", "pgx":
		if c.URL == "" && c.Host == "" {
			return fmt.Errorf("DATABASE_URL or DB_HOST is required for STORE_DRIVER=%s", c.Driver)
		}
		return nil
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Driver)
	}
}

// DSN returns the connection string for the configured driver.
func (c DatabaseConfig) DSN() string {
	switch c.Driver {
	case "sqlite3":
		return c.SQLitePath
	case "memory":
		return ""
	}
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
