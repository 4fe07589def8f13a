package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/impactdash/internal/db"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig
	Database  db.Config
	Ingestion IngestionConfig
	Export    ExportConfig
	Auth      AuthConfig
	Log       LogConfig
	Reconcile ReconcileConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

// IngestionConfig tunes the upload pipeline.
type IngestionConfig struct {
	CSVMode           string
	Delimiter         string
	MaxReturnedErrors int
	MaxUploadBytes    int64
	PreviewRows       int
	UploadsPerMinute  int
	UploadBurst       int
	HeartbeatInterval time.Duration
}

// ExportConfig tunes observation exports.
type ExportConfig struct {
	PageSize int
}

// AuthConfig holds the owner fallback used when a request carries no owner header.
type AuthConfig struct {
	DefaultOwnerID uuid.UUID
}

// LogConfig selects the zap logger flavour.
type LogConfig struct {
	Level  string
	Format string
}

// ReconcileConfig controls the stale upload sweep.
type ReconcileConfig struct {
	OlderThan time.Duration
}

// Flags registers the command line overrides shared by the binaries.
func Flags(fs *pflag.FlagSet) {
	fs.String("config-dir", ".", "directory containing config.yaml")
	fs.String("server.addr", "", "HTTP listen address")
	fs.String("log.level", "", "log level (debug, info, warn, error)")
	fs.String("log.format", "", "log format (json or console)")
	fs.String("database.migrations", "", "path to the SQL migrations directory")
	fs.Duration("reconcile.older_than", 0, "age after which a processing upload is considered stale")
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", dbDefaults.MaxConns)
	v.SetDefault("database.migrations", dbDefaults.MigrationsPath)

	v.SetDefault("ingestion.csv_mode", "naive")
	v.SetDefault("ingestion.delimiter", ",")
	v.SetDefault("ingestion.max_returned_errors", 10)
	v.SetDefault("ingestion.max_upload_bytes", int64(32<<20))
	v.SetDefault("ingestion.preview_rows", 10)
	v.SetDefault("ingestion.uploads_per_minute", 30)
	v.SetDefault("ingestion.upload_burst", 5)
	v.SetDefault("ingestion.heartbeat_interval", 30*time.Second)

	v.SetDefault("export.page_size", 1000)

	v.SetDefault("auth.default_owner_id", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("reconcile.older_than", time.Hour)
}

// Load reads config.yaml from the --config-dir flag (when present), then
// environment variables prefixed IMPACT_ (IMPACT_DATABASE_HOST, ...), then
// any flags explicitly set on fs. Later sources win.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	configDir := "."
	if fs != nil {
		if dir, err := fs.GetString("config-dir"); err == nil && dir != "" {
			configDir = dir
		}
	}
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("IMPACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if fs != nil {
		var bindErr error
		fs.Visit(func(f *pflag.Flag) {
			if f.Name == "config-dir" || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(f.Name, f)
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Addr:         v.GetString("server.addr"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
			IdleTimeout:  v.GetDuration("server.idle_timeout"),
			CORSOrigins:  v.GetStringSlice("server.cors_origins"),
		},
		Database: db.Config{
			Host:           v.GetString("database.host"),
			Port:           v.GetInt("database.port"),
			User:           v.GetString("database.user"),
			Password:       v.GetString("database.password"),
			DBName:         v.GetString("database.dbname"),
			SSLMode:        v.GetString("database.sslmode"),
			MaxConns:       v.GetInt32("database.max_conns"),
			MigrationsPath: v.GetString("database.migrations"),
		},
		Ingestion: IngestionConfig{
			CSVMode:           strings.ToLower(strings.TrimSpace(v.GetString("ingestion.csv_mode"))),
			Delimiter:         v.GetString("ingestion.delimiter"),
			MaxReturnedErrors: v.GetInt("ingestion.max_returned_errors"),
			MaxUploadBytes:    v.GetInt64("ingestion.max_upload_bytes"),
			PreviewRows:       v.GetInt("ingestion.preview_rows"),
			UploadsPerMinute:  v.GetInt("ingestion.uploads_per_minute"),
			UploadBurst:       v.GetInt("ingestion.upload_burst"),
			HeartbeatInterval: v.GetDuration("ingestion.heartbeat_interval"),
		},
		Export: ExportConfig{
			PageSize: v.GetInt("export.page_size"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Reconcile: ReconcileConfig{
			OlderThan: v.GetDuration("reconcile.older_than"),
		},
	}

	if raw := strings.TrimSpace(v.GetString("auth.default_owner_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid auth.default_owner_id: %w", err)
		}
		cfg.Auth.DefaultOwnerID = id
	}

	switch cfg.Ingestion.CSVMode {
	case "naive", "rfc4180":
	default:
		return Config{}, fmt.Errorf("invalid ingestion.csv_mode %q (want naive or rfc4180)", cfg.Ingestion.CSVMode)
	}
	if cfg.Ingestion.HeartbeatInterval > 0 && cfg.Reconcile.OlderThan <= cfg.Ingestion.HeartbeatInterval {
		return Config{}, fmt.Errorf("reconcile.older_than (%s) must exceed ingestion.heartbeat_interval (%s)",
			cfg.Reconcile.OlderThan, cfg.Ingestion.HeartbeatInterval)
	}
	if len([]rune(cfg.Ingestion.Delimiter)) != 1 {
		return Config{}, fmt.Errorf("ingestion.delimiter must be a single character")
	}

	return cfg, nil
}
