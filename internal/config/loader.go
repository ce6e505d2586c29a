package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rpattn/reportengine/internal/db"
)

// EnvPrefix namespaces environment overrides, e.g. REPORTS_DATABASE_HOST.
const EnvPrefix = "REPORTS"

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins       []string      `mapstructure:"cors_origins"`
	PermissionsHeader string        `mapstructure:"permissions_header"`
	PrincipalHeader   string        `mapstructure:"principal_header"`
}

type PDFConfig struct {
	Browser     bool          `mapstructure:"browser"`
	ChromePath  string        `mapstructure:"chrome_path"`
	NoSandbox   bool          `mapstructure:"no_sandbox"`
	Timeout     time.Duration `mapstructure:"timeout"`
	FontDir     string        `mapstructure:"font_dir"`
	FontRegular string        `mapstructure:"font_regular"`
	FontBold    string        `mapstructure:"font_bold"`
	FontFamily  string        `mapstructure:"font_family"`
}

type ReportConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig `mapstructure:"server"`
	Database db.Config    `mapstructure:"database"`
	PDF      PDFConfig    `mapstructure:"pdf"`
	Report   ReportConfig `mapstructure:"report"`
	Log      LogConfig    `mapstructure:"log"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      3 * time.Minute,
			IdleTimeout:       60 * time.Second,
			RequestTimeout:    2 * time.Minute,
			ShutdownTimeout:   30 * time.Second,
			CORSOrigins:       []string{"http://localhost:3000"},
			PermissionsHeader: "X-User-Permissions",
			PrincipalHeader:   "X-User-ID",
		},
		Database: db.DefaultConfig(),
		PDF: PDFConfig{
			Browser:     true,
			Timeout:     60 * time.Second,
			FontDir:     "fonts",
			FontRegular: "NotoSansHebrew-Regular.ttf",
			FontBold:    "NotoSansHebrew-Bold.ttf",
			FontFamily:  "NotoSansHebrew",
		},
		Report: ReportConfig{Timezone: "Asia/Jerusalem"},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads config.yaml and .env from configPath, then applies REPORTS_*
// environment overrides on top of DefaultConfig.
func Load(configPath string) (Config, error) {
	if err := godotenv.Load(filepath.Join(configPath, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)
	v.SetDefault("server.request_timeout", cfg.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.cors_origins", cfg.Server.CORSOrigins)
	v.SetDefault("server.permissions_header", cfg.Server.PermissionsHeader)
	v.SetDefault("server.principal_header", cfg.Server.PrincipalHeader)

	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)
	v.SetDefault("database.migrate", cfg.Database.Migrate)

	v.SetDefault("pdf.browser", cfg.PDF.Browser)
	v.SetDefault("pdf.chrome_path", cfg.PDF.ChromePath)
	v.SetDefault("pdf.no_sandbox", cfg.PDF.NoSandbox)
	v.SetDefault("pdf.timeout", cfg.PDF.Timeout)
	v.SetDefault("pdf.font_dir", cfg.PDF.FontDir)
	v.SetDefault("pdf.font_regular", cfg.PDF.FontRegular)
	v.SetDefault("pdf.font_bold", cfg.PDF.FontBold)
	v.SetDefault("pdf.font_family", cfg.PDF.FontFamily)

	v.SetDefault("report.timezone", cfg.Report.Timezone)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case db.DriverPostgres, db.DriverMySQL:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// Location resolves the report time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid report.timezone %q: %w", c.Report.Timezone, err)
	}
	return loc, nil
}
