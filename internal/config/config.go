package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Paths   PathsConfig   `yaml:"paths" mapstructure:"paths"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Upload  UploadConfig  `yaml:"upload" mapstructure:"upload"`
	ImgHost ImgHostConfig `yaml:"imghost" mapstructure:"imghost"`
	Raster  RasterConfig  `yaml:"raster" mapstructure:"raster"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// PathsConfig locates pipeline inputs and outputs.
type PathsConfig struct {
	InvoicesDir   string `yaml:"invoices_dir" mapstructure:"invoices_dir"`
	ImagesDir     string `yaml:"images_dir" mapstructure:"images_dir"`
	AttemptsDir   string `yaml:"attempts_dir" mapstructure:"attempts_dir"`
	ComparisonCSV string `yaml:"comparison_csv" mapstructure:"comparison_csv"`
	MergedXLSX    string `yaml:"merged_xlsx" mapstructure:"merged_xlsx"`
}

// CacheConfig selects the upload cache backend.
type CacheConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // json, sqlite, postgres
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// UploadConfig is the retry policy for image uploads.
type UploadConfig struct {
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	DelayMs           int     `yaml:"delay_ms" mapstructure:"delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	MaxDelayMs        int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec        float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ImgHostConfig holds image host credentials.
type ImgHostConfig struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
}

// RasterConfig configures PDF page rasterization.
type RasterConfig struct {
	PdfToPPMPath string `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	DPI          int    `yaml:"dpi" mapstructure:"dpi"`
}

// ExtractConfig configures the extraction model.
type ExtractConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	Attempts    int    `yaml:"attempts" mapstructure:"attempts"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	// Temperature is the sampling temperature sent with every attempt.
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BILLRECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("paths.invoices_dir", "Invoices")
	v.SetDefault("paths.images_dir", "Temp_Images")
	v.SetDefault("paths.attempts_dir", "JSON_Output_vision_validation")
	v.SetDefault("paths.comparison_csv", "validation_invoice_comparison.csv")
	v.SetDefault("paths.merged_xlsx", "validation_merged_invoices.xlsx")
	v.SetDefault("cache.driver", "json")
	v.SetDefault("cache.path", "imgur_uploads.json")
	v.SetDefault("cache.database_url", "")
	v.SetDefault("upload.max_attempts", 3)
	v.SetDefault("upload.delay_ms", 5000)
	v.SetDefault("upload.backoff_multiplier", 1.0)
	v.SetDefault("upload.max_delay_ms", 60000)
	v.SetDefault("upload.timeout_secs", 15)
	v.SetDefault("upload.rate_per_sec", 0)
	v.SetDefault("imghost.endpoint", "https://api.imgur.com/3/image")
	v.SetDefault("imghost.client_id", "")
	v.SetDefault("raster.pdftoppm_path", "pdftoppm")
	v.SetDefault("raster.dpi", 200)
	v.SetDefault("extract.key", "")
	v.SetDefault("extract.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("extract.attempts", 3)
	v.SetDefault("extract.concurrency", 2)
	v.SetDefault("extract.max_tokens", 4096)
	v.SetDefault("extract.temperature", 1.0)
	v.SetDefault("server.port", 8080)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a given stage depends on. Stages are
// "upload", "extract", "reconcile", "run" and "serve".
func (c *Config) Validate(stage string) error {
	var errs []string

	cacheChecks := func() {
		switch c.Cache.Driver {
		case "json", "":
			if c.Cache.Path == "" {
				errs = append(errs, "cache.path is required for the json driver")
			}
		case "sqlite":
		case "postgres":
			if c.Cache.DatabaseURL == "" {
				errs = append(errs, "cache.database_url is required for the postgres driver")
			}
		default:
			errs = append(errs, "cache.driver must be one of json, sqlite, postgres")
		}
	}
	uploadChecks := func() {
		if c.ImgHost.ClientID == "" {
			errs = append(errs, "imghost.client_id is required")
		}
		if c.Paths.InvoicesDir == "" {
			errs = append(errs, "paths.invoices_dir is required")
		}
		if c.Upload.MaxAttempts < 1 {
			errs = append(errs, "upload.max_attempts must be >= 1")
		}
		if c.Upload.DelayMs < 0 {
			errs = append(errs, "upload.delay_ms must be >= 0")
		}
		cacheChecks()
	}
	extractChecks := func() {
		if c.Extract.Key == "" {
			errs = append(errs, "extract.key is required")
		}
		if c.Extract.Attempts < 1 {
			errs = append(errs, "extract.attempts must be >= 1")
		}
		if c.Extract.Concurrency < 1 || c.Extract.Concurrency > 16 {
			errs = append(errs, "extract.concurrency must be between 1 and 16")
		}
		if c.Extract.Temperature < 0 || c.Extract.Temperature > 1 {
			errs = append(errs, "extract.temperature must be between 0 and 1")
		}
	}
	reconcileChecks := func() {
		if c.Paths.AttemptsDir == "" {
			errs = append(errs, "paths.attempts_dir is required")
		}
		if c.Paths.MergedXLSX == "" {
			errs = append(errs, "paths.merged_xlsx is required")
		}
	}

	switch stage {
	case "upload":
		uploadChecks()
	case "extract":
		cacheChecks()
		extractChecks()
	case "reconcile":
		reconcileChecks()
	case "run":
		uploadChecks()
		extractChecks()
		reconcileChecks()
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown stage %q", stage)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
