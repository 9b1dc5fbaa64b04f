package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/docket/internal/pipeline"
	"github.com/MrJamesThe3rd/docket/internal/storage"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	StorageDriverLocal = "local"
	StorageDriverMinIO = "minio"
)

type Config struct {
	App struct {
		Name        string        `envconfig:"APP_NAME" default:"Docket"`
		Port        int           `envconfig:"PORT" default:"8080"`
		StoreDriver string        `envconfig:"STORE_DRIVER" default:"postgres"`
		CORSOrigins []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
		Shutdown    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	}

	DB struct {
		Host            string        `envconfig:"DB_HOST" default:"localhost"`
		Port            int           `envconfig:"DB_PORT" default:"5432"`
		User            string        `envconfig:"DB_USER" default:"postgres"`
		Password        string        `envconfig:"DB_PASSWORD" default:""`
		Name            string        `envconfig:"DB_NAME" default:"docket"`
		SSLMode         string        `envconfig:"DB_SSLMODE" default:"disable"`
		MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
		MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
		ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
		Migrate         bool          `envconfig:"DB_MIGRATE" default:"true"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	Log struct {
		Level string `envconfig:"LOG_LEVEL" default:"info"`
	}

	Auth struct {
		// JWTSecret verifies HS256 bearer tokens issued by the authentication service.
		JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
		Issuer    string `envconfig:"AUTH_ISSUER"`
	}

	Upload struct {
		MaxBytes   int64  `envconfig:"UPLOAD_MAX_BYTES" default:"10485760"`
		RateLimit  string `envconfig:"UPLOAD_RATE_LIMIT" default:"30-M"`
		TrustProxy bool   `envconfig:"UPLOAD_TRUST_PROXY" default:"false"`
	}

	Storage struct {
		Driver    string `envconfig:"STORAGE_DRIVER" default:"local"`
		LocalRoot string `envconfig:"STORAGE_LOCAL_ROOT" default:"./data/uploads"`
		Endpoint  string `envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
		AccessKey string `envconfig:"STORAGE_ACCESS_KEY"`
		SecretKey string `envconfig:"STORAGE_SECRET_KEY"`
		Bucket    string `envconfig:"STORAGE_BUCKET" default:"docket"`
		UseSSL    bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
	}

	Pipeline struct {
		ReuploadThreshold  float64       `envconfig:"PIPELINE_REUPLOAD_THRESHOLD" default:"0.60"`
		AutoTrustThreshold float64       `envconfig:"PIPELINE_AUTO_TRUST_THRESHOLD" default:"0.85"`
		AutoApprove        bool          `envconfig:"PIPELINE_AUTO_APPROVE" default:"false"`
		ExtractTimeout     time.Duration `envconfig:"PIPELINE_EXTRACT_TIMEOUT" default:"30s"`
		ClassifyTimeout    time.Duration `envconfig:"PIPELINE_CLASSIFY_TIMEOUT" default:"10s"`
		Tolerance          string        `envconfig:"PIPELINE_RECONCILIATION_TOLERANCE" default:"0.05"`
		Workers            int           `envconfig:"PIPELINE_WORKERS" default:"4"`
		QueueSize          int           `envconfig:"PIPELINE_QUEUE_SIZE" default:"100"`
		SweepInterval      time.Duration `envconfig:"PIPELINE_SWEEP_INTERVAL" default:"30s"`
	}

	Extraction struct {
		RemoteURL     string        `envconfig:"EXTRACTION_REMOTE_URL"`
		RemoteToken   string        `envconfig:"EXTRACTION_REMOTE_TOKEN"`
		RemoteTimeout time.Duration `envconfig:"EXTRACTION_REMOTE_TIMEOUT" default:"25s"`
	}

	Classifier struct {
		RulesFile string `envconfig:"CLASSIFIER_RULES_FILE"`
	}

	TUI struct {
		// OwnerID is the account whose queue the terminal reviewer works on.
		OwnerID  string `envconfig:"TUI_OWNER_ID"`
		Reviewer string `envconfig:"TUI_REVIEWER" default:"terminal"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

// PipelineConfig converts the pipeline section into the orchestrator's settings.
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	tolerance, err := decimal.NewFromString(c.Pipeline.Tolerance)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("parse reconciliation tolerance: %w", err)
	}

	pc := pipeline.Config{
		ReuploadThreshold:  c.Pipeline.ReuploadThreshold,
		AutoTrustThreshold: c.Pipeline.AutoTrustThreshold,
		AutoApprove:        c.Pipeline.AutoApprove,
		ExtractTimeout:     c.Pipeline.ExtractTimeout,
		ClassifyTimeout:    c.Pipeline.ClassifyTimeout,
		Tolerance:          tolerance,
		MaxUploadBytes:     c.Upload.MaxBytes,
		Workers:            c.Pipeline.Workers,
		QueueSize:          c.Pipeline.QueueSize,
		SweepInterval:      c.Pipeline.SweepInterval,
	}

	return pc, pc.Validate()
}

func (c *Config) MinIO() storage.MinIOConfig {
	return storage.MinIOConfig{
		Endpoint:  c.Storage.Endpoint,
		AccessKey: c.Storage.AccessKey,
		SecretKey: c.Storage.SecretKey,
		Bucket:    c.Storage.Bucket,
		UseSSL:    c.Storage.UseSSL,
	}
}

func (c *Config) validate() error {
	var errs []error

	switch c.App.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMemory))
	}

	switch c.Storage.Driver {
	case StorageDriverLocal, StorageDriverMinIO:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be %q or %q", StorageDriverLocal, StorageDriverMinIO))
	}

	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}

	if _, err := c.PipelineConfig(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
