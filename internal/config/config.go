package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	OCR    OCRConfig
	S3     S3Config
	App    AppConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	UIPort       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type OCRConfig struct {
	Program       string
	ProgramArgs   []string
	ModelPath     string
	Timeout       time.Duration
	MaxConcurrent int64
	QueueTimeout  time.Duration
}

type S3Config struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

type AppConfig struct {
	LogLevel       string
	UploadDir      string
	MaxUploadSize  int64
	MaxRequestSize int64
	MaxImagePixels int64
	AllowedFormats []string
	WorkspaceTTL   time.Duration
	SweepSchedule  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8000")
	v.SetDefault("UI_PORT", "7860")
	v.SetDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 0)

	v.SetDefault("OCR_PROGRAM", "python3")
	v.SetDefault("OCR_PROGRAM_ARGS", []string{"/app/GOT/demo/run_ocr_2.0.py"})
	v.SetDefault("OCR_MODEL_PATH", "/app/GOT_weights")
	v.SetDefault("OCR_TIMEOUT", 5*time.Minute)
	v.SetDefault("OCR_MAX_CONCURRENT", 1)
	v.SetDefault("OCR_QUEUE_TIMEOUT", 2*time.Minute)

	v.SetDefault("S3_ENABLED", false)
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY_ID", "")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "")
	v.SetDefault("S3_USE_SSL", false)
	v.SetDefault("S3_BUCKET_NAME", "images")
	v.SetDefault("S3_REGION", "us-east-1")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("UPLOAD_DIR", "/data/uploads")
	v.SetDefault("MAX_UPLOAD_SIZE", 20*1024*1024)   // 20MB
	v.SetDefault("MAX_REQUEST_SIZE", 100*1024*1024) // 100MB
	v.SetDefault("MAX_IMAGE_PIXELS", 50_000_000)
	v.SetDefault("ALLOWED_FORMATS", []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff", ".webp"})
	v.SetDefault("WORKSPACE_TTL", time.Hour)
	v.SetDefault("SWEEP_SCHEDULE", "@every 10m")

	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("SERVER_HOST"),
			Port:         v.GetString("SERVER_PORT"),
			UIPort:       v.GetString("UI_PORT"),
			ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		},
		OCR: OCRConfig{
			Program:       v.GetString("OCR_PROGRAM"),
			ProgramArgs:   v.GetStringSlice("OCR_PROGRAM_ARGS"),
			ModelPath:     v.GetString("OCR_MODEL_PATH"),
			Timeout:       v.GetDuration("OCR_TIMEOUT"),
			MaxConcurrent: v.GetInt64("OCR_MAX_CONCURRENT"),
			QueueTimeout:  v.GetDuration("OCR_QUEUE_TIMEOUT"),
		},
		S3: S3Config{
			Enabled:         v.GetBool("S3_ENABLED"),
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:          v.GetBool("S3_USE_SSL"),
			BucketName:      v.GetString("S3_BUCKET_NAME"),
			Region:          v.GetString("S3_REGION"),
		},
		App: AppConfig{
			LogLevel:       v.GetString("LOG_LEVEL"),
			UploadDir:      v.GetString("UPLOAD_DIR"),
			MaxUploadSize:  v.GetInt64("MAX_UPLOAD_SIZE"),
			MaxRequestSize: v.GetInt64("MAX_REQUEST_SIZE"),
			MaxImagePixels: v.GetInt64("MAX_IMAGE_PIXELS"),
			AllowedFormats: v.GetStringSlice("ALLOWED_FORMATS"),
			WorkspaceTTL:   v.GetDuration("WORKSPACE_TTL"),
			SweepSchedule:  v.GetString("SWEEP_SCHEDULE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Server.WriteTimeout <= 0 {
		// A response can only be written after the recognizer finishes, so
		// leave room for a full queue wait plus a full run.
		cfg.Server.WriteTimeout = cfg.OCR.QueueTimeout + cfg.OCR.Timeout + 30*time.Second
	}

	if err := os.MkdirAll(cfg.App.UploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", cfg.App.UploadDir, err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.OCR.Program == "" {
		return fmt.Errorf("OCR_PROGRAM must not be empty")
	}
	if c.OCR.ModelPath == "" {
		return fmt.Errorf("OCR_MODEL_PATH must not be empty")
	}
	if c.OCR.MaxConcurrent < 1 {
		return fmt.Errorf("OCR_MAX_CONCURRENT must be at least 1, got %d", c.OCR.MaxConcurrent)
	}
	if c.OCR.Timeout <= 0 {
		return fmt.Errorf("OCR_TIMEOUT must be positive, got %s", c.OCR.Timeout)
	}
	if c.App.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	if c.App.MaxRequestSize > 0 && c.App.MaxRequestSize < c.App.MaxUploadSize {
		return fmt.Errorf("MAX_REQUEST_SIZE (%d) must not be smaller than MAX_UPLOAD_SIZE (%d)", c.App.MaxRequestSize, c.App.MaxUploadSize)
	}
	// The sweeper must never reach a workspace whose request can still be running.
	if busiest := c.OCR.QueueTimeout + c.OCR.Timeout; c.App.WorkspaceTTL <= busiest {
		return fmt.Errorf("WORKSPACE_TTL (%s) must exceed OCR_QUEUE_TIMEOUT + OCR_TIMEOUT (%s)", c.App.WorkspaceTTL, busiest)
	}
	if c.S3.Enabled && c.S3.BucketName == "" {
		return fmt.Errorf("S3_BUCKET_NAME is required when S3_ENABLED is set")
	}
	return nil
}

func (c *Config) APIAddr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (c *Config) UIAddr() string {
	return c.Server.Host + ":" + c.Server.UIPort
}
