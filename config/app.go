package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/feichai0017/sheetscan/internal/agent/document/image/preprocess"
	"github.com/feichai0017/sheetscan/internal/agent/document/pdf"
	"github.com/feichai0017/sheetscan/internal/analysis"
	"github.com/feichai0017/sheetscan/internal/table"
	"github.com/feichai0017/sheetscan/pkg/retry"
)

const defaultConfigFile = "config.yaml"

var (
	appOnce   sync.Once
	appConfig *AppConfig
)

// AppConfig 服务进程与处理流水线配置
type AppConfig struct {
	ServerAddr    string        `yaml:"serverAddr"`
	HealthAddr    string        `yaml:"healthAddr"`
	LogLevel      string        `yaml:"logLevel"`
	LogEncoding   string        `yaml:"logEncoding"`
	LogFile       string        `yaml:"logFile"`
	StorageType   string        `yaml:"storageType"`
	MaxUploadSize int64         `yaml:"maxUploadSize"`
	MaxPDFPages   int           `yaml:"maxPdfPages"`
	Retention     time.Duration `yaml:"retention"`

	Pipeline PipelineConfig `yaml:"pipeline"`
}

// PipelineConfig 流水线调优参数, 可在 YAML 中覆盖
type PipelineConfig struct {
	// InitialDelay is the pause before the OCR call.
	InitialDelay time.Duration     `yaml:"initialDelay"`
	OCRRetry     retry.Policy      `yaml:"ocrRetry"`
	Table        table.Config      `yaml:"table"`
	Analysis     analysis.Config   `yaml:"analysis"`
	Preprocess   preprocess.Config `yaml:"preprocess"`
	PDF          pdf.Options       `yaml:"pdf"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		InitialDelay: time.Second,
		OCRRetry:     retry.DefaultPolicy(),
		Table:        table.DefaultConfig(),
		Analysis:     analysis.DefaultConfig(),
		Preprocess:   preprocess.DefaultConfig(),
		PDF:          pdf.DefaultOptions(),
	}
}

// GetAppConfig loads once. A broken YAML file is logged and the environment values are used.
func GetAppConfig() *AppConfig {
	appOnce.Do(func() {
		loadEnv()
		cfg, err := LoadAppConfig()
		if err != nil {
			log.Printf("Warning: %v, using environment configuration only", err)
			cfg = appFromEnv()
		}
		appConfig = cfg
	})
	return appConfig
}

// LoadAppConfig reads the environment, then overlays the YAML file named by
// SHEETSCAN_CONFIG. Without that variable config.yaml is used when present.
func LoadAppConfig() (*AppConfig, error) {
	cfg := appFromEnv()

	path, explicit := os.LookupEnv("SHEETSCAN_CONFIG")
	if !explicit || strings.TrimSpace(path) == "" {
		path, explicit = defaultConfigFile, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func appFromEnv() *AppConfig {
	return &AppConfig{
		ServerAddr:    getEnv("SERVER_ADDR", ":8080"),
		HealthAddr:    getEnv("HEALTH_ADDR", ":50051"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogEncoding:   getEnv("LOG_ENCODING", "json"),
		LogFile:       getEnv("LOG_FILE", ""),
		StorageType:   getEnv("STORAGE_TYPE", "minio"),
		MaxUploadSize: int64(getInt("MAX_UPLOAD_MB", 10)) << 20,
		MaxPDFPages:   getInt("MAX_PDF_PAGES", 50),
		Retention:     getDuration("RESULT_RETENTION", 24*time.Hour),
		Pipeline:      DefaultPipelineConfig(),
	}
}
