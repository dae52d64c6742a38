package main

import (
	"fmt"
	"os"
	"time"

	"examgrader/internal/common/cache"
	"examgrader/internal/common/db"
	"examgrader/internal/common/mq"
	"examgrader/internal/common/storage"
	"examgrader/internal/grading/service"
	"examgrader/internal/sandbox"
	"examgrader/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 2 * time.Minute
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// DatabaseConfig adds schema bootstrap to the MySQL pool settings.
type DatabaseConfig struct {
	db.MySQLConfig `yaml:",inline"`
	AutoMigrate    bool `yaml:"autoMigrate"`
}

// GradingConfig holds grading settings.
type GradingConfig struct {
	GradeConcurrency int                   `yaml:"gradeConcurrency"`
	MaxCodeBytes     int                   `yaml:"maxCodeBytes"`
	BankCacheTTL     time.Duration         `yaml:"bankCacheTTL"`
	BankEmptyTTL     time.Duration         `yaml:"bankEmptyTTL"`
	ArchivePrefix    string                `yaml:"archivePrefix"`
	GradedTopic      string                `yaml:"gradedTopic"`
	Timeouts         service.TimeoutConfig `yaml:"timeouts"`
}

// AppConfig holds grading-service configuration.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logger   logger.Config       `yaml:"logger"`
	Database DatabaseConfig      `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	Kafka    mq.KafkaConfig      `yaml:"kafka"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	Sandbox  sandbox.Config      `yaml:"sandbox"`
	Grading  GradingConfig       `yaml:"grading"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	if cfg.Grading.GradeConcurrency == 0 {
		cfg.Grading.GradeConcurrency = 4
	}
	if cfg.Grading.MaxCodeBytes == 0 {
		cfg.Grading.MaxCodeBytes = 64 * 1024
	}
	if cfg.Grading.BankCacheTTL == 0 {
		cfg.Grading.BankCacheTTL = 10 * time.Minute
	}
	if cfg.Grading.BankEmptyTTL == 0 {
		cfg.Grading.BankEmptyTTL = time.Minute
	}
	if cfg.Grading.ArchivePrefix == "" {
		cfg.Grading.ArchivePrefix = "submissions"
	}
	if cfg.Grading.GradedTopic == "" {
		cfg.Grading.GradedTopic = "grading.submission.graded"
	}
	if cfg.Grading.Timeouts.DB == 0 {
		cfg.Grading.Timeouts.DB = 3 * time.Second
	}
	if cfg.Grading.Timeouts.Publish == 0 {
		cfg.Grading.Timeouts.Publish = 3 * time.Second
	}
	if cfg.Grading.Timeouts.Archive == 0 {
		cfg.Grading.Timeouts.Archive = 5 * time.Second
	}

	return &cfg, nil
}
