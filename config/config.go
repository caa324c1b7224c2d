/*
Copyright 2025 Geocell Labs Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"COVERAGE_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"COVERAGE_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"COVERAGE_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"COVERAGE_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"COVERAGE_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"COVERAGE_SERVER_PORT"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"COVERAGE_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"COVERAGE_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	IngestionQueue     string `json:"ingestion_queue" envconfig:"COVERAGE_QUEUE_INGESTION"`
	RetryQueue         string `json:"retry_queue" envconfig:"COVERAGE_QUEUE_RETRY"`
	NumberOfQueues     int    `json:"number_of_queues" envconfig:"COVERAGE_QUEUE_NUMBER_OF_QUEUES"`
	MonitoringPort     string `json:"monitoring_port" envconfig:"COVERAGE_QUEUE_MONITORING_PORT"`
	MaxRetryAttempts   int    `json:"max_retry_attempts" envconfig:"COVERAGE_QUEUE_MAX_RETRY_ATTEMPTS"`
	BackoffBaseSeconds int    `json:"backoff_base_seconds" envconfig:"COVERAGE_QUEUE_BACKOFF_BASE_SECONDS"`
}

type StoreConfig struct {
	StatusPrefix   string `json:"status_prefix" envconfig:"COVERAGE_STORE_STATUS_PREFIX"`
	CoveragePrefix string `json:"coverage_prefix" envconfig:"COVERAGE_STORE_COVERAGE_PREFIX"`
	RetentionDays  int    `json:"retention_days" envconfig:"COVERAGE_STORE_RETENTION_DAYS"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"COVERAGE_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"COVERAGE_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"COVERAGE_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"COVERAGE_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type OtelGrafanaCloud struct {
	OtelExporterOtlpProtocol string `json:"OTEL_EXPORTER_OTLP_PROTOCOL" envconfig:"OTEL_EXPORTER_OTLP_PROTOCOL"`
	OtelExporterOtlpEndpoint string `json:"OTEL_EXPORTER_OTLP_ENDPOINT" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpHeaders  string `json:"OTEL_EXPORTER_OTLP_HEADERS" envconfig:"OTEL_EXPORTER_OTLP_HEADERS"`
}

type Configuration struct {
	ProjectName        string          `json:"project_name" envconfig:"COVERAGE_PROJECT_NAME"`
	BackupDir          string          `json:"backup_dir" envconfig:"COVERAGE_BACKUP_DIR"`
	AwsAccessKeyId     string          `json:"aws_access_key_id"`
	AwsSecretAccessKey string          `json:"aws_secret_access_key"`
	S3Endpoint         string          `json:"s3_endpoint"`
	S3BucketName       string          `json:"s3_bucket_name"`
	S3Region           string          `json:"s3_region"`
	Server             ServerConfig    `json:"server"`
	Redis              RedisConfig     `json:"redis"`
	Queue              QueueConfig     `json:"queue"`
	Store              StoreConfig     `json:"store"`
	RateLimit          RateLimitConfig  `json:"rate_limit"`
	Notification       Notification     `json:"notification"`
	OtelGrafanaCloud   OtelGrafanaCloud `json:"otel_grafana_cloud"`
}

// SetGrafanaExporterEnvs exports the OTLP settings as environment variables
// so the OTel SDK picks them up during setup.
func SetGrafanaExporterEnvs() error {
	cnf, err := Fetch()
	if err != nil {
		return err
	}
	if err := os.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", cnf.OtelGrafanaCloud.OtelExporterOtlpProtocol); err != nil {
		return err
	}
	if err := os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cnf.OtelGrafanaCloud.OtelExporterOtlpEndpoint); err != nil {
		return err
	}
	return os.Setenv("OTEL_EXPORTER_OTLP_HEADERS", cnf.OtelGrafanaCloud.OtelExporterOtlpHeaders)
}

// Retention returns the TTL applied to status and coverage rows.
func (cnf *Configuration) Retention() time.Duration {
	return time.Duration(cnf.Store.RetentionDays) * 24 * time.Hour
}

// BackoffUnit returns the base time unit for exponential retry backoff.
func (cnf *Configuration) BackoffUnit() time.Duration {
	return time.Duration(cnf.Queue.BackoffBaseSeconds) * time.Second
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("coverage", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called coverage.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Coverage Server"
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Queue.IngestionQueue == "" {
		cnf.Queue.IngestionQueue = "ingestion_queue"
	}
	if cnf.Queue.RetryQueue == "" {
		cnf.Queue.RetryQueue = "retry_queue"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = 4
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5002"
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 3
	}
	if cnf.Queue.BackoffBaseSeconds <= 0 {
		cnf.Queue.BackoffBaseSeconds = 1
	}

	if cnf.Store.StatusPrefix == "" {
		cnf.Store.StatusPrefix = "status"
	}
	if cnf.Store.CoveragePrefix == "" {
		cnf.Store.CoveragePrefix = "coverage"
	}
	if cnf.Store.RetentionDays <= 0 {
		cnf.Store.RetentionDays = 90
	}

	if cnf.BackupDir == "" {
		cnf.BackupDir = "backups"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	if err := mockConfig.validateAndAddDefaults(); err != nil {
		logrus.Error(err)
	}
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
