/*
Copyright 2025 Taskilo Authors.

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

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5401"

	// DEFAULT_CLEARING_DAYS is how long held funds wait before they become
	// eligible for the payout batch.
	DEFAULT_CLEARING_DAYS = 7

	// DEFAULT_AMOUNT_TOLERANCE_PERCENT is the allowed drift between the
	// escrow amount and the incoming bank transfer before the hold is
	// flagged for manual review.
	DEFAULT_AMOUNT_TOLERANCE_PERCENT = 1.0

	DEFAULT_PAYOUT_CRON     = "0 6 * * *"
	DEFAULT_PAYOUT_TIMEZONE = "Europe/Berlin"

	DEFAULT_WEBHOOK_QUEUE = "new:webhook"
	DEFAULT_PAYOUT_QUEUE  = "new:payout"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"ESCROW_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"ESCROW_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"ESCROW_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"ESCROW_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"ESCROW_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"ESCROW_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"ESCROW_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"ESCROW_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"ESCROW_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	WebhookQueue   string `json:"webhook_queue" envconfig:"ESCROW_QUEUE_WEBHOOK"`
	PayoutQueue    string `json:"payout_queue" envconfig:"ESCROW_QUEUE_PAYOUT"`
	MonitoringPort string `json:"monitoring_port" envconfig:"ESCROW_QUEUE_MONITORING_PORT"`
}

// GatewayConfig points at the trusted payment proxy that fronts the banking
// provider. All money movement (checkout sessions, refunds, payout batches)
// goes through it.
type GatewayConfig struct {
	Url            string `json:"url" envconfig:"ESCROW_GATEWAY_URL"`
	ApiKey         string `json:"api_key" envconfig:"ESCROW_GATEWAY_API_KEY"`
	TimeoutSec     int    `json:"timeout_sec" envconfig:"ESCROW_GATEWAY_TIMEOUT_SEC"`
	MaxRetrySec    int    `json:"max_retry_sec" envconfig:"ESCROW_GATEWAY_MAX_RETRY_SEC"`
	CheckoutReturn string `json:"checkout_return_url" envconfig:"ESCROW_GATEWAY_CHECKOUT_RETURN_URL"`
}

// TransactionWebhookConfig authenticates the inbound transaction feed from
// the proxy. Requests must carry the shared secret and name an allowed
// origin, otherwise they are rejected before any processing happens.
type TransactionWebhookConfig struct {
	ProxySecret    string   `json:"proxy_secret" envconfig:"ESCROW_WEBHOOK_PROXY_SECRET"`
	AllowedOrigins []string `json:"allowed_origins" envconfig:"ESCROW_WEBHOOK_ALLOWED_ORIGINS"`
}

type PayoutConfig struct {
	ApiKey   string `json:"api_key" envconfig:"ESCROW_PAYOUT_API_KEY"`
	Cron     string `json:"cron" envconfig:"ESCROW_PAYOUT_CRON"`
	TimeZone string `json:"time_zone" envconfig:"ESCROW_PAYOUT_TIME_ZONE"`
}

// EscrowPolicyConfig carries the business policy knobs of the lifecycle and
// reconciliation engine. Both values are policy, not code, so operators can
// change them without a deploy.
type EscrowPolicyConfig struct {
	DefaultClearingDays    int     `json:"default_clearing_days" envconfig:"ESCROW_DEFAULT_CLEARING_DAYS"`
	AmountTolerancePercent float64 `json:"amount_tolerance_percent" envconfig:"ESCROW_AMOUNT_TOLERANCE_PERCENT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"ESCROW_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"ESCROW_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"ESCROW_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName        string                   `json:"project_name" envconfig:"ESCROW_PROJECT_NAME"`
	Server             ServerConfig             `json:"server"`
	DataSource         DataSourceConfig         `json:"data_source"`
	Redis              RedisConfig              `json:"redis"`
	Queue              QueueConfig              `json:"queue"`
	Gateway            GatewayConfig            `json:"gateway"`
	TransactionWebhook TransactionWebhookConfig `json:"transaction_webhook"`
	Payout             PayoutConfig             `json:"payout"`
	EscrowPolicy       EscrowPolicyConfig       `json:"escrow_policy"`
	Notification       Notification             `json:"notification"`
	RateLimit          RateLimitConfig          `json:"rate_limit"`
	BackupDir          string                   `json:"backup_dir" envconfig:"ESCROW_BACKUP_DIR"`
	AwsAccessKeyId     string                   `json:"aws_access_key_id"`
	AwsSecretAccessKey string                   `json:"aws_secret_access_key"`
	S3BucketName       string                   `json:"s3_bucket_name"`
	S3Region           string                   `json:"s3_region"`
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
	err = envconfig.Process("escrow", &cnf)
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
		return nil, errors.New("config not loaded from file. Create a json file called escrow.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Escrow Engine"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Gateway.Url == "" {
		log.Println("Error: Gateway URL is empty. It's a required field.")
		return errors.New("gateway URL is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Gateway.Url = strings.TrimSpace(strings.TrimSuffix(cnf.Gateway.Url, "/"))

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Gateway.TimeoutSec <= 0 {
		cnf.Gateway.TimeoutSec = 30
	}
	if cnf.Gateway.MaxRetrySec <= 0 {
		cnf.Gateway.MaxRetrySec = 60
	}

	if cnf.EscrowPolicy.DefaultClearingDays <= 0 {
		cnf.EscrowPolicy.DefaultClearingDays = DEFAULT_CLEARING_DAYS
	}
	if cnf.EscrowPolicy.AmountTolerancePercent <= 0 {
		cnf.EscrowPolicy.AmountTolerancePercent = DEFAULT_AMOUNT_TOLERANCE_PERCENT
	}

	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = DEFAULT_WEBHOOK_QUEUE
	}
	if cnf.Queue.PayoutQueue == "" {
		cnf.Queue.PayoutQueue = DEFAULT_PAYOUT_QUEUE
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5001"
	}

	if cnf.Payout.Cron == "" {
		cnf.Payout.Cron = DEFAULT_PAYOUT_CRON
	}
	if cnf.Payout.TimeZone == "" {
		cnf.Payout.TimeZone = DEFAULT_PAYOUT_TIMEZONE
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

	// Set default cleanup interval if not specified
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
		log.Printf("Warning: Rate limit cleanup interval not specified. Setting default value: %d seconds", defaultCleanup)
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
