/*
Copyright 2024 Blnk Finance Authors.

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
	DEFAULT_PORT                = "9090"
	DEFAULT_DRIVER              = "sqlite3"
	DEFAULT_REMOTE_TIMEOUT      = 10
	DEFAULT_SYNCED_DAYS         = 7
	DEFAULT_STALE_DAYS          = 14
	DEFAULT_RECOVERY_INTERVAL   = 300
	DEFAULT_STUCK_THRESHOLD     = 900
	DEFAULT_BRANCH_CACHE_TTL    = 600
	DEFAULT_WEBHOOK_QUEUE       = "form_webhooks"
	DEFAULT_INDEX_QUEUE         = "form_index"
	DEFAULT_MONITORING_PORT     = "5004"
	DEFAULT_REMOTE_SUBMIT_URL   = "https://services-uat.dbosuat.corp.alliancebg.com.my/dbob/scenter/protected/v1/biypa/form/advance/submit"
	DEFAULT_REMOTE_BRANCHES_URL = "https://services-uat.dbosuat.corp.alliancebg.com.my/dbob/product/protected/v1/branches"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"FORMSYNC_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"FORMSYNC_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"FORMSYNC_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"FORMSYNC_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"FORMSYNC_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"FORMSYNC_SERVER_PORT"`
}

type DataSourceConfig struct {
	Driver string `json:"driver" envconfig:"FORMSYNC_DATA_SOURCE_DRIVER"`
	Dns    string `json:"dns" envconfig:"FORMSYNC_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"FORMSYNC_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"FORMSYNC_REDIS_SKIP_TLS_VERIFY"`
}

type TypeSenseConfig struct {
	Dns string `json:"dns" envconfig:"FORMSYNC_TYPESENSE_DNS"`
}

// RemoteConfig points at the system of record that receives synced forms.
type RemoteConfig struct {
	SubmitURL          string `json:"submit_url" envconfig:"FORMSYNC_REMOTE_SUBMIT_URL"`
	BranchesURL        string `json:"branches_url" envconfig:"FORMSYNC_REMOTE_BRANCHES_URL"`
	TimeoutSec         int    `json:"timeout_sec" envconfig:"FORMSYNC_REMOTE_TIMEOUT_SEC"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify" envconfig:"FORMSYNC_REMOTE_INSECURE_SKIP_VERIFY"`
}

type PurgeConfig struct {
	SyncedDays          int  `json:"synced_days" envconfig:"FORMSYNC_PURGE_SYNCED_DAYS"`
	StaleDays           int  `json:"stale_days" envconfig:"FORMSYNC_PURGE_STALE_DAYS"`
	RunOnStartup        bool `json:"run_on_startup" envconfig:"FORMSYNC_PURGE_RUN_ON_STARTUP"`
	TestMode            bool `json:"test_mode" envconfig:"FORMSYNC_PURGE_TEST_MODE"`
	RecoveryIntervalSec int  `json:"recovery_interval_sec" envconfig:"FORMSYNC_PURGE_RECOVERY_INTERVAL_SEC"`
	StuckThresholdSec   int  `json:"stuck_threshold_sec" envconfig:"FORMSYNC_PURGE_STUCK_THRESHOLD_SEC"`
}

type QueueConfig struct {
	WebhookQueue   string `json:"webhook_queue" envconfig:"FORMSYNC_QUEUE_WEBHOOK_QUEUE"`
	IndexQueue     string `json:"index_queue" envconfig:"FORMSYNC_QUEUE_INDEX_QUEUE"`
	MonitoringPort string `json:"monitoring_port" envconfig:"FORMSYNC_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"FORMSYNC_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"FORMSYNC_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"FORMSYNC_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"FORMSYNC_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"FORMSYNC_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type Configuration struct {
	ProjectName        string           `json:"project_name" envconfig:"FORMSYNC_PROJECT_NAME"`
	BackupDir          string           `json:"backup_dir" envconfig:"FORMSYNC_BACKUP_DIR"`
	AwsAccessKeyId     string           `json:"aws_access_key_id" envconfig:"FORMSYNC_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string           `json:"aws_secret_access_key" envconfig:"FORMSYNC_AWS_SECRET_ACCESS_KEY"`
	S3BucketName       string           `json:"s3_bucket_name" envconfig:"FORMSYNC_S3_BUCKET_NAME"`
	S3Region           string           `json:"s3_region" envconfig:"FORMSYNC_S3_REGION"`
	EnableTelemetry    bool             `json:"enable_telemetry" envconfig:"FORMSYNC_ENABLE_TELEMETRY"`
	BranchCacheTTLSec  int              `json:"branch_cache_ttl_sec" envconfig:"FORMSYNC_BRANCH_CACHE_TTL_SEC"`
	Server             ServerConfig     `json:"server"`
	DataSource         DataSourceConfig `json:"data_source"`
	Redis              RedisConfig      `json:"redis"`
	TypeSense          TypeSenseConfig  `json:"typesense"`
	TypeSenseKey       string           `json:"type_sense_key" envconfig:"FORMSYNC_TYPESENSE_KEY"`
	Remote             RemoteConfig     `json:"remote"`
	Purge              PurgeConfig      `json:"purge"`
	Queue              QueueConfig      `json:"queue"`
	Notification       Notification     `json:"notification"`
	RateLimit          RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	// Defaults that a JSON file or the environment may switch off.
	cnf := Configuration{Purge: PurgeConfig{RunOnStartup: true}}
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("formsync", &cnf)
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
		return nil, errors.New("config not loaded from file. Create a json file called formsync.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Formsync Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.DataSource.Driver = strings.ToLower(strings.TrimSpace(cnf.DataSource.Driver))
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.DataSource.Driver == "" {
		cnf.DataSource.Driver = DEFAULT_DRIVER
	}
	if cnf.DataSource.Driver != "postgres" && cnf.DataSource.Driver != "sqlite3" {
		return errors.New("data source driver must be postgres or sqlite3")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Warning: Redis DNS is empty. Locks and caches will be process local, webhooks and indexing are disabled.")
	}

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Remote.SubmitURL == "" {
		cnf.Remote.SubmitURL = DEFAULT_REMOTE_SUBMIT_URL
	}
	if cnf.Remote.BranchesURL == "" {
		cnf.Remote.BranchesURL = DEFAULT_REMOTE_BRANCHES_URL
	}
	if cnf.Remote.TimeoutSec <= 0 {
		cnf.Remote.TimeoutSec = DEFAULT_REMOTE_TIMEOUT
	}

	if cnf.Purge.SyncedDays <= 0 {
		cnf.Purge.SyncedDays = DEFAULT_SYNCED_DAYS
	}
	if cnf.Purge.StaleDays <= 0 {
		cnf.Purge.StaleDays = DEFAULT_STALE_DAYS
	}
	if cnf.Purge.RecoveryIntervalSec <= 0 {
		cnf.Purge.RecoveryIntervalSec = DEFAULT_RECOVERY_INTERVAL
	}
	if cnf.Purge.StuckThresholdSec <= 0 {
		cnf.Purge.StuckThresholdSec = DEFAULT_STUCK_THRESHOLD
	}

	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = DEFAULT_WEBHOOK_QUEUE
	}
	if cnf.Queue.IndexQueue == "" {
		cnf.Queue.IndexQueue = DEFAULT_INDEX_QUEUE
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DEFAULT_MONITORING_PORT
	}

	if cnf.BranchCacheTTLSec <= 0 {
		cnf.BranchCacheTTLSec = DEFAULT_BRANCH_CACHE_TTL
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

	// Set default cleanup interval if not specified
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
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
