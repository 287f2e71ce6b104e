package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Asia/Shanghai"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQP struct {
		URL           string `envconfig:"AMQP_URL"`
		ManagementURL string `envconfig:"AMQP_MANAGEMENT_URL"`
	} `envconfig:""`

	Fetch struct {
		SourcesPath       string `envconfig:"SOURCES_PATH" default:"config/sources.yaml"`
		IntervalMinutes   int    `envconfig:"FETCH_INTERVAL_MINUTES" default:"30"`
		RequestIntervalMS int    `envconfig:"FETCH_REQUEST_INTERVAL_MS" default:"3000"`
		TimeoutSeconds    int    `envconfig:"FETCH_TIMEOUT_SECONDS" default:"30"`
		Retries           int    `envconfig:"FETCH_RETRIES" default:"3"`
		UserAgent         string `envconfig:"FETCH_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"`
	} `envconfig:""`

	Limits struct {
		LookbackDays int `envconfig:"LOOKBACK_DAYS" default:"7"`
		TodayItems   int `envconfig:"TODAY_ITEMS_LIMIT" default:"100"`
		RecentItems  int `envconfig:"RECENT_ITEMS_LIMIT" default:"200"`
		DigestMax    int `envconfig:"DIGEST_MAX_ITEMS" default:"10"`
	} `envconfig:""`

	Queues struct {
		Backend string `envconfig:"DIGEST_QUEUE_BACKEND" default:"redis"`
		Digest  string `envconfig:"DIGEST_QUEUE_KEY" default:"digest_jobs"`
	} `envconfig:""`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
