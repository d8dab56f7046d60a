package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	MetricsPort string `mapstructure:"METRICS_PORT"`

	// Redis
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	// Durable queue
	StreamName        string `mapstructure:"STREAM_NAME"`
	ConsumerGroup     string `mapstructure:"CONSUMER_GROUP"`
	BatchSize         int    `mapstructure:"BATCH_SIZE"`
	BlockTimeoutMs    int    `mapstructure:"BLOCK_TIMEOUT_MS"`
	StaleAfterSec     int    `mapstructure:"STALE_AFTER_SEC"`
	MaxDeliveries     int    `mapstructure:"MAX_DELIVERIES"`
	ReclaimEverySec   int    `mapstructure:"RECLAIM_EVERY_SEC"`
	TrimEverySec      int    `mapstructure:"TRIM_EVERY_SEC"`
	DedupWindowSize   int    `mapstructure:"DEDUP_WINDOW_SIZE"`
	HeartbeatStaleSec int    `mapstructure:"HEARTBEAT_STALE_SEC"`

	// Minute buckets and accepted-id registry
	BucketTTLSec   int `mapstructure:"BUCKET_TTL_SEC"`
	RegistryTTLSec int `mapstructure:"REGISTRY_TTL_SEC"`

	// Persisted files
	DataDir          string `mapstructure:"DATA_DIR"`
	RotateMaxBytes   int64  `mapstructure:"ROTATE_MAX_BYTES"`
	RotateMaxEntries int64  `mapstructure:"ROTATE_MAX_ENTRIES"`

	// MinIO archive (optional, enabled when endpoint is set)
	MinIOEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinIOAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinIOBucket    string `mapstructure:"MINIO_BUCKET"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("STREAM_NAME", "events_persistent_stream")
	viper.SetDefault("CONSUMER_GROUP", "persistence")

	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) validate() error {
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.StreamName == "" {
		return fmt.Errorf("STREAM_NAME is required")
	}
	if c.MetricsPort == "" {
		c.MetricsPort = "9093"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.BlockTimeoutMs <= 0 {
		c.BlockTimeoutMs = 5000
	}
	if c.StaleAfterSec <= 0 {
		c.StaleAfterSec = 60
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 5
	}
	if c.ReclaimEverySec <= 0 {
		c.ReclaimEverySec = 30
	}
	if c.TrimEverySec <= 0 {
		c.TrimEverySec = 60
	}
	if c.DedupWindowSize <= 0 {
		c.DedupWindowSize = 10000
	}
	if c.HeartbeatStaleSec <= 0 {
		c.HeartbeatStaleSec = 30
	}
	if c.BucketTTLSec <= 0 {
		c.BucketTTLSec = 86400
	}
	if c.RegistryTTLSec <= 0 {
		c.RegistryTTLSec = 86400
	}
	if c.DataDir == "" {
		c.DataDir = "persistent_events"
	}
	if c.RotateMaxBytes <= 0 {
		c.RotateMaxBytes = 64 << 20
	}
	if c.RotateMaxEntries <= 0 {
		c.RotateMaxEntries = 100000
	}
	return nil
}

func (c *Config) BlockTimeout() time.Duration {
	return time.Duration(c.BlockTimeoutMs) * time.Millisecond
}

func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSec) * time.Second
}

func (c *Config) ReclaimEvery() time.Duration {
	return time.Duration(c.ReclaimEverySec) * time.Second
}

func (c *Config) TrimEvery() time.Duration {
	return time.Duration(c.TrimEverySec) * time.Second
}

func (c *Config) HeartbeatStale() time.Duration {
	return time.Duration(c.HeartbeatStaleSec) * time.Second
}

func (c *Config) BucketTTL() time.Duration {
	return time.Duration(c.BucketTTLSec) * time.Second
}

func (c *Config) RegistryTTL() time.Duration {
	return time.Duration(c.RegistryTTLSec) * time.Second
}
