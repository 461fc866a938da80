package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Mailer    MailerConfig    `mapstructure:"mailer"`
	Content   ContentConfig   `mapstructure:"content"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Sink      SinkConfig      `mapstructure:"sink"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"` // "stdout" or "file"
	FilePath string `mapstructure:"file_path"`
	MaxSize  int    `mapstructure:"max_size_mb"`
	MaxFiles int    `mapstructure:"max_files"`
}

// QueueConfig holds delivery queue configuration.
type QueueConfig struct {
	Type            string        `mapstructure:"type"` // "redis", "sqs" or "memory"
	Name            string        `mapstructure:"name"`
	Group           string        `mapstructure:"group"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	Workers         int           `mapstructure:"workers"`
	BlockTimeout    time.Duration `mapstructure:"block_timeout"`
	PromoteInterval time.Duration `mapstructure:"promote_interval"`
	ProcessTimeout  time.Duration `mapstructure:"process_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	ClaimMinIdle    time.Duration `mapstructure:"claim_min_idle"`
	ClaimInterval   time.Duration `mapstructure:"claim_interval"`
	SQSQueueURL     string        `mapstructure:"sqs_queue_url"`
	SQSDLQueueURL   string        `mapstructure:"sqs_dlq_url"`
	SQSRegion       string        `mapstructure:"sqs_region"`
}

// DispatchConfig controls how campaigns fan out into messages.
type DispatchConfig struct {
	// RandomDelayMin and RandomDelayMax are pacing bounds in seconds. Pacing
	// applies only when both are non-zero.
	RandomDelayMin int `mapstructure:"random_delay_min"`
	RandomDelayMax int `mapstructure:"random_delay_max"`
	ChunkSize      int `mapstructure:"chunk_size"`
	// Dedup selects the run-scoped duplicate guard: "memory" or "redis".
	Dedup         string        `mapstructure:"dedup"`
	DedupCapacity int           `mapstructure:"dedup_capacity"`
	DedupTTL      time.Duration `mapstructure:"dedup_ttl"`
}

// MailerConfig selects and configures the mail transport.
type MailerConfig struct {
	Transport string  `mapstructure:"transport"` // "smtp", "stdout" or "file"
	Host      string  `mapstructure:"host"`
	Port      int     `mapstructure:"port"`
	Username  string  `mapstructure:"username"`
	Password  string  `mapstructure:"password"`
	StartTLS  bool    `mapstructure:"starttls"`
	OutputDir string  `mapstructure:"output_dir"`
	RateLimit float64 `mapstructure:"rate_limit"` // messages per second, 0 disables
	RateBurst int     `mapstructure:"rate_burst"`
}

// ContentConfig selects the campaign content store.
type ContentConfig struct {
	Type       string `mapstructure:"type"` // "local" or "s3"
	Path       string `mapstructure:"path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	S3Region   string `mapstructure:"s3_region"`
	// CacheTTL bounds how long the queue worker serves a body from memory.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// AuthConfig holds JWT validation configuration.
type AuthConfig struct {
	SigningKey string `mapstructure:"signing_key"`
	Issuer     string `mapstructure:"issuer"`
	Audience   string `mapstructure:"audience"`
}

// SchedulerConfig drives the periodic sweep for scheduled campaigns.
type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Spec    string `mapstructure:"spec"`
}

// BootstrapConfig controls the development seed.
type BootstrapConfig struct {
	SeedDemo bool `mapstructure:"seed_demo"`
}

// SinkConfig configures the development SMTP sink.
type SinkConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Domain          string        `mapstructure:"domain"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	OutputDir       string        `mapstructure:"output_dir"` // empty logs messages only
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// A .env file in the working directory is loaded first if present.
// Environment variables with prefix CAMPAIGN_DISPATCH_ override file values.
// For example, CAMPAIGN_DISPATCH_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("CAMPAIGN_DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
