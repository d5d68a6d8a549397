package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Tiers       TiersConfig       `mapstructure:"tiers"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Usage       UsageConfig       `mapstructure:"usage"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// TrustProxy makes the anonymous principal come from X-Forwarded-For.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

type DatabaseConfig struct {
	// URL is a sqlite path (optionally file:) or a postgres:// URL.
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdle         int           `mapstructure:"max_idle"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

type RedisConfig struct {
	// Empty URL keeps rate limit windows in process.
	URL          string        `mapstructure:"url"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RateLimitConfig struct {
	Window        time.Duration `mapstructure:"window"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	SweepGrace    time.Duration `mapstructure:"sweep_grace"`
}

type TiersConfig struct {
	File        string `mapstructure:"file"`
	DefaultTier string `mapstructure:"default_tier"`
}

type CredentialsConfig struct {
	Pepper       string `mapstructure:"pepper"`
	SecretLength int    `mapstructure:"secret_length"`
	PrefixLength int    `mapstructure:"prefix_length"`
}

type UsageConfig struct {
	QueueSize     int           `mapstructure:"queue_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	RetentionDays int           `mapstructure:"retention_days"`
	QueryMaxDays  int           `mapstructure:"query_max_days"`
	PruneSchedule string        `mapstructure:"prune_schedule"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	Issuer         string        `mapstructure:"issuer"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.url", "file:data/glucolog.db")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.query_timeout", 2*time.Second)

	v.SetDefault("redis.key_prefix", "glucolog:rl:")
	v.SetDefault("redis.dial_timeout", 2*time.Second)
	v.SetDefault("redis.read_timeout", 500*time.Millisecond)
	v.SetDefault("redis.write_timeout", 500*time.Millisecond)

	v.SetDefault("rate_limit.window", time.Hour)
	v.SetDefault("rate_limit.sweep_schedule", "@every 10m")
	v.SetDefault("rate_limit.sweep_grace", 10*time.Minute)

	v.SetDefault("tiers.default_tier", "free")

	v.SetDefault("credentials.secret_length", 40)
	v.SetDefault("credentials.prefix_length", 12)

	v.SetDefault("usage.queue_size", 4096)
	v.SetDefault("usage.batch_size", 100)
	v.SetDefault("usage.flush_interval", 2*time.Second)
	v.SetDefault("usage.write_timeout", 5*time.Second)
	v.SetDefault("usage.retention_days", 30)
	v.SetDefault("usage.query_max_days", 30)
	v.SetDefault("usage.prune_schedule", "@daily")

	v.SetDefault("kafka.topic", "api-usage")

	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)
	v.SetDefault("jwt.issuer", "glucolog")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
