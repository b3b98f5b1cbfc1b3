package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string  `yaml:"env" env:"ENV" env-default:"local"`
	LogLevel string  `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	HTTP     HTTP    `yaml:"http"`
	Postgres PG      `yaml:"postgres"`
	Redis    Redis   `yaml:"redis"`
	Kafka    Kafka   `yaml:"kafka"`
	Outbox   Outbox  `yaml:"outbox"`
	SMTP     SMTP    `yaml:"smtp"`
	Auth     Auth    `yaml:"auth"`
	Admin    Admin   `yaml:"admin"`
	Pricing  Pricing `yaml:"pricing"`
	Limiter  Limiter `yaml:"limiter"`
	Tracing  Tracing `yaml:"tracing"`
}

type HTTP struct {
	Port      string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout   time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"4s"`
	BodyLimit int           `yaml:"body_limit" env:"HTTP_BODY_LIMIT" env-default:"4194304"`
}

type PG struct {
	URL             string        `yaml:"url" env:"DB_URL"`
	MaxConns        int32         `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"10"`
	MinConns        int32         `yaml:"min_conns" env:"DB_MIN_CONNS" env-default:"2"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env-default:"1h"`
	MigrationsPath  string        `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
}

type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL" env-default:"10m"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	GroupID string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"ravolux-notification-group"`

	RetryAttempts int           `yaml:"retry_attempts" env-default:"5"`
	RetryBackoff  time.Duration `yaml:"retry_backoff" env-default:"1s"`
}

type Outbox struct {
	BatchSize int           `yaml:"batch_size" env-default:"50"`
	Interval  time.Duration `yaml:"interval" env-default:"500ms"`
}

type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"SMTP_PORT" env-default:"1025"`
	User     string `yaml:"user" env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM" env-default:"no-reply@ravolux.com"`
	BaseURL  string `yaml:"base_url" env:"STORE_BASE_URL" env-default:"http://localhost:3000"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret" env:"ACCESS_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"24h"`
}

type Admin struct {
	Email        string        `yaml:"email" env:"ADMIN_EMAIL"`
	PasswordHash string        `yaml:"password_hash" env:"ADMIN_PASSWORD_HASH"`
	SessionTTL   time.Duration `yaml:"session_ttl" env:"ADMIN_SESSION_TTL" env-default:"8h"`
}

// Pricing amounts are in store currency units.
type Pricing struct {
	FreeShippingThreshold float64 `yaml:"free_shipping_threshold" env-default:"500"`
	FlatShippingFee       float64 `yaml:"flat_shipping_fee" env-default:"50"`
	PromoCode             string  `yaml:"promo_code" env:"PROMO_CODE" env-default:"RAVOLUX10"`
	PromoRate             float64 `yaml:"promo_rate" env-default:"0.1"`
}

type Limiter struct {
	RPS int           `yaml:"rps" env-default:"20"`
	TTL time.Duration `yaml:"ttl" env-default:"5s"`
}

type Tracing struct {
	Enabled  bool   `yaml:"enabled" env:"TRACING_ENABLED" env-default:"false"`
	Endpoint string `yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"localhost:4318"`
}

// Load reads the yaml file at path, falling back to CONFIG_PATH and then
// ./config/local.yaml. Environment variables override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "./config/local.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) LoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level: c.LogLevel,
		Env:   c.Env,
	}
}
