package config

import (
	"time"

	pkgconfig "github.com/weiawesome/wes-canvas-live/pkg/config"
	"github.com/weiawesome/wes-canvas-live/pkg/database"
	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
)

type Config struct {
	Server   ServerConfig
	Database database.Config
	Redis    RedisConfig
	Cache    CacheConfig
	Kafka    KafkaConfig
	JWT      JWTConfig
	Document DocumentConfig
	Log      pkglog.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	Prefix string
	TTL    time.Duration `mapstructure:"-"`
}

// KafkaConfig configures the content-events producer.
type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

// DocumentConfig holds the write conflict rule.
type DocumentConfig struct {
	// ConflictTolerance is how far the stored timestamp may run ahead of
	// the writer's cached one before a save is rejected.
	ConflictTolerance time.Duration `mapstructure:"-"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8091)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "canvas_content")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/content.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.slow_query", "200ms")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.prefix", "canvas:content")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "content-events")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "wes-canvas-live")
	v.SetDefault("document.conflict_tolerance", "1s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "content-service")

	// Bind environment variables
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_CONTENT_TOPIC")
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("document.conflict_tolerance", "DOCUMENT_CONFLICT_TOLERANCE")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Cache.TTL = pkgconfig.Duration(v, "cache.ttl", 5*time.Minute)
	cfg.Database.SlowQuery = pkgconfig.Duration(v, "database.slow_query", 200*time.Millisecond)
	cfg.Document.ConflictTolerance = pkgconfig.Duration(v, "document.conflict_tolerance", time.Second)

	return &cfg, nil
}
