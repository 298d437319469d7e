package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Instance  InstanceConfig  `mapstructure:"instance"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

// InstanceConfig identifies this worker process in the cluster.
type InstanceConfig struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
}

type SchedulerConfig struct {
	ScanInterval      time.Duration `mapstructure:"scan_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	InactiveThreshold time.Duration `mapstructure:"inactive_threshold"`
	AssignInterval    time.Duration `mapstructure:"assign_interval"`
	AssignLockTTL     time.Duration `mapstructure:"assign_lock_ttl"`
	BatchSize         int           `mapstructure:"batch_size"`
	MaxWorkers        int           `mapstructure:"max_workers"`
	Timezone          string        `mapstructure:"timezone"`
}

type ExecutorConfig struct {
	HTTPPoolSize   int               `mapstructure:"http_pool_size"`
	ConnectTimeout time.Duration     `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
	RetryCount     int               `mapstructure:"retry_count"`
	RateLimiter    RateLimiterConfig `mapstructure:"rate_limiter"`
}

type RateLimiterConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Capacity   int  `mapstructure:"capacity"`
	RefillRate int  `mapstructure:"refill_rate"`
}

type DatabaseConfig struct {
	Host                  string        `mapstructure:"host"`
	Port                  int           `mapstructure:"port"`
	Database              string        `mapstructure:"database"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	MaxConnections        int           `mapstructure:"max_connections"`
	MaxIdleConnections    int           `mapstructure:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("instance.name", "timer-001")
	viper.SetDefault("instance.address", "127.0.0.1:8080")

	viper.SetDefault("scheduler.scan_interval", "1s")
	viper.SetDefault("scheduler.heartbeat_interval", "60s")
	viper.SetDefault("scheduler.inactive_threshold", "120s")
	viper.SetDefault("scheduler.assign_interval", "5s")
	viper.SetDefault("scheduler.assign_lock_ttl", "3s")
	viper.SetDefault("scheduler.batch_size", 50)
	viper.SetDefault("scheduler.max_workers", 10)
	viper.SetDefault("scheduler.timezone", "Asia/Shanghai")

	viper.SetDefault("executor.http_pool_size", 200)
	viper.SetDefault("executor.connect_timeout", "5s")
	viper.SetDefault("executor.request_timeout", "15s")
	viper.SetDefault("executor.retry_count", 3)
	viper.SetDefault("executor.rate_limiter.enabled", true)
	viper.SetDefault("executor.rate_limiter.capacity", 100)
	viper.SetDefault("executor.rate_limiter.refill_rate", 10)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.max_connections", 20)
	viper.SetDefault("database.max_idle_connections", 10)
	viper.SetDefault("database.connection_max_lifetime", "1h")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.max_header_bytes", 1048576)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Instance.Name == "" {
		return nil, fmt.Errorf("instance.name is required")
	}

	return &cfg, nil
}
