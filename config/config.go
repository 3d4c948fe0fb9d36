package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"civicfund/pkg/config"
	"civicfund/pkg/otel"
)

// FundingConfig 资金相关的业务参数
type FundingConfig struct {
	// 单位：最小货币单位（分）
	MinGoal int64 `yaml:"min_goal"`
	MaxGoal int64 `yaml:"max_goal"`

	FeaturedDefaultLimit int           `yaml:"featured_default_limit"`
	FeaturedMaxLimit     int           `yaml:"featured_max_limit"`
	FeaturedCacheTTL     time.Duration `yaml:"featured_cache_ttl"`

	// 事务冲突（40001 / 40P01）时的最大尝试次数
	ConflictRetries uint `yaml:"conflict_retries"`
}

// SchedulerConfig 定时任务
type SchedulerConfig struct {
	Enabled              bool          `yaml:"enabled"`
	FeaturedWarmInterval time.Duration `yaml:"featured_warm_interval"`
	GoalSweepInterval    time.Duration `yaml:"goal_sweep_interval"`
	// 扫描时的系统管理员身份
	SystemUserID string `yaml:"system_user_id"`
}

// ConsumerConfig MQ 消费者的重试策略
type ConsumerConfig struct {
	MaxRetries int64         `yaml:"max_retries"`
	DedupTTL   time.Duration `yaml:"dedup_ttl"`
	RetryTTL   time.Duration `yaml:"retry_ttl"`
}

// OutboxConfig outbox 投递参数
type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
	// Lease 认领后未确认的事件在 Lease 之后可被其他实例重新认领
	Lease time.Duration `yaml:"lease"`
}

// StorageConfig driver: postgres | memory
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Config struct {
	Server    config.ServerConfig `yaml:"server"`
	DB        config.DBConfig     `yaml:"db"`
	Redis     config.RedisConfig  `yaml:"redis"`
	MQ        config.MQConfig     `yaml:"mq"`
	JWT       config.JWTConfig    `yaml:"jwt"`
	OTel      otel.Config         `yaml:"otel"`
	Log       LogConfig           `yaml:"log"`
	Storage   StorageConfig       `yaml:"storage"`
	Funding   FundingConfig       `yaml:"funding"`
	Scheduler SchedulerConfig     `yaml:"scheduler"`
	Consumer  ConsumerConfig      `yaml:"consumer"`
	Outbox    OutboxConfig        `yaml:"outbox"`
}

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Load 读取 CONFIG_ENV / CONFIG_DIR 指定的配置，失败直接退出
func Load() *Config {
	cfg, err := LoadFrom(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom 加载并校验配置
func LoadFrom(env, dir string) (*Config, error) {
	cfg := Default()
	if err := config.Decode(env, dir, cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（生产环境使用）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if enabled := os.Getenv("OTEL_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.OTel.Enabled = b
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 未在 yaml 中出现的字段使用这些值
func Default() *Config {
	return &Config{
		Server:  config.ServerConfig{Port: ":8080"},
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{Driver: StoragePostgres},
		OTel:    otel.Config{ServiceName: "civicfund", SampleRatio: 1},
		Funding: FundingConfig{
			MinGoal:              100,
			MaxGoal:              100_000_000_00,
			FeaturedDefaultLimit: 6,
			FeaturedMaxLimit:     50,
			FeaturedCacheTTL:     30 * time.Second,
			ConflictRetries:      3,
		},
		Scheduler: SchedulerConfig{
			FeaturedWarmInterval: 30 * time.Second,
			GoalSweepInterval:    time.Minute,
			SystemUserID:         "system",
		},
		Consumer: ConsumerConfig{
			MaxRetries: 3,
			DedupTTL:   24 * time.Hour,
			RetryTTL:   time.Hour,
		},
		Outbox: OutboxConfig{
			Interval:   time.Second,
			BatchSize:  100,
			MaxRetries: 5,
			Lease:      30 * time.Second,
		},
	}
}

// Validate 启动前检查明显错误的配置
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Funding.MinGoal <= 0 || c.Funding.MaxGoal < c.Funding.MinGoal {
		return fmt.Errorf("invalid funding goal range [%d, %d]", c.Funding.MinGoal, c.Funding.MaxGoal)
	}
	if c.Funding.FeaturedDefaultLimit <= 0 || c.Funding.FeaturedMaxLimit < c.Funding.FeaturedDefaultLimit {
		return fmt.Errorf("invalid featured limits default=%d max=%d",
			c.Funding.FeaturedDefaultLimit, c.Funding.FeaturedMaxLimit)
	}
	if c.Funding.ConflictRetries == 0 {
		return fmt.Errorf("funding.conflict_retries must be at least 1")
	}
	if c.Outbox.Interval <= 0 || c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("invalid outbox interval=%s batch_size=%d", c.Outbox.Interval, c.Outbox.BatchSize)
	}
	if c.Outbox.Lease < time.Second {
		return fmt.Errorf("outbox.lease must be at least 1s, got %s", c.Outbox.Lease)
	}
	if c.JWT.Secret == "" || strings.HasPrefix(c.JWT.Secret, "${") {
		return fmt.Errorf("jwt.secret is required")
	}
	return nil
}
