package config

import (
	"os"
	"strconv"
	"time"
)

// DBConfig PostgreSQL 连接参数
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	// 启动时执行 contracts/db/schema.sql
	AutoMigrate bool `yaml:"auto_migrate"`
	// 0 表示 100ms
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig Addr 为空时不启用缓存
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig 只校验身份服务签发的 HS256 token
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// envInt 非法数字忽略，保留 yaml 中的值
func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// OverrideDBFromEnv DB_HOST / DB_PORT / DB_USER / DB_PASSWORD / DB_NAME / DB_SSLMODE / DB_MAX_CONNS / DB_AUTO_MIGRATE
func OverrideDBFromEnv(cfg *DBConfig) {
	envString("DB_HOST", &cfg.Host)
	envInt("DB_PORT", &cfg.Port)
	envString("DB_USER", &cfg.User)
	envString("DB_PASSWORD", &cfg.Password)
	envString("DB_NAME", &cfg.Name)
	envString("DB_SSLMODE", &cfg.SSLMode)
	envBool("DB_AUTO_MIGRATE", &cfg.AutoMigrate)

	maxConns := int(cfg.MaxConns)
	envInt("DB_MAX_CONNS", &maxConns)
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
}

func OverrideMQFromEnv(cfg *MQConfig) {
	envString("MQ_URL", &cfg.URL)
}

func OverrideRedisFromEnv(cfg *RedisConfig) {
	envString("REDIS_ADDR", &cfg.Addr)
	envString("REDIS_PASSWORD", &cfg.Password)
	envInt("REDIS_DB", &cfg.DB)
}

func OverrideJWTFromEnv(cfg *JWTConfig) {
	envString("JWT_SECRET", &cfg.Secret)
}

func OverrideServerFromEnv(cfg *ServerConfig) {
	envString("SERVER_PORT", &cfg.Port)
}
