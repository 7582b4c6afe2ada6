package config

import (
	"sync"
	"time"
)

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

// RedisConfig 队列与任务状态共用的 Redis 配置
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	Concurrency    int
	ProcessTimeout time.Duration
	StatusTTL      time.Duration
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadEnv()
		redisConfig = LoadRedisConfig()
	})
	return redisConfig
}

func LoadRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:           getEnv("REDIS_ADDR", "localhost:6379"),
		Password:       getEnv("REDIS_PASSWORD", ""),
		DB:             getInt("REDIS_DB", 0),
		Concurrency:    getInt("WORKER_CONCURRENCY", 5),
		ProcessTimeout: getDuration("TASK_TIMEOUT", 30*time.Minute),
		StatusTTL:      getDuration("TASK_STATUS_TTL", 24*time.Hour),
	}
}
