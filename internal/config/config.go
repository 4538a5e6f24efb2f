package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 固定抓取的 subreddit 列表与每个频道的抽样数量，不做运行时配置
var Channels = []string{"AskReddit", "AskWomen", "nosleep", "NoStupidQuestions"}

const (
	SampleSize    = 3
	TopLimit      = 100
	TopTimeFilter = "month"
	MaxBodyRunes  = 500
	MaxReactions  = 3
)

var ErrMissingCredentials = errors.New("config: CLIENT_ID, CLIENT_SECRET and USER_AGENT are required")

type Config struct {
	AppPort string

	// Reddit 应用凭据
	ClientID     string
	ClientSecret string
	UserAgent    string

	DataFile      string
	CronSpec      string
	FetchComments bool

	UpstreamTimeout time.Duration
	UpstreamRetries int
	CycleTimeout    time.Duration

	// 可选：为空时不启用
	RedisAddr        string
	SnapshotCacheTTL time.Duration
	PostgresDSN      string

	LogLevel  string
	LogFormat string
}

// Load 先加载 .env（存在时），再从环境变量读取配置
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppPort:          getEnv("APP_PORT", "8080"),
		ClientID:         getEnv("CLIENT_ID", ""),
		ClientSecret:     getEnv("CLIENT_SECRET", ""),
		UserAgent:        getEnv("USER_AGENT", ""),
		DataFile:         getEnv("DATA_FILE", "data.json"),
		CronSpec:         getEnv("CRON_SPEC", "0 * * * *"),
		FetchComments:    getEnvBool("FETCH_COMMENTS", true),
		UpstreamTimeout:  getEnvDuration("UPSTREAM_TIMEOUT", 15*time.Second),
		UpstreamRetries:  getEnvInt("UPSTREAM_RETRIES", 2),
		CycleTimeout:     getEnvDuration("CYCLE_TIMEOUT", 10*time.Minute),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		SnapshotCacheTTL: getEnvDuration("SNAPSHOT_CACHE_TTL", 5*time.Minute),
		PostgresDSN:      getEnv("POSTGRES_DSN", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
	}
}

// Validate 只检查抓取所必需的凭据
func (c *Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" || c.UserAgent == "" {
		return ErrMissingCredentials
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
