package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用程序配置
type Config struct {
	MongoURI        string   // MongoDB连接URI
	MongoDBName     string   // MongoDB数据库名称
	PostCollections []string // 帖子集合（按此顺序扫描）
	UsersCollection string   // 用户集合
	HTTPAddr        string   // 触发端点监听地址
	LogLevel        string

	Trigger  TriggerConfig
	Schedule ScheduleConfig
	LinkedIn LinkedInConfig
	Redis    RedisConfig
	Telegram TelegramConfig
}

// TriggerConfig 触发端点鉴权与运行节流配置
type TriggerConfig struct {
	Secret        string        // Authorization: Bearer <Secret>
	TrustedHeader string        // 受信任调度器携带的请求头
	TrustedValue  string        // 受信任调度器请求头的取值
	AllowManual   bool          // 是否允许不带任何凭据的手动调用
	MinInterval   time.Duration // 两次运行之间的最小间隔
	CronSpec      string        // 进程内定时器表达式，空字符串表示禁用
}

// ScheduleConfig 到期判断与重试配置
type ScheduleConfig struct {
	DueBuffer         time.Duration // 到期判断的安全缓冲
	ReferenceOffset   time.Duration // 参考时区相对 UTC 的固定偏移
	MaxRetries        int           // 非重新授权类错误的最大重试次数
	TokenExpiryMargin time.Duration // 令牌过期安全边际
	LiveTokenCheck    bool          // 是否在发布前在线校验令牌
}

// LinkedInConfig LinkedIn API 配置
type LinkedInConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RedisConfig 多实例运行租约配置（可选）
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LeaseTTL time.Duration
}

// TelegramConfig 运维通知配置（可选）
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// Enabled 是否启用 Redis 租约
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// Enabled 是否启用 Telegram 通知
func (c TelegramConfig) Enabled() bool { return c.Token != "" && c.ChatID != 0 }

// Load 从环境变量加载配置
// 当前目录存在 .env 时先加载（已存在的环境变量不会被覆盖）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		MongoURI:        strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDBName:     getEnv("MONGO_DB_NAME", "autoposter"),
		PostCollections: getEnvList("POST_COLLECTIONS", []string{"posts", "scheduledPosts", "linkedinPosts"}),
		UsersCollection: getEnv("USERS_COLLECTION", "users"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Trigger: TriggerConfig{
			Secret:        strings.TrimSpace(os.Getenv("CRON_SECRET")),
			TrustedHeader: getEnv("CRON_TRUSTED_HEADER", "X-Vercel-Cron"),
			TrustedValue:  getEnv("CRON_TRUSTED_VALUE", "1"),
			CronSpec:      "@every 1m",
		},
		LinkedIn: LinkedInConfig{
			BaseURL: getEnv("LINKEDIN_API_URL", "https://api.linkedin.com"),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Telegram: TelegramConfig{
			Token: strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		},
	}

	if spec, ok := os.LookupEnv("RUN_SCHEDULE"); ok {
		cfg.Trigger.CronSpec = strings.TrimSpace(spec)
	}

	var err error
	if cfg.Trigger.AllowManual, err = getEnvBool("ALLOW_MANUAL_TRIGGER", true); err != nil {
		return nil, err
	}
	if cfg.Trigger.MinInterval, err = getEnvDuration("RUN_MIN_INTERVAL", 55*time.Second); err != nil {
		return nil, err
	}
	if cfg.Schedule.DueBuffer, err = getEnvDuration("DUE_BUFFER", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.Schedule.ReferenceOffset, err = getEnvDuration("REFERENCE_TZ_OFFSET", 5*time.Hour+30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Schedule.MaxRetries, err = getEnvInt("MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.Schedule.TokenExpiryMargin, err = getEnvDuration("TOKEN_EXPIRY_MARGIN", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Schedule.LiveTokenCheck, err = getEnvBool("LIVE_TOKEN_CHECK", false); err != nil {
		return nil, err
	}
	if cfg.LinkedIn.Timeout, err = getEnvDuration("LINKEDIN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.LeaseTTL, err = getEnvDuration("RUN_LEASE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	// 解析TELEGRAM_CHAT_ID（可选，用于运行失败通知）
	if chatIDStr := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); chatIDStr != "" {
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = chatID
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if len(c.PostCollections) == 0 {
		return fmt.Errorf("POST_COLLECTIONS must name at least one collection")
	}
	if c.Schedule.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be >= 1, got %d", c.Schedule.MaxRetries)
	}
	if c.Schedule.DueBuffer < 0 {
		return fmt.Errorf("DUE_BUFFER must not be negative, got %s", c.Schedule.DueBuffer)
	}
	if c.Trigger.MinInterval < 0 {
		return fmt.Errorf("RUN_MIN_INTERVAL must not be negative, got %s", c.Trigger.MinInterval)
	}
	if c.Redis.Enabled() && c.Redis.LeaseTTL <= 0 {
		return fmt.Errorf("RUN_LEASE_TTL must be positive when REDIS_ADDR is set")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return d, nil
}

// getEnvList 解析逗号分隔的列表，保持原有顺序并去除空项
func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
