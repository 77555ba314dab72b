package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Mode 选择启用哪一类采集适配器
type Mode string

const (
	ModeTraditional Mode = "traditional"
	ModeFundus      Mode = "fundus"
	ModeBoth        Mode = "both"
)

// ParseMode 解析命令行/环境变量中的 mode，未知取值返回 ConfigError
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeTraditional, ModeFundus, ModeBoth:
		return m, nil
	case "":
		return ModeTraditional, nil
	default:
		return "", &ConfigError{Field: "mode", Err: fmt.Errorf("unknown mode %q", s)}
	}
}

// PipelineConfig 采集流水线的全部可调参数，显式传入各组件，不依赖全局状态
type PipelineConfig struct {
	MinWords             int           `validate:"gte=1"`
	MaxRetries           int           `validate:"gte=0,lte=10"`
	RetryDelay           time.Duration `validate:"gte=0"`
	HTTPTimeout          time.Duration `validate:"gt=0"`
	ImageTimeout         time.Duration `validate:"gt=0"`
	WorkerPool           int           `validate:"gte=1,lte=64"`
	PerSourceInterval    time.Duration `validate:"gte=0"`
	RecentCap            int           `validate:"gte=0"`
	TitleSimEnabled      bool
	TitleSimWindow       int           `validate:"gte=0"`
	MaxArticlesPerSource int           `validate:"gte=1"`
	RunTimeout           time.Duration `validate:"gte=0"`
	Mode                 Mode          `validate:"oneof=traditional fundus both"`
	DryRun               bool
}

// DefaultPipeline 返回默认参数
func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		MinWords:             50,
		MaxRetries:           3,
		RetryDelay:           2 * time.Second,
		HTTPTimeout:          10 * time.Second,
		ImageTimeout:         30 * time.Second,
		WorkerPool:           4,
		PerSourceInterval:    500 * time.Millisecond,
		RecentCap:            50,
		TitleSimEnabled:      true,
		MaxArticlesPerSource: 20,
		Mode:                 ModeTraditional,
	}
}

type Config struct {
	AppPort       string
	BasicAuthUser string
	BasicAuthPass string

	PostgresDSN string `validate:"required"`
	RedisURL    string

	MediaRoot       string `validate:"required"`
	MediaS3Bucket   string
	MediaS3Endpoint string
	MediaS3Region   string
	MediaS3KeyID    string
	MediaS3Secret   string

	CronSpec string

	LogLevel  string `validate:"oneof=trace debug info warn error"`
	LogFormat string `validate:"oneof=console json"`

	Pipeline PipelineConfig
}

// ConfigError 启动期配置错误，CLI 以退出码 2 结束
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load 读取 .env 与环境变量并校验
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &ConfigError{Field: ".env", Err: err}
	}

	p := DefaultPipeline()
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	p.MinWords, err = getEnvInt("MIN_WORDS", p.MinWords)
	collect(err)
	p.MaxRetries, err = getEnvInt("MAX_RETRIES", p.MaxRetries)
	collect(err)
	p.RetryDelay, err = getEnvDuration("RETRY_DELAY", p.RetryDelay)
	collect(err)
	p.HTTPTimeout, err = getEnvDuration("HTTP_TIMEOUT", p.HTTPTimeout)
	collect(err)
	p.ImageTimeout, err = getEnvDuration("IMAGE_TIMEOUT", p.ImageTimeout)
	collect(err)
	p.WorkerPool, err = getEnvInt("WORKER_POOL", p.WorkerPool)
	collect(err)
	p.PerSourceInterval, err = getEnvDuration("PER_SOURCE_INTERVAL", p.PerSourceInterval)
	collect(err)
	p.RecentCap, err = getEnvInt("RECENT_CAP", p.RecentCap)
	collect(err)
	p.TitleSimEnabled, err = getEnvBool("TITLE_SIM_ENABLED", p.TitleSimEnabled)
	collect(err)
	p.TitleSimWindow, err = getEnvInt("TITLE_SIM_WINDOW", p.TitleSimWindow)
	collect(err)
	p.MaxArticlesPerSource, err = getEnvInt("MAX_ARTICLES_PER_SOURCE", p.MaxArticlesPerSource)
	collect(err)
	p.RunTimeout, err = getEnvDuration("RUN_TIMEOUT", p.RunTimeout)
	collect(err)
	p.Mode, err = ParseMode(getEnv("CRAWL_MODE", string(p.Mode)))
	collect(err)

	if len(errs) > 0 {
		return nil, &ConfigError{Err: errors.Join(errs...)}
	}

	cfg := &Config{
		AppPort:         getEnv("APP_PORT", "9000"),
		BasicAuthUser:   getEnv("APP_BASIC_USER", ""),
		BasicAuthPass:   getEnv("APP_BASIC_PASS", ""),
		PostgresDSN:     getEnv("POSTGRES_DSN", "host=localhost user=lingonews password=lingonews dbname=lingonews port=5432 sslmode=disable TimeZone=UTC"),
		RedisURL:        getEnv("REDIS_URL", ""),
		MediaRoot:       getEnv("MEDIA_ROOT", "./media"),
		MediaS3Bucket:   getEnv("MEDIA_S3_BUCKET", ""),
		MediaS3Endpoint: getEnv("MEDIA_S3_ENDPOINT", ""),
		MediaS3Region:   getEnv("MEDIA_S3_REGION", "auto"),
		MediaS3KeyID:    getEnv("MEDIA_S3_ACCESS_KEY_ID", ""),
		MediaS3Secret:   getEnv("MEDIA_S3_SECRET_ACCESS_KEY", ""),
		CronSpec:        getEnv("CRON_SPEC", "*/30 * * * *"),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "console")),
		Pipeline:        p,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 校验结构体标签，命令行覆盖参数之后需要再次调用
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{Field: fe.Namespace(), Err: fmt.Errorf("failed %q rule (value %v)", fe.Tag(), fe.Value())}
		}
		return &ConfigError{Err: err}
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
