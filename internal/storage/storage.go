package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ImagePrefix 本地化图片的相对路径前缀
const ImagePrefix = "news_images/"

var (
	ErrNotFound         = errors.New("news not found")
	ErrDuplicateURL     = errors.New("duplicate source_url")
	ErrInvalidImagePath = errors.New("image_url must be empty, http(s) or news_images/ relative")
	ErrInvalidNews      = errors.New("invalid news record")
)

// News 持久化的文章
type News struct {
	ID                   uint                        `gorm:"primaryKey" json:"id"`
	Title                string                      `gorm:"size:200;not null" json:"title"`
	Content              string                      `gorm:"type:text;not null" json:"content"`
	SourceURL            string                      `gorm:"size:1024;uniqueIndex;not null" json:"sourceUrl"`
	Source               string                      `gorm:"size:64;index;not null" json:"source"`
	PublishDate          time.Time                   `gorm:"index" json:"publishDate"`
	PublishDateEstimated bool                        `json:"publishDateEstimated"`
	Summary              string                      `gorm:"size:600" json:"summary"`
	ImageURL             string                      `gorm:"size:1024;index" json:"imageUrl"`
	ImageAlt             string                      `gorm:"size:512" json:"imageAlt"`
	DifficultyLevel      string                      `gorm:"size:16;index;not null" json:"difficultyLevel"`
	WordCount            int                         `json:"wordCount"`
	ReadingTimeMinutes   int                         `json:"readingTimeMinutes"`
	KeyVocabulary        string                      `gorm:"size:512" json:"keyVocabulary"`
	Tags                 datatypes.JSONSlice[string] `json:"tags"`
	Origin               string                      `gorm:"size:16" json:"origin"`
	ExtraData            datatypes.JSONMap           `json:"extraData"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store 聚合数据库与 Redis 连接
type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
	News  *NewsRepository
}

// Open 连接 PostgreSQL 并执行迁移；redisURL 为空时不启用 Redis
func Open(ctx context.Context, dsn, redisURL string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	var rdb *redis.Client
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed, continuing without cache")
			_ = rdb.Close()
			rdb = nil
		}
	}
	return NewStore(db, rdb)
}

// GormConfig 开启错误翻译，唯一约束冲突映射为 gorm.ErrDuplicatedKey
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

// NewStore 迁移表结构并组装仓储，测试中可传入 sqlite
func NewStore(db *gorm.DB, rdb *redis.Client) (*Store, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &Store{DB: db, Redis: rdb, News: NewNewsRepository(db, rdb)}, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&News{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close 关闭底层连接
func (s *Store) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if sqlDB, err := s.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}

// ValidImageURL image_url 只允许空、http(s) 远程地址或 news_images/ 相对路径
func ValidImageURL(s string) bool {
	switch {
	case s == "":
		return true
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return true
	case strings.HasPrefix(s, ImagePrefix):
		rest := strings.TrimPrefix(s, ImagePrefix)
		return rest != "" && !strings.Contains(s, "..") && !strings.Contains(s, "\\")
	}
	return false
}

// IsLocalImage 判断是否为本地化后的相对路径
func IsLocalImage(s string) bool {
	return strings.HasPrefix(s, ImagePrefix)
}

// IsSerializationFailure PostgreSQL 序列化失败或死锁，可整体重试事务
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// translate 把 gorm 错误映射为包内错误
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateURL
	}
	return err
}
