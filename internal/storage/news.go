package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/LJTian/LingoNews/internal/processor"
)

const (
	listCacheTTL     = time.Minute
	defaultListLimit = 20
	maxListLimit     = 200
	// listGenKey 列表缓存的代号，每次写入后自增使旧缓存失效
	listGenKey = "lingonews:list:gen"
)

// ImageHooks 图片生命周期钩子；After* 在修改或删除提交之后被调用，实现方不得让调用失败
type ImageHooks interface {
	// Exists 相对路径对应的文件是否存在于媒体目录
	Exists(ctx context.Context, path string) bool
	AfterUpdate(ctx context.Context, oldPath, newPath string)
	AfterDelete(ctx context.Context, path string)
}

// NewsRepository 文章表的全部读写入口
type NewsRepository struct {
	db    *gorm.DB
	rdb   *redis.Client
	hooks ImageHooks
}

func NewNewsRepository(db *gorm.DB, rdb *redis.Client) *NewsRepository {
	return &NewsRepository{db: db, rdb: rdb}
}

// SetHooks 注入图片生命周期钩子
func (r *NewsRepository) SetHooks(h ImageHooks) { r.hooks = h }

// WithTx 在单个事务中执行 fn，fn 内的仓储不触发钩子
func (r *NewsRepository) WithTx(ctx context.Context, fn func(tx *NewsRepository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&NewsRepository{db: tx})
	})
	if err == nil {
		r.invalidateList(ctx)
	}
	return err
}

func (r *NewsRepository) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&News{}).Where("source_url = ?", url).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindTitlesBySource 返回同一来源的全部标题
func (r *NewsRepository) FindTitlesBySource(ctx context.Context, source string) ([]string, error) {
	var titles []string
	err := r.db.WithContext(ctx).Model(&News{}).Where("source = ?", source).Order("id").Pluck("title", &titles).Error
	return titles, err
}

// CountRecentBySource 统计 publish_date >= since 的记录数
func (r *NewsRepository) CountRecentBySource(ctx context.Context, source string, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&News{}).
		Where("source = ? AND publish_date >= ?", source, since).
		Count(&n).Error
	return n, err
}

func (r *NewsRepository) CountByImagePath(ctx context.Context, path string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&News{}).Where("image_url = ?", path).Count(&n).Error
	return n, err
}

// Insert 写入新记录；word_count 按正文重新计算，source_url 冲突返回 ErrDuplicateURL
func (r *NewsRepository) Insert(ctx context.Context, n *News) error {
	if err := prepare(n); err != nil {
		return err
	}
	if !processor.Difficulty(n.DifficultyLevel).Valid() {
		return fmt.Errorf("%w: difficulty_level %q", ErrInvalidNews, n.DifficultyLevel)
	}
	if err := translate(r.db.WithContext(ctx).Create(n).Error); err != nil {
		return err
	}
	r.invalidateList(ctx)
	return nil
}

// UpdateImagePath 图片本地化成功后记录相对路径
func (r *NewsRepository) UpdateImagePath(ctx context.Context, id uint, path string) error {
	if !ValidImageURL(path) {
		return ErrInvalidImagePath
	}
	res := r.db.WithContext(ctx).Model(&News{}).Where("id = ?", id).Update("image_url", path)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	r.invalidateList(ctx)
	return nil
}

func (r *NewsRepository) Get(ctx context.Context, id uint) (*News, error) {
	var n News
	if err := r.db.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, translate(err)
	}
	return &n, nil
}

// ListFilter 列表查询条件
type ListFilter struct {
	Source     string
	Difficulty string
	Limit      int
	Offset     int
}

// List 按发布时间倒序分页；配置了 Redis 时缓存一分钟
func (r *NewsRepository) List(ctx context.Context, f ListFilter) ([]News, error) {
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = defaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var cacheKey string
	if r.rdb != nil {
		// 读不到代号时不走缓存
		if gen, err := r.rdb.Get(ctx, listGenKey).Int64(); err == nil || errors.Is(err, redis.Nil) {
			cacheKey = fmt.Sprintf("lingonews:list:%d:%s:%s:%d:%d", gen, f.Source, f.Difficulty, f.Limit, f.Offset)
		}
	}
	if cacheKey != "" {
		if bs, err := r.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []News
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	q := r.db.WithContext(ctx).Model(&News{})
	if f.Source != "" {
		q = q.Where("source = ?", f.Source)
	}
	if f.Difficulty != "" {
		q = q.Where("difficulty_level = ?", f.Difficulty)
	}
	var list []News
	if err := q.Order("publish_date DESC").Order("id DESC").Limit(f.Limit).Offset(f.Offset).Find(&list).Error; err != nil {
		return nil, err
	}

	if cacheKey != "" && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			_ = r.rdb.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}
	return list, nil
}

// NewsUpdate 管理端可修改的字段，nil 表示不修改
type NewsUpdate struct {
	Title    *string
	Content  *string
	Summary  *string
	ImageURL *string
	ImageAlt *string
}

// Update 修改记录；difficulty_level 永不更新，提交后触发 AfterUpdate
func (r *NewsRepository) Update(ctx context.Context, id uint, u NewsUpdate) (*News, error) {
	var (
		updated  News
		oldImage string
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&updated, id).Error; err != nil {
			return translate(err)
		}
		oldImage = updated.ImageURL

		if u.Title != nil {
			updated.Title = *u.Title
		}
		if u.Content != nil {
			updated.Content = *u.Content
		}
		if u.Summary != nil {
			updated.Summary = *u.Summary
		}
		if u.ImageURL != nil {
			if err := r.checkLocalImage(ctx, *u.ImageURL, oldImage); err != nil {
				return err
			}
			updated.ImageURL = *u.ImageURL
		}
		if u.ImageAlt != nil {
			updated.ImageAlt = *u.ImageAlt
		}
		if err := prepare(&updated); err != nil {
			return err
		}
		updated.UpdatedAt = time.Now()

		return tx.Model(&News{ID: id}).Select(
			"title", "content", "summary", "image_url", "image_alt", "word_count", "reading_time_minutes", "updated_at",
		).Updates(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	r.invalidateList(ctx)

	if r.hooks != nil && oldImage != updated.ImageURL {
		r.hooks.AfterUpdate(ctx, oldImage, updated.ImageURL)
	}
	return &updated, nil
}

// Delete 删除记录，提交后触发 AfterDelete 清理本地图片
func (r *NewsRepository) Delete(ctx context.Context, id uint) error {
	var old News
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&old, id).Error; err != nil {
			return translate(err)
		}
		return tx.Delete(&News{}, id).Error
	})
	if err != nil {
		return err
	}
	r.invalidateList(ctx)

	if r.hooks != nil && old.ImageURL != "" {
		r.hooks.AfterDelete(ctx, old.ImageURL)
	}
	return nil
}

// prepare 写入前统一执行的约束：标题长度、image_url 形式、派生统计
func prepare(n *News) error {
	n.Title = processor.TruncateRunes(processor.Normalize(n.Title), processor.MaxTitleRunes)
	if n.Title == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidNews)
	}
	if n.SourceURL == "" || n.Source == "" {
		return fmt.Errorf("%w: source and source_url are required", ErrInvalidNews)
	}
	if !ValidImageURL(n.ImageURL) {
		return ErrInvalidImagePath
	}
	n.WordCount = processor.WordCount(n.Content)
	n.ReadingTimeMinutes = processor.ReadingTime(n.WordCount)
	return nil
}

// checkLocalImage 新的本地相对路径必须指向媒体目录中已存在的文件
func (r *NewsRepository) checkLocalImage(ctx context.Context, path, current string) error {
	if !IsLocalImage(path) || path == current {
		return nil
	}
	if !ValidImageURL(path) || r.hooks == nil || !r.hooks.Exists(ctx, path) {
		return fmt.Errorf("%w: %s does not exist", ErrInvalidImagePath, path)
	}
	return nil
}

// invalidateList 缓存失败不影响写入
func (r *NewsRepository) invalidateList(ctx context.Context) {
	if r.rdb == nil {
		return
	}
	_ = r.rdb.Incr(ctx, listGenKey).Err()
}
