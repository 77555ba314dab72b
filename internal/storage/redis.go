package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("another run holds the lock")
	ErrLockNotHeld     = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RunLock 基于 SET NX 的跨进程互斥，保证同一时间只有一次采集在写库
type RunLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

func NewRunLock(client *redis.Client, key string, ttl time.Duration) *RunLock {
	return &RunLock{client: client, key: key, ttl: ttl}
}

// TryLock 非阻塞获取锁
func (l *RunLock) TryLock(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}
	l.token = token
	return nil
}

// Unlock 仅当锁仍由自己持有时删除
func (l *RunLock) Unlock(ctx context.Context) error {
	if l.token == "" {
		return ErrLockNotHeld
	}
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	l.token = ""
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// ReportCache 缓存每个来源最近一次的运行报告，供管理端查询
type ReportCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, prefix: "lingonews:report:", ttl: ttl}
}

func (c *ReportCache) Put(ctx context.Context, source string, v any) error {
	bs, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+source, bs, c.ttl).Err()
}

// Get 读取缓存，不存在时返回 false
func (c *ReportCache) Get(ctx context.Context, source string, v any) (bool, error) {
	bs, err := c.client.Get(ctx, c.prefix+source).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(bs, v)
}
