// Package media 管理文章图片：远程图片本地化为内容寻址文件，并在记录修改、删除后清理
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/LJTian/LingoNews/internal/fetcher"
	"github.com/LJTian/LingoNews/internal/metrics"
	"github.com/LJTian/LingoNews/internal/storage"
)

// extByMedia 允许的图片类型与扩展名
var extByMedia = map[string]string{
	"image/jpeg":  "jpeg",
	"image/jpg":   "jpeg",
	"image/pjpeg": "jpeg",
	"image/png":   "png",
	"image/webp":  "webp",
	"image/gif":   "gif",
}

// ImageError 图片本地化失败；调用方保留远程地址
type ImageError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("materialize %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("materialize %s: %s", e.URL, e.Reason)
}

func (e *ImageError) Unwrap() error { return e.Err }

// ImageFetcher 图片下载能力，由 *fetcher.Fetcher 实现
type ImageFetcher interface {
	Fetch(ctx context.Context, url string, kind fetcher.Kind) (*fetcher.Response, error)
}

// RefCounter 统计引用同一路径的记录数
type RefCounter interface {
	CountByImagePath(ctx context.Context, path string) (int64, error)
}

// Mirror 可选的远端副本（S3/R2），失败只记录日志
type Mirror interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

type Options struct {
	Root    string
	Fetcher ImageFetcher
	Refs    RefCounter
	Mirror  Mirror
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Manager 唯一写入、删除媒体目录的组件
type Manager struct {
	root    string
	fetcher ImageFetcher
	refs    RefCounter
	mirror  Mirror
	metrics *metrics.Metrics
	log     zerolog.Logger
}

var _ storage.ImageHooks = (*Manager)(nil)

func NewManager(opts Options) (*Manager, error) {
	if opts.Root == "" {
		return nil, errors.New("media: root is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("media: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, strings.TrimSuffix(storage.ImagePrefix, "/")), 0o755); err != nil {
		return nil, fmt.Errorf("media: create root: %w", err)
	}
	return &Manager{
		root:    root,
		fetcher: opts.Fetcher,
		refs:    opts.Refs,
		mirror:  opts.Mirror,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}, nil
}

// SetRefs 仓储与 Manager 互相依赖，构造后注入
func (m *Manager) SetRefs(r RefCounter) { m.refs = r }

// Root 媒体根目录的绝对路径
func (m *Manager) Root() string { return m.root }

// AbsPath 相对路径转为媒体目录下的绝对路径
func (m *Manager) AbsPath(rel string) (string, error) {
	if !storage.IsLocalImage(rel) || !storage.ValidImageURL(rel) {
		return "", fmt.Errorf("media: %q is not a store-relative image path", rel)
	}
	return filepath.Join(m.root, filepath.FromSlash(rel)), nil
}

// Exists 相对路径是否对应媒体目录下的普通文件
func (m *Manager) Exists(_ context.Context, rel string) bool {
	abs, err := m.AbsPath(rel)
	if err != nil {
		return false
	}
	fi, err := os.Stat(abs)
	return err == nil && fi.Mode().IsRegular()
}

// RelPath 按内容哈希计算相对路径 news_images/<aa>/<sha256>.<ext>
func RelPath(sum, ext string) string {
	return path.Join(strings.TrimSuffix(storage.ImagePrefix, "/"), sum[:2], sum+"."+ext)
}

// Materialize 下载远程图片并按 SHA-256 落盘，已存在的同内容文件直接复用
func (m *Manager) Materialize(ctx context.Context, remoteURL string) (string, error) {
	rel, err := m.materialize(ctx, remoteURL)
	if err != nil {
		m.metrics.ObserveImage("materialize", "error")
		return "", err
	}
	return rel, nil
}

func (m *Manager) materialize(ctx context.Context, remoteURL string) (string, error) {
	if m.fetcher == nil {
		return "", &ImageError{URL: remoteURL, Reason: "no fetcher configured"}
	}
	resp, err := m.fetcher.Fetch(ctx, remoteURL, fetcher.KindImage)
	if err != nil {
		return "", &ImageError{URL: remoteURL, Reason: "download failed", Err: err}
	}
	if len(resp.Body) == 0 {
		return "", &ImageError{URL: remoteURL, Reason: "empty body"}
	}

	mediaType, ext, ok := DetectType(resp.ContentType, resp.Body)
	if !ok {
		return "", &ImageError{URL: remoteURL, Reason: fmt.Sprintf("unsupported content type %q", mediaType)}
	}

	sum := sha256.Sum256(resp.Body)
	hexSum := hex.EncodeToString(sum[:])
	rel := RelPath(hexSum, ext)
	abs := filepath.Join(m.root, filepath.FromSlash(rel))

	if _, err := os.Stat(abs); err == nil {
		m.metrics.ObserveImage("materialize", "hit")
		return rel, nil
	}

	if err := writeAtomic(abs, resp.Body); err != nil {
		return "", &ImageError{URL: remoteURL, Reason: "write failed", Err: err}
	}
	m.metrics.ObserveImage("materialize", "stored")
	m.log.Debug().Str("url", remoteURL).Str("path", rel).Int("bytes", len(resp.Body)).Msg("image stored")

	if m.mirror != nil {
		if err := m.mirror.Put(ctx, rel, resp.Body, mediaType); err != nil {
			m.log.Warn().Err(err).Str("path", rel).Msg("mirror put failed")
		}
	}
	return rel, nil
}

// DetectType 以响应头为准，缺失或为通用类型时按内容嗅探
func DetectType(contentType string, body []byte) (string, string, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}
	mediaType = strings.ToLower(mediaType)

	if ext, ok := extByMedia[mediaType]; ok {
		return mediaType, ext, true
	}
	if mediaType == "" || mediaType == "application/octet-stream" || mediaType == "binary/octet-stream" || mediaType == "text/plain" {
		sniffed := mimetype.Detect(body).String()
		if i := strings.IndexByte(sniffed, ';'); i >= 0 {
			sniffed = sniffed[:i]
		}
		ext, ok := extByMedia[sniffed]
		return sniffed, ext, ok
	}
	return mediaType, "", false
}

func writeAtomic(dst string, body []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// AfterDelete 记录删除后调用：仍被其它记录引用的文件保留
func (m *Manager) AfterDelete(ctx context.Context, rel string) {
	m.release(ctx, rel, "delete")
}

// AfterUpdate 记录的 image_url 变化后清理旧文件；新旧相同（内容寻址命中）时不做任何事
func (m *Manager) AfterUpdate(ctx context.Context, oldRel, newRel string) {
	if oldRel == newRel {
		return
	}
	m.release(ctx, oldRel, "update")
}

func (m *Manager) release(ctx context.Context, rel, op string) {
	if !storage.IsLocalImage(rel) {
		return
	}
	log := m.log.With().Str("path", rel).Str("op", op).Logger()

	abs, err := m.AbsPath(rel)
	if err != nil {
		log.Error().Err(err).Msg("refusing to remove image")
		m.metrics.ObserveImage(op, "error")
		return
	}

	if m.refs != nil {
		n, err := m.refs.CountByImagePath(ctx, rel)
		if err != nil {
			log.Error().Err(err).Msg("count image references failed, keeping file")
			m.metrics.ObserveImage(op, "error")
			return
		}
		if n > 0 {
			log.Debug().Int64("refs", n).Msg("image still referenced, keeping file")
			m.metrics.ObserveImage(op, "shared")
			return
		}
	}

	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error().Err(err).Msg("remove image failed")
		m.metrics.ObserveImage(op, "error")
		return
	}
	m.metrics.ObserveImage(op, "removed")

	if m.mirror != nil {
		if err := m.mirror.Delete(ctx, rel); err != nil {
			log.Warn().Err(err).Msg("mirror delete failed")
		}
	}
}
