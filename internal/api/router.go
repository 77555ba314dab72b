package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/LJTian/LingoNews/internal/collector"
	"github.com/LJTian/LingoNews/internal/config"
	"github.com/LJTian/LingoNews/internal/scheduler"
	"github.com/LJTian/LingoNews/internal/storage"
)

// Runner 异步触发采集，由 *scheduler.Scheduler 实现
type Runner interface {
	Trigger(req scheduler.RunRequest) bool
	Request() scheduler.RunRequest
}

// ReportReader 读取来源最近一次报告，由 *scheduler.Coordinator 实现
type ReportReader interface {
	LastReport(ctx context.Context, source string) (*scheduler.SourceReport, bool, error)
}

type Options struct {
	News     *storage.NewsRepository
	Runner   Runner
	Reports  ReportReader
	Registry *collector.Registry
	// Gatherer 为 nil 时使用默认注册表
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

type Server struct {
	news     *storage.NewsRepository
	runner   Runner
	reports  ReportReader
	registry *collector.Registry
	gatherer prometheus.Gatherer
	log      zerolog.Logger
}

func NewServer(opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		news:     opts.News,
		runner:   opts.Runner,
		reports:  opts.Reports,
		registry: opts.Registry,
		gatherer: opts.Gatherer,
		log:      opts.Logger.With().Str("component", "api").Logger(),
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/news", s.listNews)
		v1.GET("/news/:id", s.getNews)
		v1.PATCH("/news/:id", s.updateNews)
		v1.DELETE("/news/:id", s.deleteNews)
		v1.POST("/crawl", s.triggerCrawl)
		v1.GET("/reports/:source", s.sourceReport)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listNews(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	items, err := s.news.List(c.Request.Context(), storage.ListFilter{
		Source:     c.Query("source"),
		Difficulty: c.Query("difficulty"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.internalError(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

func (s *Server) getNews(c *gin.Context) {
	id, good := parseID(c)
	if !good {
		return
	}
	n, err := s.news.Get(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, err)
		return
	}
	ok(c, http.StatusOK, n)
}

// updateRequest 可修改的字段；difficulty_level 不可修改
type updateRequest struct {
	Title    *string `json:"title" binding:"omitempty,min=1,max=200"`
	Content  *string `json:"content" binding:"omitempty,min=1"`
	Summary  *string `json:"summary" binding:"omitempty,max=600"`
	ImageURL *string `json:"imageUrl" binding:"omitempty,max=1024"`
	ImageAlt *string `json:"imageAlt" binding:"omitempty,max=512"`
}

func (s *Server) updateNews(c *gin.Context) {
	id, good := parseID(c)
	if !good {
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	n, err := s.news.Update(c.Request.Context(), id, storage.NewsUpdate{
		Title:    req.Title,
		Content:  req.Content,
		Summary:  req.Summary,
		ImageURL: req.ImageURL,
		ImageAlt: req.ImageAlt,
	})
	if err != nil {
		s.storeError(c, err)
		return
	}
	ok(c, http.StatusOK, n)
}

func (s *Server) deleteNews(c *gin.Context) {
	id, good := parseID(c)
	if !good {
		return
	}
	if err := s.news.Delete(c.Request.Context(), id); err != nil {
		s.storeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": id})
}

type crawlRequest struct {
	Sources []string `json:"sources"`
	Mode    string   `json:"mode"`
	Max     int      `json:"max" binding:"gte=0"`
	DryRun  bool     `json:"dryRun"`
}

func (s *Server) triggerCrawl(c *gin.Context) {
	if s.runner == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "crawl runner not configured")
		return
	}

	var body crawlRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			fail(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	req := s.runner.Request()
	if len(body.Sources) > 0 {
		req.Sources = body.Sources
	}
	if body.Mode != "" {
		mode, err := config.ParseMode(body.Mode)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		req.Mode = mode
	}
	if body.Max > 0 {
		req.MaxArticlesPerSource = body.Max
	}
	req.DryRun = body.DryRun

	if s.registry != nil {
		if _, err := s.registry.Resolve(req.Sources, req.Mode); err != nil {
			fail(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	if !s.runner.Trigger(req) {
		fail(c, http.StatusConflict, "run_in_progress", "a crawl is already running")
		return
	}
	ok(c, http.StatusAccepted, req)
}

func (s *Server) sourceReport(c *gin.Context) {
	if s.reports == nil {
		fail(c, http.StatusNotFound, "not_found", "no report")
		return
	}
	report, found, err := s.reports.LastReport(c.Request.Context(), c.Param("source"))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !found {
		fail(c, http.StatusNotFound, "not_found", "no report")
		return
	}
	ok(c, http.StatusOK, report)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, "invalid_request", "id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

func (s *Server) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fail(c, http.StatusNotFound, "not_found", "news not found")
	case errors.Is(err, storage.ErrInvalidNews), errors.Is(err, storage.ErrInvalidImagePath):
		fail(c, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.internalError(c, err)
	}
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    code,
		"message": msg,
	})
}
