package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/LingoNews/internal/api"
	"github.com/LJTian/LingoNews/internal/app"
	"github.com/LJTian/LingoNews/internal/config"
	"github.com/LJTian/LingoNews/internal/logger"
	"github.com/LJTian/LingoNews/internal/scheduler"
	"github.com/gin-gonic/gin"
)

// 管理端入口：定时采集 + 文章管理接口
func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New(logger.Options{})
		l.Error().Err(err).Msg("load config failed")
		os.Exit(scheduler.ExitConfig)
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init app failed")
	}
	defer a.Close()

	s, err := scheduler.New(cfg.CronSpec, a.Coordinator, a.DefaultRequest(nil), log)
	if err != nil {
		log.Fatal().Err(err).Str("cron", cfg.CronSpec).Msg("init scheduler failed")
	}
	s.Start()
	defer s.Stop()

	if cfg.LogLevel != "debug" && cfg.LogLevel != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := api.NewServer(api.Options{
		News:     a.Store.News,
		Runner:   s,
		Reports:  a.Coordinator,
		Registry: a.Registry,
		Logger:   log,
	})
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	engine := api.NewEngine(srv, cfg.BasicAuthUser, cfg.BasicAuthPass, log)

	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", httpServer.Addr).Str("cron", cfg.CronSpec).Msg("starting api server")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server exit")
	}
}
