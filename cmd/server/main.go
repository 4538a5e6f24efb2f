package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/RedditHourly/internal/api"
	"github.com/LJTian/RedditHourly/internal/collector"
	"github.com/LJTian/RedditHourly/internal/config"
	"github.com/LJTian/RedditHourly/internal/logging"
	"github.com/LJTian/RedditHourly/internal/processor"
	"github.com/LJTian/RedditHourly/internal/scheduler"
	"github.com/LJTian/RedditHourly/internal/storage"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	log.WithFields(logging.Fields{
		"port":     cfg.AppPort,
		"cron":     cfg.CronSpec,
		"data":     cfg.DataFile,
		"comments": cfg.FetchComments,
		"channels": config.Channels,
	}).Info("config loaded")

	// Redis 仅作读缓存，未配置时直接读文件
	var cache *storage.SnapshotCache
	if cfg.RedisAddr != "" {
		cache = storage.NewSnapshotCache(storage.NewRedisClient(cfg.RedisAddr, log), cfg.SnapshotCacheTTL)
	}
	store := storage.NewStore(cfg.DataFile, cache, log)

	// 抓取历史写入 PostgreSQL，可选；连接失败不影响主流程
	var runs scheduler.RunRecorder
	if cfg.PostgresDSN != "" {
		runLog, err := storage.OpenRunLog(cfg.PostgresDSN)
		if err != nil {
			log.WithError(err).Warn("open run log failed, fetch history disabled")
		} else {
			runs = runLog
		}
	}

	client, err := collector.NewRedditClient(collector.RedditOptions{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.UpstreamTimeout,
		Retries:      cfg.UpstreamRetries,
		Logger:       log,
	})
	if err != nil {
		log.WithError(err).Fatal("init reddit client failed")
	}

	cycle := scheduler.NewCycle(client, processor.NewProcessor(nil), store, scheduler.CycleOptions{
		Channels:      config.Channels,
		FetchComments: cfg.FetchComments,
		Timeout:       cfg.CycleTimeout,
		Runs:          runs,
		Logger:        log,
	})
	s, err := scheduler.New(cfg.CronSpec, cycle, log)
	if err != nil {
		log.WithError(err).Fatal("init scheduler failed")
	}
	s.Start()

	gin.SetMode(gin.ReleaseMode)
	router, err := api.NewRouter(api.NewServer(store, log))
	if err != nil {
		log.WithError(err).Fatal("init router failed")
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server exit")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	s.Stop()
	log.Info("server stopped")
}
