package main

import (
	"context"
	"os"

	"github.com/LJTian/RedditHourly/internal/collector"
	"github.com/LJTian/RedditHourly/internal/config"
	"github.com/LJTian/RedditHourly/internal/logging"
	"github.com/LJTian/RedditHourly/internal/processor"
	"github.com/LJTian/RedditHourly/internal/scheduler"
	"github.com/LJTian/RedditHourly/internal/storage"
)

// 仅执行一轮抓取后退出：适合手动刷新快照或由外部定时任务调用
func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	var cache *storage.SnapshotCache
	if cfg.RedisAddr != "" {
		cache = storage.NewSnapshotCache(storage.NewRedisClient(cfg.RedisAddr, log), cfg.SnapshotCacheTTL)
	}
	store := storage.NewStore(cfg.DataFile, cache, log)

	ctx := context.Background()

	var runs scheduler.RunRecorder
	if cfg.PostgresDSN != "" {
		runLog, err := storage.OpenRunLog(cfg.PostgresDSN)
		if err != nil {
			log.WithError(err).Warn("open run log failed, fetch history disabled")
		} else {
			runs = runLog
			if last, err := runLog.Latest(ctx); err == nil {
				log.WithFields(logging.Fields{
					"started_at": last.StartedAt,
					"records":    last.Records,
					"saved":      last.Saved,
					"error":      last.Error,
				}).Info("previous fetch run")
			}
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

	snap, err := cycle.FetchSnapshot(ctx)
	if err != nil {
		log.WithError(err).Error("fetch cycle failed")
		os.Exit(1)
	}
	log.WithFields(logging.Fields{
		"records": len(snap),
		"path":    store.Path(),
	}).Info("snapshot written")
}
