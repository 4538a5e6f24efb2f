package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/LJTian/RedditHourly/internal/processor"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner 执行一轮抓取，由 *Cycle 实现
type Runner interface {
	FetchSnapshot(ctx context.Context) (processor.Snapshot, error)
}

// Scheduler 启动时立即抓取一次，之后按 cron 表达式（默认每小时整点）执行。
// 同一时间最多只有一轮抓取在运行，重叠的触发直接跳过。
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	mu     sync.Mutex
	wg     sync.WaitGroup
	log    *logrus.Logger
}

func New(spec string, runner Runner, log *logrus.Logger) (*Scheduler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cronLog := cron.PrintfLogger(log)
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog)),
	)

	s := &Scheduler{
		cron:   c,
		runner: runner,
		log:    log,
	}

	if _, err := c.AddFunc(spec, func() { s.RunOnce() }); err != nil {
		return nil, err
	}
	return s, nil
}

// Start 启动 cron，并在后台立即执行首轮抓取，不阻塞 HTTP 服务启动
func (s *Scheduler) Start() {
	s.cron.Start()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunOnce()
	}()
}

// Stop 停止调度并等待正在运行的抓取结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// Cron 暴露底层 cron，便于追加其它定时任务
func (s *Scheduler) Cron() *cron.Cron {
	return s.cron
}

// RunOnce 执行一轮抓取；已有抓取在运行时跳过并返回 false
func (s *Scheduler) RunOnce() bool {
	if !s.mu.TryLock() {
		s.log.Warn("previous fetch cycle still running, skip this tick")
		return false
	}
	defer s.mu.Unlock()

	start := time.Now()
	s.log.Info("start fetch cycle...")
	snap, err := s.runner.FetchSnapshot(context.Background())
	if err != nil {
		s.log.WithError(err).WithField("records", len(snap)).Error("fetch cycle failed")
		return true
	}
	s.log.WithFields(logrus.Fields{
		"records":  len(snap),
		"duration": time.Since(start).String(),
	}).Info("fetch cycle done")
	return true
}
