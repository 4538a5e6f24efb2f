package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/RedditHourly/internal/collector"
	"github.com/LJTian/RedditHourly/internal/config"
	"github.com/LJTian/RedditHourly/internal/processor"
	"github.com/LJTian/RedditHourly/internal/storage"
	"github.com/sirupsen/logrus"
)

// ErrAllChannelsFailed 所有频道均抓取失败，本轮不覆盖已有快照
var ErrAllChannelsFailed = errors.New("scheduler: all channels failed")

// SnapshotSaver 由 storage.Store 实现
type SnapshotSaver interface {
	Save(ctx context.Context, snap processor.Snapshot) error
}

// RunRecorder 由 storage.RunLog 实现，可为空
type RunRecorder interface {
	Record(ctx context.Context, run *storage.FetchRun) error
}

type CycleOptions struct {
	Channels      []string
	FetchComments bool
	// 整轮抓取的超时时间，<=0 表示不限制
	Timeout time.Duration
	Runs    RunRecorder
	Logger  *logrus.Logger
}

// Cycle 一轮完整的抓取：逐个频道拉取、抽样、取评论，最后整体写入 Store
type Cycle struct {
	client        collector.Client
	processor     *processor.Processor
	store         SnapshotSaver
	runs          RunRecorder
	channels      []string
	fetchComments bool
	timeout       time.Duration
	log           *logrus.Logger
}

func NewCycle(client collector.Client, p *processor.Processor, store SnapshotSaver, opts CycleOptions) *Cycle {
	if opts.Channels == nil {
		opts.Channels = config.Channels
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Cycle{
		client:        client,
		processor:     p,
		store:         store,
		runs:          opts.Runs,
		channels:      opts.Channels,
		fetchComments: opts.FetchComments,
		timeout:       opts.Timeout,
		log:           opts.Logger,
	}
}

// FetchSnapshot 按配置顺序逐个频道抓取。单个频道失败只记录日志并跳过，
// 该频道本轮缺席；全部失败时返回 ErrAllChannelsFailed 且不写入 Store。
func (c *Cycle) FetchSnapshot(ctx context.Context) (processor.Snapshot, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	snap := make(processor.Snapshot, 0, len(c.channels)*config.SampleSize)
	counts := make(map[string]any, len(c.channels))

	var (
		failed  int
		lastErr error
	)
	for _, ch := range c.channels {
		records, err := c.fetchChannel(ctx, ch)
		if err != nil {
			c.log.WithError(err).WithField("channel", ch).Warn("fetch channel failed, skipped this round")
			counts[ch] = -1
			failed++
			lastErr = err
			continue
		}
		counts[ch] = len(records)
		snap = append(snap, records...)
	}

	// 超时或取消后仍需写入已抓到的数据与运行记录
	saveCtx := context.WithoutCancel(ctx)

	var err error
	if len(c.channels) > 0 && failed == len(c.channels) {
		err = fmt.Errorf("%w: %w", ErrAllChannelsFailed, lastErr)
	} else if saveErr := c.store.Save(saveCtx, snap); saveErr != nil {
		err = saveErr
	}

	c.record(saveCtx, &storage.FetchRun{
		StartedAt:  started,
		FinishedAt: time.Now(),
		Records:    len(snap),
		Channels:   counts,
		Saved:      err == nil,
		Error:      errString(err),
	})

	if err != nil {
		return snap, err
	}
	c.log.WithFields(logrus.Fields{
		"records":  len(snap),
		"failed":   failed,
		"duration": time.Since(started).String(),
	}).Info("posts refreshed")
	return snap, nil
}

func (c *Cycle) fetchChannel(ctx context.Context, channel string) ([]processor.PostRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	posts, err := c.client.TopPosts(ctx, channel, config.TopTimeFilter, config.TopLimit)
	if err != nil {
		return nil, fmt.Errorf("top posts r/%s: %w", channel, err)
	}

	sampled := c.processor.Sample(posts)
	records := make([]processor.PostRecord, 0, len(sampled))
	for _, p := range sampled {
		var reactions []string
		if c.fetchComments {
			reactions = c.reactions(ctx, channel, p)
		}
		records = append(records, c.processor.Record(channel, p, reactions))
	}

	c.log.WithFields(logrus.Fields{
		"channel": channel,
		"fetched": len(posts),
		"sampled": len(records),
	}).Debug("channel fetched")
	return records, nil
}

// reactions 评论获取失败不影响帖子本身，只是评论为空
func (c *Cycle) reactions(ctx context.Context, channel string, p collector.Post) []string {
	comments, err := c.client.TopComments(ctx, p.ID, c.processor.ReactionLimit())
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"channel": channel,
			"post":    p.ID,
		}).Warn("fetch comments failed")
		return nil
	}
	return c.processor.Reactions(comments)
}

func (c *Cycle) record(ctx context.Context, run *storage.FetchRun) {
	if c.runs == nil {
		return
	}
	if err := c.runs.Record(ctx, run); err != nil {
		c.log.WithError(err).Warn("record fetch run failed")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
