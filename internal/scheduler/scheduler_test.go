package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LJTian/RedditHourly/internal/logging"
	"github.com/LJTian/RedditHourly/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingRunner struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) FetchSnapshot(context.Context) (processor.Snapshot, error) {
	r.calls.Add(1)
	r.started <- struct{}{}
	<-r.release
	return processor.Snapshot{}, r.err
}

func TestNewRejectsInvalidSpec(t *testing.T) {
	_, err := New("not a cron spec", newBlockingRunner(), logging.Discard())
	assert.Error(t, err)
}

func TestStartRunsImmediately(t *testing.T) {
	r := newBlockingRunner()
	s, err := New("0 * * * *", r, logging.Discard())
	require.NoError(t, err)

	s.Start()
	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatal("startup fetch cycle did not run")
	}
	close(r.release)
	s.Stop()
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Len(t, s.Cron().Entries(), 1)
}

func TestRunOnceSkipsWhileRunning(t *testing.T) {
	r := newBlockingRunner()
	s, err := New("0 * * * *", r, logging.Discard())
	require.NoError(t, err)

	done := make(chan bool)
	go func() { done <- s.RunOnce() }()
	<-r.started

	// 上一轮尚未结束，重叠触发被跳过
	assert.False(t, s.RunOnce())

	close(r.release)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), r.calls.Load())

	// 结束后可以再次执行
	assert.True(t, s.RunOnce())
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestRunOnceSurvivesCycleError(t *testing.T) {
	r := newBlockingRunner()
	r.err = errors.New("all channels failed")
	close(r.release)

	s, err := New("@every 1h", r, logging.Discard())
	require.NoError(t, err)
	assert.True(t, s.RunOnce())
	assert.True(t, s.RunOnce())
	assert.Equal(t, int32(2), r.calls.Load())
}
