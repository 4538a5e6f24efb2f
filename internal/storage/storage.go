package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/LJTian/RedditHourly/internal/processor"
	"github.com/sirupsen/logrus"
)

// ErrPersistence 快照无法写入磁盘
var ErrPersistence = errors.New("storage: persist snapshot")

// Store 以单个 JSON 文件保存当前快照，可选 Redis 作为读缓存。
// 每次 Save 整体替换上一份快照，不保留历史。
type Store struct {
	path  string
	cache *SnapshotCache
	log   *logrus.Logger
}

func NewStore(path string, cache *SnapshotCache, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{path: path, cache: cache, log: log}
}

func (s *Store) Path() string {
	return s.path
}

// Save 先写同目录临时文件再 rename 覆盖，读者只会看到旧文件或新文件
func (s *Store) Save(ctx context.Context, snap processor.Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersistence, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrPersistence, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// rename 成功后临时文件已不存在，这里只清理失败的残留
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write temp file: %w", ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync temp file: %w", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %w", ErrPersistence, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("%w: chmod temp file: %w", ErrPersistence, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", ErrPersistence, s.path, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, data); err != nil {
			s.log.WithError(err).Warn("snapshot cache refresh failed")
		}
	}
	return nil
}

// Load 永不失败：文件不存在、为空或无法解析时返回空快照
func (s *Store) Load(ctx context.Context) processor.Snapshot {
	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.log.WithError(err).Warn("snapshot cache read failed")
		}
		if ok {
			if snap, err := decodeSnapshot(data); err == nil {
				return snap
			}
		}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.WithError(err).WithField("path", s.path).Warn("read snapshot failed")
		}
		return processor.Snapshot{}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return processor.Snapshot{}
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		s.log.WithError(err).WithField("path", s.path).Warn("decode snapshot failed")
		return processor.Snapshot{}
	}

	if s.cache != nil {
		// 只在 key 不存在时回填，避免覆盖 Save 刚写入的新快照
		if err := s.cache.Fill(ctx, data); err != nil {
			s.log.WithError(err).Warn("snapshot cache fill failed")
		}
	}
	return snap
}

// encodeSnapshot 两空格缩进，不转义非 ASCII 与 HTML 字符
func encodeSnapshot(snap processor.Snapshot) ([]byte, error) {
	out := make(processor.Snapshot, len(snap))
	copy(out, snap)
	for i := range out {
		if out[i].TopReactions == nil {
			out[i].TopReactions = []string{}
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (processor.Snapshot, error) {
	var snap processor.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap == nil {
		snap = processor.Snapshot{}
	}
	for i := range snap {
		if snap[i].TopReactions == nil {
			snap[i].TopReactions = []string{}
		}
	}
	return snap, nil
}
