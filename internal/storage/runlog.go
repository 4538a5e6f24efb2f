package storage

import (
	"context"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// FetchRun 记录每一轮抓取的结果，便于排查某个小时为何没有刷新
type FetchRun struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	StartedAt  time.Time `gorm:"index" json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Records    int       `json:"records"`
	// 每个频道写入的记录数，抓取失败的频道值为 -1
	Channels datatypes.JSONMap `gorm:"type:jsonb" json:"channels"`
	Saved    bool              `json:"saved"`
	Error    string            `gorm:"size:1024" json:"error"`

	CreatedAt time.Time `json:"createdAt"`
}

// RunLog 基于 gorm 的抓取历史，只追加写入，与快照文件相互独立
type RunLog struct {
	DB *gorm.DB
}

// OpenRunLog 连接 PostgreSQL 并自动建表
func OpenRunLog(dsn string) (*RunLog, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&FetchRun{}); err != nil {
		return nil, err
	}
	return NewRunLog(db), nil
}

func NewRunLog(db *gorm.DB) *RunLog {
	return &RunLog{DB: db}
}

func (l *RunLog) Record(ctx context.Context, run *FetchRun) error {
	run.Error = truncateRunesDB(strings.ToValidUTF8(run.Error, "\uFFFD"), 1024)
	return l.DB.WithContext(ctx).Create(run).Error
}

// Latest 返回最近一次抓取记录
func (l *RunLog) Latest(ctx context.Context) (*FetchRun, error) {
	var run FetchRun
	if err := l.DB.WithContext(ctx).Order("started_at DESC").First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// truncateRunesDB 按 rune 截断，保证不超过 varchar 字段长度
func truncateRunesDB(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
