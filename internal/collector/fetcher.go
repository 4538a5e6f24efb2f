package collector

import "context"

// Post 单条帖子在上游 listing 中的原始字段
type Post struct {
	ID        string
	Title     string
	Selftext  string
	URL       string
	Permalink string
	Score     int
}

// Comment 帖子下的一级评论
type Comment struct {
	Author string
	Body   string
}

// Client 抽象上游内容源，便于测试时替换为假实现
type Client interface {
	// TopPosts 返回频道在 timeFilter 时间窗内的热门帖子，最多 limit 条
	TopPosts(ctx context.Context, channel, timeFilter string, limit int) ([]Post, error)
	// TopComments 返回帖子的一级评论（按热度），最多 limit 条
	TopComments(ctx context.Context, postID string, limit int) ([]Comment, error)
}
