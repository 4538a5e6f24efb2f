package processor

import (
	"math/rand/v2"
	"strings"

	"github.com/LJTian/RedditHourly/internal/collector"
	"github.com/LJTian/RedditHourly/internal/config"
)

// PostRecord 是写入快照文件的统一结构，json tag 即磁盘格式，不可随意修改
type PostRecord struct {
	Channel      string   `json:"subreddit"`
	Title        string   `json:"title"`
	Body         string   `json:"selftext"`
	Link         string   `json:"url"`
	Score        int      `json:"score"`
	TopReactions []string `json:"comments"`
}

// Snapshot 一轮抓取的完整结果，按频道配置顺序排列
type Snapshot []PostRecord

// 自动版主账号与删除占位内容不计入评论
const (
	autoModerator = "AutoModerator"
	deletedBody   = "[deleted]"
	removedBody   = "[removed]"
)

// Processor 负责抽样、评论过滤与正文截断。
// 内部随机源非并发安全，只在单个抓取循环内使用。
type Processor struct {
	rng          *rand.Rand
	sampleSize   int
	maxBodyRunes int
	maxReactions int
}

func NewProcessor(rng *rand.Rand) *Processor {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Processor{
		rng:          rng,
		sampleSize:   config.SampleSize,
		maxBodyRunes: config.MaxBodyRunes,
		maxReactions: config.MaxReactions,
	}
}

// Sample 不放回地均匀抽取 sampleSize 条，结果保持抽样顺序；
// 不足 sampleSize 条时原样返回全部（稀疏频道不算错误）
func (p *Processor) Sample(posts []collector.Post) []collector.Post {
	if len(posts) < p.sampleSize {
		out := make([]collector.Post, len(posts))
		copy(out, posts)
		return out
	}

	out := make([]collector.Post, 0, p.sampleSize)
	for _, idx := range p.rng.Perm(len(posts))[:p.sampleSize] {
		out = append(out, posts[idx])
	}
	return out
}

// Reactions 按原顺序挑选最多 maxReactions 条有效评论
func (p *Processor) Reactions(comments []collector.Comment) []string {
	out := make([]string, 0, p.maxReactions)
	for _, c := range comments {
		if len(out) >= p.maxReactions {
			break
		}
		if !qualifies(c) {
			continue
		}
		out = append(out, c.Body)
	}
	return out
}

// ReactionLimit 向上游请求评论时使用的条数，多取一些以抵消被过滤的评论
func (p *Processor) ReactionLimit() int {
	return p.maxReactions * 5
}

// Record 生成快照记录；reactions 为 nil 时写成空数组
func (p *Processor) Record(channel string, post collector.Post, reactions []string) PostRecord {
	if reactions == nil {
		reactions = []string{}
	}
	return PostRecord{
		Channel:      channel,
		Title:        post.Title,
		Body:         truncateRunes(post.Selftext, p.maxBodyRunes),
		Link:         post.URL,
		Score:        post.Score,
		TopReactions: reactions,
	}
}

func qualifies(c collector.Comment) bool {
	if c.Author == autoModerator {
		return false
	}
	body := strings.TrimSpace(c.Body)
	return body != "" && body != deletedBody && body != removedBody
}

// truncateRunes 按 rune 截断，不追加省略号，避免截断多字节字符
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
