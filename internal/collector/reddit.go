package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	redditAPIBaseURL     = "https://oauth.reddit.com"
	redditTokenURL       = "https://www.reddit.com/api/v1/access_token"
	redditMaxBodyBytes   = 4 << 20 // 4MB，100 条帖子的 listing 足够
	redditDefaultTimeout = 15 * time.Second
	redditRetryBaseDelay = 500 * time.Millisecond
	redditRetryMaxDelay  = 5 * time.Second
	redditCommentKind    = "t1"
)

// RedditOptions 构造 RedditClient 所需参数；URL 为空时使用官方地址
type RedditOptions struct {
	ClientID     string
	ClientSecret string
	UserAgent    string

	Timeout time.Duration
	Retries int

	APIBaseURL string
	TokenURL   string

	Logger *logrus.Logger
}

// StatusError 上游返回非 2xx 时的错误
type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reddit: %s: status %d", e.Path, e.Code)
}

// RedditClient 通过 OAuth2 client-credentials（只读应用授权）访问 Reddit API。
// 进程内构造一次，注入到抓取循环中复用。
type RedditClient struct {
	collector *colly.Collector
	apiBase   string
	userAgent string
	executor  failsafe.Executor[[]byte]
	log       *logrus.Logger
}

func NewRedditClient(opts RedditOptions) (*RedditClient, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" || opts.UserAgent == "" {
		return nil, errors.New("reddit: client id, client secret and user agent are required")
	}
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = redditAPIBaseURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = redditTokenURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = redditDefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	apiURL, err := url.Parse(opts.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("reddit: parse api base url: %w", err)
	}

	// 获取 token 的请求同样需要带上 User-Agent，否则会被 Reddit 限流
	tokenHTTP := &http.Client{
		Timeout:   opts.Timeout,
		Transport: &userAgentTransport{userAgent: opts.UserAgent, base: http.DefaultTransport},
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, tokenHTTP)
	cc := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	c := colly.NewCollector(
		colly.AllowedDomains(apiURL.Hostname()),
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(redditMaxBodyBytes),
	)
	c.WithTransport(cc.Client(tokenCtx).Transport)
	c.SetRequestTimeout(opts.Timeout)

	retry := retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool { return shouldRetry(err) }).
		WithBackoff(redditRetryBaseDelay, redditRetryMaxDelay).
		WithMaxRetries(opts.Retries).
		WithJitterFactor(0.1).
		Build()

	return &RedditClient{
		collector: c,
		apiBase:   apiURL.String(),
		userAgent: opts.UserAgent,
		executor:  failsafe.With(retry),
		log:       opts.Logger,
	}, nil
}

func (r *RedditClient) TopPosts(ctx context.Context, channel, timeFilter string, limit int) ([]Post, error) {
	q := url.Values{}
	q.Set("t", timeFilter)
	q.Set("limit", fmt.Sprint(limit))
	q.Set("raw_json", "1")

	body, err := r.get(ctx, "/r/"+url.PathEscape(channel)+"/top", q)
	if err != nil {
		return nil, err
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("reddit: decode r/%s top: %w", channel, err)
	}

	posts := make([]Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		var p redditPost
		if err := json.Unmarshal(child.Data, &p); err != nil {
			r.log.WithError(err).WithField("channel", channel).Warn("reddit: skip undecodable post")
			continue
		}
		posts = append(posts, Post{
			ID:        p.ID,
			Title:     p.Title,
			Selftext:  p.Selftext,
			URL:       p.URL,
			Permalink: p.Permalink,
			Score:     p.Score,
		})
	}
	return posts, nil
}

func (r *RedditClient) TopComments(ctx context.Context, postID string, limit int) ([]Comment, error) {
	q := url.Values{}
	q.Set("sort", "top")
	q.Set("depth", "1")
	q.Set("limit", fmt.Sprint(limit))
	q.Set("raw_json", "1")

	body, err := r.get(ctx, "/comments/"+url.PathEscape(postID), q)
	if err != nil {
		return nil, err
	}

	// 返回两个 listing：[0] 为帖子本身，[1] 为评论树
	var listings []redditListing
	if err := json.Unmarshal(body, &listings); err != nil {
		return nil, fmt.Errorf("reddit: decode comments %s: %w", postID, err)
	}
	if len(listings) < 2 {
		return []Comment{}, nil
	}

	comments := make([]Comment, 0, len(listings[1].Data.Children))
	for _, child := range listings[1].Data.Children {
		// "more" 节点只是折叠占位，直接跳过
		if child.Kind != redditCommentKind {
			continue
		}
		var c redditComment
		if err := json.Unmarshal(child.Data, &c); err != nil {
			continue
		}
		comments = append(comments, Comment{Author: c.Author, Body: c.Body})
	}
	return comments, nil
}

func (r *RedditClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	target := r.apiBase + path + "?" + q.Encode()
	return r.executor.WithContext(ctx).Get(func() ([]byte, error) {
		return r.do(ctx, path, target)
	})
}

// do 每次请求 Clone 一个 collector，回调互不干扰，底层 HTTP client 共享
func (r *RedditClient) do(ctx context.Context, path, target string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := r.collector.Clone()
	var (
		body   []byte
		status int
	)
	c.OnResponse(func(resp *colly.Response) {
		body = resp.Body
	})
	c.OnError(func(resp *colly.Response, _ error) {
		if resp != nil {
			status = resp.StatusCode
		}
	})

	hdr := http.Header{}
	hdr.Set("User-Agent", r.userAgent)
	hdr.Set("Accept", "application/json")

	if err := c.Request(http.MethodGet, target, nil, nil, hdr); err != nil {
		if status != 0 {
			return nil, &StatusError{Code: status, Path: path}
		}
		return nil, fmt.Errorf("reddit: %s: %w", path, err)
	}
	return body, nil
}

// shouldRetry 网络错误、429、5xx 重试；其余 4xx（鉴权失败、频道不存在）直接失败
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= http.StatusInternalServerError
	}
	return true
}

type userAgentTransport struct {
	userAgent string
	base      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

type redditListing struct {
	Data struct {
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type redditPost struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Selftext  string `json:"selftext"`
	URL       string `json:"url"`
	Permalink string `json:"permalink"`
	Score     int    `json:"score"`
}

type redditComment struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}
