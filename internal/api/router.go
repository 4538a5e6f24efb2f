package api

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/LJTian/RedditHourly/internal/processor"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const pageTitle = "Hourly Reddit Highlights"

//go:embed templates/*.html
var templateFS embed.FS

// SnapshotLoader 由 storage.Store 实现；Load 永不失败
type SnapshotLoader interface {
	Load(ctx context.Context) processor.Snapshot
}

type Server struct {
	store SnapshotLoader
	log   *logrus.Logger
}

func NewServer(store SnapshotLoader, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{store: store, log: log}
}

// NewRouter 创建 gin engine：加载页面模板、日志与 panic 恢复中间件、注册路由
func NewRouter(s *Server) (*gin.Engine, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(requestLogger(s.log), gin.Recovery())
	r.SetHTMLTemplate(tmpl)
	s.RegisterRoutes(r)
	return r, nil
}

// RegisterRoutes 只有首页一个只读路由
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/", s.index)
}

func (s *Server) index(c *gin.Context) {
	posts := s.store.Load(c.Request.Context())
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title": pageTitle,
		"Posts": posts,
	})
}

func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithFields(logrus.Fields{
			"status":    c.Writer.Status(),
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		}).Info("http request")
	}
}
