// Package relay 提供实时 websocket 入口以及健康检查、指标 HTTP 路由
package relay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-progress/sdk/config"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/metrics"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/session"
)

const (
	maxMessageSize = 64 << 10
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	writeWait      = 10 * time.Second
)

// Option Server 配置项
type Option func(*Server)

// WithMetrics 挂载 /metrics 和 HTTP 指标中间件
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = c
	}
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l.Named("relay")
		}
	}
}

// Server 把 websocket 客户端的进度事件转交给会话
type Server struct {
	app      *config.Application
	tracking *config.Tracking
	registry *session.Registry
	metrics  *metrics.Collector
	log      *zap.Logger

	upgrader websocket.Upgrader
	engine   *gin.Engine
	http     *http.Server

	// 事件处理用的根 context，Shutdown 排空连接后取消
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu      sync.Mutex
	closing bool
	conns   map[*websocket.Conn]struct{}
	serving sync.WaitGroup
}

// NewServer 构建路由，app 和 tracking 不能为 nil
func NewServer(app *config.Application, tracking *config.Tracking, registry *session.Registry, opts ...Option) *Server {
	s := &Server{
		app:      app,
		tracking: tracking,
		registry: registry,
		log:      zap.NewNop(),
		conns:    make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(app.CorsOrigin, r.Header.Get("Origin"))
		},
	}

	if app.Mode != "" {
		gin.SetMode(modeOf(app.Mode))
	}
	s.engine = gin.New()
	s.engine.Use(Recovery(), logger.SetRequestLogger)
	if s.metrics != nil {
		s.engine.Use(s.metrics.GinMiddleware(""))
	}
	s.engine.Use(CORS(app.CorsOrigin))

	s.engine.GET("/healthcheck", s.healthcheck)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	s.engine.GET(socketPath(app), s.serveSocket)

	s.http = &http.Server{
		Addr:              app.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func modeOf(mode string) string {
	switch mode {
	case "dev", gin.DebugMode:
		return gin.DebugMode
	case gin.TestMode:
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}

func socketPath(app *config.Application) string {
	if app.SocketPath == "" {
		return "/socket"
	}
	return app.SocketPath
}

// Handler 返回 HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start 监听直到 Shutdown
func (s *Server) Start() error {
	s.log.Info("relay listening", zap.String("addr", s.http.Addr), zap.String("socket", socketPath(s.app)))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止接受连接，关闭已打开的 websocket，等待处理协程退出或 ctx 到期
// 正在处理的事件会执行完；ctx 到期时仍在等待的操作被取消
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	defer s.cancelBase()

	s.mu.Lock()
	s.closing = true
	for conn := range s.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.serving.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("websocket handlers still running at shutdown deadline")
	}
	return err
}

// Connections 当前打开的 websocket 数
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

type healthResponse struct {
	Status string `json:"status"`
	Port   int    `json:"port"`
}

func (s *Server) healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "ok", Port: s.app.Port})
}

func (s *Server) serveSocket(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		logger.GetRequestLogger(c).Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ws.Close()
		return
	}
	s.conns[ws] = struct{}{}
	s.serving.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, ws)
		s.mu.Unlock()
		s.serving.Done()
	}()

	newConnection(s, ws, c.ClientIP()).serve()
}
