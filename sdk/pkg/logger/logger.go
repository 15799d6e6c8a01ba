package logger

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ContextKey string

const (
	TrafficKey ContextKey = "X-Request-Id"
	LoggerKey  ContextKey = "_progress-relay-zap-logger-request"
)

var (
	Logger        = zap.NewNop()   //全局ZapLogger打印
	DefaultLogger = Logger.Sugar() //全局SugarLogger打印，用于简易打印
)

// SetRequestLogger gin 中间件，为每个请求生成 request id 并挂上带 request id 的 logger
func SetRequestLogger(c *gin.Context) {
	requestID := c.GetHeader(string(TrafficKey))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx := context.WithValue(c.Request.Context(), TrafficKey, requestID)
	requestLogger := Logger.With(zap.String(string(TrafficKey), requestID))
	ctx = context.WithValue(ctx, LoggerKey, requestLogger)
	c.Request = c.Request.WithContext(ctx)
	c.Header(string(TrafficKey), requestID)
	c.Next()
}

// GetRequestLogger 从上下文获得logger
func GetRequestLogger(c *gin.Context) *zap.Logger {
	return FromContext(c.Request.Context())
}

// FromContext 从 context 中取出 logger，没有时返回全局 logger
func FromContext(ctx context.Context) *zap.Logger {
	if requestLogger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return requestLogger
	}
	return Logger
}

// Infof 用全局 SugarLogger 打印 info 日志
func Infof(template string, args ...interface{}) {
	DefaultLogger.Infof(template, args...)
}

func Errorf(template string, args ...interface{}) {
	DefaultLogger.Errorf(template, args...)
}

// Fatalf 打印后退出进程
func Fatalf(template string, args ...interface{}) {
	DefaultLogger.Fatalf(template, args...)
}
