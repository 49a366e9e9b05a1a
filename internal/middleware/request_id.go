package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mallpay/internal/logger"
)

// HTTP 头常量
const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// RequestID 请求追踪中间件
// 为每个请求生成唯一ID并注入日志上下文，支持上游透传
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = requestID
		}

		c.Set("request_id", requestID)
		c.Set("trace_id", traceID)

		// 注入 context，业务日志通过 logger.WithContext 带出 trace_id
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))

		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}

// GetRequestID 从 Gin 上下文获取请求ID
func GetRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}
