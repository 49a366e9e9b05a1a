package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiterConfig 限流配置
type RateLimiterConfig struct {
	RequestsPerSecond int           // 每秒补充令牌数
	BurstSize         int           // 突发容量
	CleanupInterval   time.Duration // 过期状态清理间隔
}

// DefaultRateLimiterConfig 默认配置
// 支付回调与退款接口共用，突发容量覆盖网关重试风暴
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		RequestsPerSecond: 20,
		BurstSize:         50,
		CleanupInterval:   5 * time.Minute,
	}
}

// bucket 单个调用方的令牌桶
type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter 按调用方限流的令牌桶限流器
type RateLimiter struct {
	config  *RateLimiterConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	stopCh  chan struct{}
}

// NewRateLimiter 创建限流器
func NewRateLimiter(config *RateLimiterConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimiterConfig()
	}

	rl := &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow 检查调用方是否允许本次请求
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, exists := rl.buckets[key]
	if !exists {
		rl.buckets[key] = &bucket{
			tokens:     float64(rl.config.BurstSize - 1),
			lastUpdate: now,
		}
		return true
	}

	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens += elapsed * float64(rl.config.RequestsPerSecond)
	if b.tokens > float64(rl.config.BurstSize) {
		b.tokens = float64(rl.config.BurstSize)
	}
	b.lastUpdate = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// cleanup 定期清理长时间无请求的调用方状态
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, b := range rl.buckets {
				if now.Sub(b.lastUpdate) > 10*time.Minute {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop 停止限流器后台清理
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// RateLimit 限流中间件，按用户标识或客户端IP区分调用方
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-User-Id")
		if key == "" {
			key = c.ClientIP()
		}

		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"message":     "请求过于频繁，请稍后重试",
				"retry_after": 1,
			})
			return
		}

		c.Next()
	}
}
