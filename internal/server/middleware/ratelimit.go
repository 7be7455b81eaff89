package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xiaocaoooo/yemoshot/internal/humanize"
	"github.com/xiaocaoooo/yemoshot/internal/observability"
	"github.com/xiaocaoooo/yemoshot/internal/ratelimit"
)

// RateLimit admits or rejects each request through limiter. Rejections answer
// 429 with a Retry-After header and the limiter's message.
func RateLimit(limiter *ratelimit.Limiter, trustForwardedFor bool, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Admit(c, limiter, trustForwardedFor, metrics) {
			c.Next()
		}
	}
}

// Admit counts the request against limiter. On rejection it writes the 429
// response, aborts the chain and returns false.
func Admit(c *gin.Context, limiter *ratelimit.Limiter, trustForwardedFor bool, metrics *observability.Metrics) bool {
	d := limiter.Allow(ClientKey(c.Request, trustForwardedFor))
	if d.Allowed {
		return true
	}

	metrics.RateLimited(string(d.Reason))
	c.Header("Retry-After", strconv.Itoa(humanize.Seconds(d.RetryAfter)))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"status":      false,
		"message":     d.Message,
		"customError": true,
	})
	return false
}

// ClientKey identifies the caller: the first X-Forwarded-For hop when trusted and
// present, otherwise the connection's remote IP.
func ClientKey(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
