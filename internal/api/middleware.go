package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// outcomeKey is the gin.Context key a handler sets to record a quorum
// operation's result ("ok" or "quorum_failed"), for Logger to surface
// alongside the usual request fields. Unset means no quorum outcome was
// recorded: the request never went through a quorum path
// (health/metrics/debug) or ended in an error other than a quorum failure.
const outcomeKey = "kv_outcome"

// setOutcome records a quorum operation's outcome on c for Logger to log.
// writeError/writeGetError record "quorum_failed" on a QUORUM_FAILED
// response, and the Put/Get/Delete handlers record "ok" on success.
func setOutcome(c *gin.Context, outcome string) {
	c.Set(outcomeKey, outcome)
}

// Logger is a Gin middleware that logs every request with method, path,
// client address, status code, latency, and — when set — the quorum
// outcome a handler recorded on the context.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		line := "[%s] %s %s | %d | %s"
		args := []interface{}{
			c.Request.Method,
			c.Request.URL.Path,
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(start),
		}
		if outcome, ok := c.Get(outcomeKey); ok {
			line += " | %s"
			args = append(args, outcome)
		}
		log.Printf(line, args...)
	}
}

// Recovery wraps Gin's default recovery but logs panics in a structured way
// so that a handler bug never takes the whole node down.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC recovered: %v", err)
				c.AbortWithStatusJSON(500, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
