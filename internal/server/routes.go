package server

import (
	"net/http"
	"time"

	"github.com/danmuck/vitalsgw/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Status) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).Round(time.Second).String(),
			"service": s.NodeID(),
			"kind":    s.Kind(),
			"version": Version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		if !s.provider.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	s.router.GET("/stats", auth.Middleware(s.guard), func(c *gin.Context) {
		c.JSON(http.StatusOK, s.provider.Status())
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
