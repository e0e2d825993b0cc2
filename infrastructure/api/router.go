// Package api is the HTTP gateway: health, chat discovery and creation,
// message history, and the WebSocket upgrade endpoint.
package api

import (
	"chat-relay/observability"
	"chat-relay/services"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthFunc reports the live state of the relay.
type HealthFunc func() observability.Stats

func NewRouter(log *slog.Logger, directory services.IChatDirectory, health HealthFunc, websocket gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	h := &Handler{log: log, directory: directory, health: health}
	router.GET("/health", h.Health)
	router.GET("/ws", websocket)

	chats := router.Group("/api/chats")
	chats.POST("", h.CreateChat)
	chats.GET("/:id", h.ListChats)
	chats.GET("/:id/messages", h.ListMessages)
	return router
}

// requestLogger logs every request once it completes.
// The WebSocket route logs when the connection ends.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
			"remote_addr", c.ClientIP(),
		}
		switch {
		case status >= 500:
			log.Error("request failed", attrs...)
		case status >= 400:
			log.Warn("request rejected", attrs...)
		default:
			log.Debug("request served", attrs...)
		}
	}
}
