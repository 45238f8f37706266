package middleware

import (
	"time"

	"zone-detection-console/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CORS добавляет заголовки CORS к ответам
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		// Обработка preflight запросов
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// Logger логирует каждый запрос
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Log().Error("HTTP запрос", fields...)
		case status >= 400:
			logger.Log().Warn("HTTP запрос", fields...)
		default:
			logger.Log().Debug("HTTP запрос", fields...)
		}
	}
}

// Recovery восстанавливает приложение после паники
func Recovery() gin.HandlerFunc {
	return gin.Recovery()
}
