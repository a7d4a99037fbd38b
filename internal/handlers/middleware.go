package handlers

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID reuses the caller's X-Request-ID or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)
		c.Set(requestIDKey, requestID)
		c.Next()
	}
}

// Logging prints a START and END line per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetString(requestIDKey)
		log.Printf("START %s %s request_id=%s", c.Request.Method, c.Request.URL.Path, requestID)
		c.Next()
		log.Printf("END %s %s request_id=%s status=%d duration=%s",
			c.Request.Method, c.Request.URL.Path, requestID, c.Writer.Status(), time.Since(start))
	}
}
