package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/manash/moodboard/internal/history"
	"github.com/manash/moodboard/internal/metrics"
	"github.com/manash/moodboard/internal/provider"
	"github.com/manash/moodboard/pkg/models"
)

const (
	RequestIDKey    = "request_id"
	RequestIDHeader = "X-Request-ID"
)

// requestID assigns every request a server-generated ID. A client-supplied
// header is only logged.
func requestID(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		if clientID := c.GetHeader(RequestIDHeader); clientID != "" {
			log.WithFields(logrus.Fields{
				"request_id":        id,
				"client_request_id": clientID,
			}).Debug("client request ID replaced")
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func accessLog(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}
		if rid, ok := c.Get(RequestIDKey); ok {
			fields["request_id"] = rid
		}
		log.WithFields(fields).Info("request")
	}
}

func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		metrics.RequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

func maxBodySize(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// respondError writes {code, message, request_id} and aborts.
func respondError(c *gin.Context, status int, code, message string) {
	resp := gin.H{"code": code, "message": message}
	if rid := c.GetString(RequestIDKey); rid != "" {
		resp["request_id"] = rid
	}
	c.AbortWithStatusJSON(status, resp)
}

// respondBoardError maps board and backend failures onto HTTP statuses.
func respondBoardError(c *gin.Context, err error) {
	status, code := classify(err)
	respondError(c, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, history.ErrEntryNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrUnknownModel):
		return http.StatusBadRequest, "unknown_model"
	case models.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case provider.IsNetwork(err):
		return http.StatusGatewayTimeout, "backend_unreachable"
	case provider.IsRemote(err), provider.IsMalformed(err):
		return http.StatusBadGateway, "backend_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
