package status

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// requestLevel picks the log level for a finished request. Scrapes and API
// polls are frequent, so successful ones stay at debug.
func requestLevel(c *gin.Context) logrus.Level {
	switch code := c.Writer.Status(); {
	case len(c.Errors) > 0 || code >= http.StatusInternalServerError:
		return logrus.ErrorLevel
	case code >= http.StatusBadRequest:
		return logrus.WarnLevel
	default:
		return logrus.DebugLevel
	}
}

// ginLogger logs every request through logrus, keyed by the matched route.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		fields := logrus.Fields{
			"route":      route,
			"uri":        c.Request.URL.RequestURI(),
			"method":     c.Request.Method,
			"status":     c.Writer.Status(),
			"latency_us": time.Since(start).Microseconds(),
			"bytes":      max(c.Writer.Size(), 0),
			"client_ip":  c.ClientIP(),
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			fields[logrus.ErrorKey] = errs.String()
		}

		logger.WithFields(fields).Log(requestLevel(c), "status request")
	}
}
