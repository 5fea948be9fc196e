package daemon

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// requestLogger logs every API call with the daemon instance. Calls that
// change guard state are logged at Info, reads at Debug.
func (s *Server) requestLogger() gin.HandlerFunc {
	log := logrus.WithField("instance", s.instance)

	return func(c *gin.Context) {
		// Handlers may rewrite the path.
		path := c.Request.URL.Path
		method := c.Request.Method
		start := time.Now()

		if path == "/events" {
			log.WithField("remote", c.Request.RemoteAddr).Debug("event stream opened")
		}

		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"method":  method,
			"path":    path,
			"status":  status,
			"latency": time.Since(start).Milliseconds(),
			"bytes":   max(c.Writer.Size(), 0),
		})

		switch {
		case len(c.Errors) > 0:
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("bad request")
		case method != http.MethodGet:
			entry.Info("guard state changed by request")
		default:
			entry.Debug("request served")
		}
	}
}
