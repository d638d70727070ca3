package app

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

const metricsRealm = `Basic realm="timetable-metrics", charset="UTF-8"`

// metricsAuth guards /metrics with Basic Auth when a metrics password is
// configured. Without one the endpoint stays open.
func (a *Application) metricsAuth() gin.HandlerFunc {
	username, password := a.cfg.MetricsUsername, a.cfg.MetricsPassword
	return func(c *gin.Context) {
		if password == "" {
			c.Next()
			return
		}

		user, pass, ok := c.Request.BasicAuth()
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
		if ok && userMatch && passMatch {
			c.Next()
			return
		}

		if a.metrics != nil {
			a.metrics.RecordHTTPError("unauthorized", "metrics")
		}
		slog.WarnContext(c.Request.Context(), "metrics scrape rejected",
			"client_ip", c.ClientIP(),
			"has_credentials", ok)
		c.Header("WWW-Authenticate", metricsRealm)
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}
