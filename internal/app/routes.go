package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// readinessTimeout bounds the database checks behind /readyz.
const readinessTimeout = 5 * time.Second

func (a *Application) registerRoutes(router *gin.Engine) {
	router.GET("/livez", a.livenessCheck)
	router.HEAD("/livez", a.livenessCheck)
	router.GET("/readyz", a.readinessCheck)
	router.HEAD("/readyz", a.readinessCheck)

	if a.webhookHandler != nil {
		router.POST("/webhook", a.webhookHandler.Handle)
	}

	if a.cfg.MetricsEnabled {
		router.GET("/metrics",
			a.metricsAuth(),
			gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	}
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: database unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}

	imports, err := a.db.CountImportsByStatus(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to count imports for readiness")
		imports = map[string]int{}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"database": "connected",
		"imports":  imports,
		"features": a.features(),
	})
}

// features reports which optional components are running.
func (a *Application) features() map[string]bool {
	return map[string]bool{
		"line":        a.webhookHandler != nil,
		"api":         a.cfg != nil && a.cfg.JWTSecret != "",
		"recognition": a.recognizer != nil,
		"llm_answers": a.answerer != nil,
		"digest":      a.digest != nil,
		"backup":      a.backup != nil,
	}
}
