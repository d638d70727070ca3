// Package api serves the timetable over a JSON HTTP API. Every route needs
// a bearer token; replies use the {code, message, data} envelope.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/timetable-linebot-go/internal/config"
	"github.com/garyellow/timetable-linebot-go/internal/importer"
	"github.com/garyellow/timetable-linebot-go/internal/metrics"
	"github.com/garyellow/timetable-linebot-go/internal/qa"
	"github.com/garyellow/timetable-linebot-go/internal/schedule"
	"github.com/garyellow/timetable-linebot-go/internal/storage"
)

// Importer runs imports and the other schedule writes. importer.Service
// implements it.
type Importer interface {
	Import(ctx context.Context, req importer.Request) (*importer.Result, error)
	ImportText(ctx context.Context, req importer.TextRequest) (*importer.Result, error)
	Status(ctx context.Context, userID string) (bool, error)
	Clear(ctx context.Context, userID string) error
	UpdateSections(ctx context.Context, userID string, itemID int64, sectionStart, sectionCount int) (*storage.ScheduleItem, error)
}

// Exporter renders the current term. export.Service implements it.
type Exporter interface {
	ICS(ctx context.Context, userID string) ([]byte, string, error)
	XLSX(ctx context.Context, userID string) ([]byte, string, error)
}

// Asker answers questions relative to a base date. qa.Service implements it.
type Asker interface {
	AnswerAt(ctx context.Context, userID, question string, base time.Time) (*qa.Reply, error)
}

// SubscriptionStore reads and writes digest preferences.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, userID string) (*storage.Subscription, error)
	SaveSubscription(ctx context.Context, sub *storage.Subscription) error
}

// Limiter gates requests per user. ratelimit.KeyedLimiter implements it.
type Limiter interface {
	Allow(key string) bool
}

// Config holds the collaborators of a Handler. Auth, Query and Importer
// are required.
type Config struct {
	Auth          *Authenticator
	Query         schedule.Querier
	Importer      Importer
	Exporter      Exporter
	Asker         Asker
	Subscriptions SubscriptionStore
	UserLimiter   Limiter
	Metrics       *metrics.Metrics
	Location      *time.Location
	MaxImageBytes int64
	ImportTimeout time.Duration
}

// Handler serves the /api routes.
type Handler struct {
	auth          *Authenticator
	query         schedule.Querier
	importer      Importer
	exporter      Exporter
	asker         Asker
	subscriptions SubscriptionStore
	limiter       Limiter
	metrics       *metrics.Metrics
	loc           *time.Location
	maxImageBytes int64
	importTimeout time.Duration
	now           func() time.Time
}

// NewHandler creates an API handler.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		auth:          cfg.Auth,
		query:         cfg.Query,
		importer:      cfg.Importer,
		exporter:      cfg.Exporter,
		asker:         cfg.Asker,
		subscriptions: cfg.Subscriptions,
		limiter:       cfg.UserLimiter,
		metrics:       cfg.Metrics,
		loc:           cfg.Location,
		maxImageBytes: cfg.MaxImageBytes,
		importTimeout: cfg.ImportTimeout,
		now:           time.Now,
	}
	if h.loc == nil {
		h.loc = time.Local
	}
	if h.maxImageBytes <= 0 {
		h.maxImageBytes = 10 << 20
	}
	if h.importTimeout <= 0 {
		h.importTimeout = config.ImportTotal
	}
	return h
}

// Register mounts the API under /api on r.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/api", h.auth.Middleware(), h.rateLimit())

	s := g.Group("/schedule")
	s.GET("/today", h.today)
	s.GET("/date", h.byDate)
	s.GET("/week", h.byWeek)
	s.GET("/import/status", h.importStatus)
	s.POST("/upload-image", h.uploadImage)
	s.POST("/import-text", h.importText)
	s.DELETE("/clear", h.clear)
	s.POST("/clear", h.clear)
	s.PUT("/items/:id/sections", h.updateSections)
	s.POST("/items/:id/sections", h.updateSections)
	s.GET("/export.ics", h.exportICS)
	s.GET("/export.xlsx", h.exportXLSX)
	s.POST("/ask", h.ask)

	g.POST("/ask", h.ask)

	sub := g.Group("/subscription")
	sub.GET("", h.getSubscription)
	sub.PUT("", h.putSubscription)
	sub.GET("/preferences", h.getSubscription)
	sub.POST("/subscribe", h.subscribe)
	sub.POST("/unsubscribe", h.unsubscribe)
}

func (h *Handler) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter == nil {
			c.Next()
			return
		}
		userID := c.GetString(userIDKey)
		if userID != "" && !h.limiter.Allow(userID) {
			if h.metrics != nil {
				h.metrics.RecordRateLimiterDrop("api_user")
			}
			c.Header("Retry-After", "10")
			AbortFail(c, http.StatusTooManyRequests, "请求过于频繁，请稍后再试")
			return
		}
		c.Next()
	}
}

// currentDate returns now in the handler's zone.
func (h *Handler) currentDate() time.Time {
	return h.now().In(h.loc)
}

// parseDate reads a yyyy-MM-dd value as a date in the handler's zone.
func (h *Handler) parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, h.loc)
}
