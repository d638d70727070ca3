// Package webhook receives LINE webhook events and answers them with the
// timetable services: screenshots are imported, short commands query or
// change the user's timetable and anything else is treated as a question.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/garyellow/timetable-linebot-go/internal/config"
	"github.com/garyellow/timetable-linebot-go/internal/ctxutil"
	"github.com/garyellow/timetable-linebot-go/internal/lineutil"
	"github.com/garyellow/timetable-linebot-go/internal/logger"
	"github.com/garyellow/timetable-linebot-go/internal/metrics"
	"github.com/garyellow/timetable-linebot-go/internal/ratelimit"
)

const (
	// minReplyTokenLength rejects obviously malformed tokens.
	minReplyTokenLength = 10
	// maxEventsPerWebhook caps one delivery batch.
	maxEventsPerWebhook = 100
)

// Handler handles LINE webhook events
type Handler struct {
	channelSecret string
	client        *messaging_api.MessagingApiAPI
	metrics       *metrics.Metrics
	logger        *logger.Logger
	bot           *Bot
	replyLimiter  *ratelimit.Bucket // LINE API calls across all users
	timeout       time.Duration
	wg            sync.WaitGroup
}

// HandlerConfig holds configuration for creating a new Handler
type HandlerConfig struct {
	ChannelSecret string
	ChannelToken  string
	Bot           *Bot
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
	// GlobalRateRPS bounds reply calls per second (default 100).
	GlobalRateRPS float64
	// Timeout bounds the processing of one event (default 60s).
	Timeout time.Duration
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Bot == nil {
		return nil, errors.New("webhook: bot is required")
	}
	client, err := messaging_api.NewMessagingApiAPI(cfg.ChannelToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}

	rps := cfg.GlobalRateRPS
	if rps <= 0 {
		rps = 100
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.WebhookProcessing
	}
	log := cfg.Logger
	if log == nil {
		log = logger.New("info")
	}

	return &Handler{
		channelSecret: cfg.ChannelSecret,
		client:        client,
		metrics:       cfg.Metrics,
		logger:        log.WithModule("webhook"),
		bot:           cfg.Bot,
		replyLimiter:  ratelimit.NewBucket(rps, rps),
		timeout:       timeout,
	}, nil
}

// Handle is the Gin handler for the webhook endpoint
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("Invalid webhook signature")
			c.Status(http.StatusBadRequest)
		} else {
			h.logger.WithError(err).Error("Failed to parse webhook request")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	// LINE expects a fast acknowledgement; events are processed afterwards.
	c.Status(http.StatusOK)

	if len(cb.Events) == 0 {
		return
	}
	if len(cb.Events) > maxEventsPerWebhook {
		h.logger.WithField("event_count", len(cb.Events)).Warn("Too many events in webhook batch; truncating")
		cb.Events = cb.Events[:maxEventsPerWebhook]
	}

	events := make([]webhook.EventInterface, len(cb.Events))
	copy(events, cb.Events)

	h.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.WithField("panic", r).Error("Panic in async event processing")
			}
		}()
		for _, event := range events {
			h.processEvent(context.Background(), event)
		}
	})
}

// processEvent handles a single webhook event asynchronously
func (h *Handler) processEvent(ctx context.Context, event webhook.EventInterface) {
	start := time.Now()

	eventID, isRedelivery := extractEventMeta(event)
	if eventID != "" {
		ctx = ctxutil.WithRequestID(ctx, eventID)
	}
	ctx = ctxutil.WithChannel(ctx, "line")
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	log := h.logger
	if eventID != "" {
		log = log.WithRequestID(eventID)
	}
	if isRedelivery {
		log = log.WithField("is_redelivery", true)
	}

	if h.bot.Responds(event) {
		if err := h.showLoadingAnimation(event); err != nil {
			log.WithError(err).Debug("Failed to show loading animation")
		}
	}

	eventType, texts := h.bot.Respond(ctx, event)
	if eventType == "" {
		log.WithField("event_type", fmt.Sprintf("%T", event)).Debug("Unsupported event type")
		return
	}
	status := "success"
	if len(texts) == 0 {
		status = "ignored"
	}
	if h.metrics != nil {
		h.metrics.RecordWebhook(eventType, status, time.Since(start).Seconds())
	}

	if len(texts) > 0 {
		if err := h.reply(ctx, event, texts); err != nil {
			log.WithError(err).WithField("event_type", eventType).Warn("Failed to send reply")
			if h.metrics != nil {
				h.metrics.RecordWebhook(eventType, "reply_error", time.Since(start).Seconds())
			}
		}
	}

	log.WithField("event_type", eventType).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Event processed")
}

func (h *Handler) reply(ctx context.Context, event webhook.EventInterface, texts []string) error {
	token := replyToken(event)
	if len(token) < minReplyTokenLength {
		return nil
	}
	if len(texts) > lineutil.MaxMessagesPerReply {
		texts = texts[:lineutil.MaxMessagesPerReply]
	}

	messages := make([]messaging_api.MessageInterface, len(texts))
	for i, text := range texts {
		msg := lineutil.NewTextMessage(text)
		if i == len(texts)-1 {
			msg.QuickReply = lineutil.NewQuickReply(lineutil.TimetableQuickReply())
		}
		messages[i] = msg
	}

	if !h.replyLimiter.Allow() {
		if h.metrics != nil {
			h.metrics.RecordRateLimiterDrop("global")
		}
		if err := h.replyLimiter.Wait(ctx); err != nil {
			return err
		}
	}

	_, err := h.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: token,
		Messages:   messages,
	})
	if err != nil && strings.Contains(err.Error(), "Invalid reply token") {
		return nil
	}
	return err
}

// showLoadingAnimation shows the loading indicator in one-to-one chats.
func (h *Handler) showLoadingAnimation(event webhook.EventInterface) error {
	chatID := userChatID(event)
	if chatID == "" {
		return nil
	}
	// LINE API: 5-60 seconds, multiple of 5.
	_, err := h.client.ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chatID,
		LoadingSeconds: 60,
	})
	return err
}

func extractEventMeta(event webhook.EventInterface) (string, bool) {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.WebhookEventId, redelivered(e.DeliveryContext)
	case webhook.FollowEvent:
		return e.WebhookEventId, redelivered(e.DeliveryContext)
	case webhook.PostbackEvent:
		return e.WebhookEventId, redelivered(e.DeliveryContext)
	default:
		return "", false
	}
}

func redelivered(dc *webhook.DeliveryContext) bool {
	return dc != nil && dc.IsRedelivery
}

func replyToken(event webhook.EventInterface) string {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.ReplyToken
	case webhook.FollowEvent:
		return e.ReplyToken
	case webhook.PostbackEvent:
		return e.ReplyToken
	default:
		return ""
	}
}

func userChatID(event webhook.EventInterface) string {
	var source webhook.SourceInterface
	switch e := event.(type) {
	case webhook.MessageEvent:
		source = e.Source
	case webhook.FollowEvent:
		source = e.Source
	}
	if s, ok := source.(webhook.UserSource); ok {
		return s.UserId
	}
	return ""
}

// Shutdown waits for all async event processing to complete.
// It returns an error if the context is canceled before completion.
func (h *Handler) Shutdown(ctx context.Context) error {
	c := make(chan struct{})
	go func() {
		defer close(c)
		h.wg.Wait()
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
