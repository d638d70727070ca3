package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/timetable-linebot-go/internal/digest"
	domerrors "github.com/garyellow/timetable-linebot-go/internal/errors"
	"github.com/garyellow/timetable-linebot-go/internal/storage"
)

// subscriptionRequest updates a preference. Absent fields keep their
// stored values.
type subscriptionRequest struct {
	Subscribed *bool   `json:"subscribed"`
	Timezone   *string `json:"timezone"`
	DailyTime  *string `json:"dailyTime"`
}

type subscriptionResponse struct {
	Subscribed   bool   `json:"subscribed"`
	Timezone     string `json:"timezone"`
	DailyTime    string `json:"dailyTime"`
	LastSentDate string `json:"lastSentDate,omitempty"`
}

func toSubscriptionResponse(sub *storage.Subscription) subscriptionResponse {
	return subscriptionResponse{
		Subscribed:   sub.Subscribed,
		Timezone:     sub.Timezone,
		DailyTime:    sub.DailyTime,
		LastSentDate: sub.LastSentDate,
	}
}

// GET /api/subscription
func (h *Handler) getSubscription(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	sub, ok := h.loadSubscription(c, userID)
	if !ok {
		return
	}
	OK(c, toSubscriptionResponse(sub))
}

// PUT /api/subscription
func (h *Handler) putSubscription(c *gin.Context) {
	h.saveSubscription(c, nil)
}

// POST /api/subscription/subscribe
func (h *Handler) subscribe(c *gin.Context) {
	on := true
	h.saveSubscription(c, &on)
}

// POST /api/subscription/unsubscribe
func (h *Handler) unsubscribe(c *gin.Context) {
	off := false
	h.saveSubscription(c, &off)
}

// saveSubscription merges the request body onto the stored preference.
// force, when set, overrides the subscribed flag.
func (h *Handler) saveSubscription(c *gin.Context, force *bool) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	var req subscriptionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Fail(c, http.StatusBadRequest, "请求体格式无效")
			return
		}
	}

	sub, ok := h.loadSubscription(c, userID)
	if !ok {
		return
	}
	if req.Subscribed != nil {
		sub.Subscribed = *req.Subscribed
	}
	if force != nil {
		sub.Subscribed = *force
	}
	if req.Timezone != nil {
		sub.Timezone = strings.TrimSpace(*req.Timezone)
	}
	if req.DailyTime != nil {
		sub.DailyTime = strings.TrimSpace(*req.DailyTime)
	}
	if err := digest.ApplyDefaults(sub); err != nil {
		h.writeError(c, "subscription",
			domerrors.NewWrapper("subscription", "save").Wrap(err, "时区或推送时间无效，时间格式应为 HH:mm"))
		return
	}
	if err := h.subscriptions.SaveSubscription(c.Request.Context(), sub); err != nil {
		h.writeError(c, "subscription",
			domerrors.NewWrapper("subscription", "save").Wrap(err, "保存订阅设置失败，请稍后重试"))
		return
	}
	OK(c, toSubscriptionResponse(sub))
}

// loadSubscription returns the stored preference or a default one.
func (h *Handler) loadSubscription(c *gin.Context, userID string) (*storage.Subscription, bool) {
	if h.subscriptions == nil {
		Fail(c, http.StatusNotFound, "每日推送暂未开放")
		return nil, false
	}
	sub, err := h.subscriptions.GetSubscription(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, "subscription",
			domerrors.NewWrapper("subscription", "get").Wrap(err, "读取订阅设置失败，请稍后重试"))
		return nil, false
	}
	if sub == nil {
		sub = &storage.Subscription{UserID: userID}
	}
	if sub.Timezone == "" {
		sub.Timezone = digest.DefaultTimezone
	}
	if sub.DailyTime == "" {
		sub.DailyTime = digest.DefaultDailyTime
	}
	return sub, true
}
