// Package digest pushes each subscriber's classes for the day at the local
// time they picked.
package digest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	domerrors "github.com/garyellow/timetable-linebot-go/internal/errors"
	"github.com/garyellow/timetable-linebot-go/internal/schedule"
	"github.com/garyellow/timetable-linebot-go/internal/storage"
)

// Preference defaults.
const (
	DefaultTimezone  = "Asia/Shanghai"
	DefaultDailyTime = "07:00"
)

const clockLayout = "15:04"

// Store lists subscribers and records deliveries. storage.DB implements it.
type Store interface {
	ListSubscribed(ctx context.Context) ([]storage.Subscription, error)
	MarkDigestSent(ctx context.Context, userID, date string) error
}

// Pusher delivers a text to one user.
type Pusher interface {
	Push(ctx context.Context, userID, text string) error
}

// Recorder counts deliveries. metrics.Metrics implements it.
type Recorder interface {
	RecordDigest(status string)
}

// ApplyDefaults fills a blank zone or time and validates both.
func ApplyDefaults(sub *storage.Subscription) error {
	if strings.TrimSpace(sub.Timezone) == "" {
		sub.Timezone = DefaultTimezone
	}
	if strings.TrimSpace(sub.DailyTime) == "" {
		sub.DailyTime = DefaultDailyTime
	}
	if _, err := time.LoadLocation(sub.Timezone); err != nil {
		return domerrors.NewValidationError("timezone", fmt.Sprintf("unknown time zone %q", sub.Timezone))
	}
	if _, err := time.Parse(clockLayout, sub.DailyTime); err != nil || len(sub.DailyTime) != len(clockLayout) {
		return domerrors.NewValidationError("dailyTime", fmt.Sprintf("want HH:mm, got %q", sub.DailyTime))
	}
	return nil
}

// ShouldSend reports whether sub is due at now: the wall clock in the
// subscriber's zone reads its daily time and nothing was sent that local
// day. It also returns the local date the digest covers.
func ShouldSend(sub storage.Subscription, now time.Time) (time.Time, bool) {
	if !sub.Subscribed {
		return time.Time{}, false
	}
	loc := location(sub.Timezone)
	local := now.In(loc)
	daily := sub.DailyTime
	if daily == "" {
		daily = DefaultDailyTime
	}
	if local.Format(clockLayout) != daily {
		return time.Time{}, false
	}
	if sub.LastSentDate == local.Format(time.DateOnly) {
		return time.Time{}, false
	}
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), true
}

func location(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc, _ = time.LoadLocation(DefaultTimezone)
	}
	return loc
}

// Text renders the plain digest body.
func Text(date time.Time, entries []schedule.Entry) string {
	var b strings.Builder
	b.WriteString("日期：")
	b.WriteString(date.Format(time.DateOnly))
	b.WriteByte('\n')
	if len(entries) == 0 {
		b.WriteString("今日无课程。")
		return b.String()
	}
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "第%d-%d节：%s %s %s", e.SectionStart, e.SectionEnd(), e.CourseName, e.Classroom, e.Teacher)
	}
	return b.String()
}

var htmlTemplate = template.Must(template.New("digest").Parse(`<html><body>
<h3>{{.Date}} 课程</h3>
{{- if .Entries}}
<table border="1" cellspacing="0" cellpadding="4">
<thead><tr><th>节次</th><th>课程</th><th>教室</th><th>教师</th></tr></thead>
<tbody>
{{- range .Entries}}
<tr><td>{{.SectionStart}}-{{.SectionEnd}}</td><td>{{.CourseName}}</td><td>{{.Classroom}}</td><td>{{.Teacher}}</td></tr>
{{- end}}
</tbody>
</table>
{{- else}}
<p>今日无课程。</p>
{{- end}}
</body></html>`))

// HTML renders the digest as a table for mail clients.
func HTML(date time.Time, entries []schedule.Entry) (string, error) {
	var buf bytes.Buffer
	err := htmlTemplate.Execute(&buf, struct {
		Date    string
		Entries []schedule.Entry
	}{date.Format(time.DateOnly), entries})
	if err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

// Scheduler checks subscriptions on every tick and pushes due digests.
type Scheduler struct {
	store    Store
	query    schedule.Querier
	pusher   Pusher
	recorder Recorder
	interval time.Duration
	now      func() time.Time
}

// NewScheduler creates a scheduler ticking every interval (one minute when
// zero). recorder may be nil.
func NewScheduler(store Store, query schedule.Querier, pusher Pusher, recorder Recorder, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		store:    store,
		query:    query,
		pusher:   pusher,
		recorder: recorder,
		interval: interval,
		now:      time.Now,
	}
}

// Run ticks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	slog.InfoContext(ctx, "digest scheduler started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.ErrorContext(ctx, "digest tick failed", "error", err)
			}
		}
	}
}

// Tick sends every due digest once and returns how many were delivered.
// A failed push is not marked sent; it is only retried by a later tick
// within the same minute.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	subs, err := s.store.ListSubscribed(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}
	now := s.now()
	sent := 0
	for _, sub := range subs {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		date, due := ShouldSend(sub, now)
		if !due {
			continue
		}
		if err := s.send(ctx, sub.UserID, date); err != nil {
			s.record("error")
			slog.WarnContext(ctx, "digest push failed", "user_id", sub.UserID, "error", err)
			continue
		}
		s.record("sent")
		sent++
	}
	return sent, nil
}

func (s *Scheduler) send(ctx context.Context, userID string, date time.Time) error {
	entries, err := s.query.Day(ctx, userID, date)
	if err != nil {
		return fmt.Errorf("query day: %w", err)
	}
	if err := s.pusher.Push(ctx, userID, Text(date, entries)); err != nil {
		return err
	}
	if err := s.store.MarkDigestSent(ctx, userID, date.Format(time.DateOnly)); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

func (s *Scheduler) record(status string) {
	if s.recorder != nil {
		s.recorder.RecordDigest(status)
	}
}
