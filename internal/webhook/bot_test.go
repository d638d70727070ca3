package webhook

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/garyellow/timetable-linebot-go/internal/errors"
	"github.com/garyellow/timetable-linebot-go/internal/importer"
	"github.com/garyellow/timetable-linebot-go/internal/qa"
	"github.com/garyellow/timetable-linebot-go/internal/schedule"
	"github.com/garyellow/timetable-linebot-go/internal/storage"
)

// Wednesday 2026-09-09 10:00 UTC.
var fixedNow = time.Date(2026, 9, 9, 10, 0, 0, 0, time.UTC)

type fakeQuerier struct{}

func (fakeQuerier) Day(_ context.Context, _ string, _ time.Time) ([]schedule.Entry, error) {
	return []schedule.Entry{{CourseName: "高等数学", SectionStart: 1, SectionCount: 2, Classroom: "教一楼101"}}, nil
}

func (fakeQuerier) Week(context.Context, string, *time.Time, *int) ([]schedule.Entry, error) {
	return []schedule.Entry{
		{CourseName: "高等数学", Week: 1, DayOfWeek: 1, SectionStart: 1, SectionCount: 2, Classroom: "教一楼101"},
		{CourseName: "线性代数", Week: 1, DayOfWeek: 1, SectionStart: 3, SectionCount: 2},
		{CourseName: "大学英语", Week: 1, DayOfWeek: 3, SectionStart: 5, SectionCount: 2, Classroom: "外语楼202"},
	}, nil
}

type fakeAsker struct{ questions []string }

func (a *fakeAsker) Answer(_ context.Context, _ string, question string) (*qa.Reply, error) {
	a.questions = append(a.questions, question)
	return &qa.Reply{Text: "答：" + question}, nil
}

type fakeImporter struct {
	mu       sync.Mutex
	requests []importer.Request
	clearErr error
}

func (f *fakeImporter) Import(_ context.Context, req importer.Request) (*importer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return &importer.Result{CourseCount: 3, ItemCount: 5, Warnings: []string{"segment skipped"}}, nil
}

func (f *fakeImporter) Clear(context.Context, string) error { return f.clearErr }

type memTerms struct {
	term *storage.Term
}

func (m *memTerms) LatestTerm(context.Context, string) (*storage.Term, error) { return m.term, nil }

func (m *memTerms) EnsureTerm(_ context.Context, userID, name string, start time.Time, weeks *int) (*storage.Term, error) {
	m.term = &storage.Term{ID: 1, UserID: userID, Name: name, StartDate: start, TotalWeeks: weeks}
	return m.term, nil
}

type memSubs struct {
	subs map[string]*storage.Subscription
}

func (m *memSubs) GetSubscription(_ context.Context, userID string) (*storage.Subscription, error) {
	if s, ok := m.subs[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *memSubs) SaveSubscription(_ context.Context, sub *storage.Subscription) error {
	cp := *sub
	m.subs[sub.UserID] = &cp
	return nil
}

type fakeContent struct{}

func (fakeContent) Content(context.Context, string) ([]byte, string, error) {
	return []byte("\x89PNG"), "image/png", nil
}

type invalidations struct {
	users []string
}

func (i *invalidations) Invalidate(userID string) { i.users = append(i.users, userID) }

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

type fixture struct {
	bot      *Bot
	asker    *fakeAsker
	importer *fakeImporter
	terms    *memTerms
	subs     *memSubs
	cache    *invalidations
}

func newFixture() *fixture {
	f := &fixture{
		asker:    &fakeAsker{},
		importer: &fakeImporter{},
		terms:    &memTerms{},
		subs:     &memSubs{subs: map[string]*storage.Subscription{}},
		cache:    &invalidations{},
	}
	f.bot = NewBot(BotConfig{
		Importer:      f.importer,
		Asker:         f.asker,
		Query:         fakeQuerier{},
		Terms:         f.terms,
		Subscriptions: f.subs,
		Cache:         f.cache,
		Content:       fakeContent{},
		Location:      time.UTC,
	})
	f.bot.now = func() time.Time { return fixedNow }
	return f
}

func textEvent(text string) webhook.MessageEvent {
	return webhook.MessageEvent{
		Source:     webhook.UserSource{UserId: "U1"},
		ReplyToken: "reply-token-0001",
		Message:    webhook.TextMessageContent{Id: "m1", Text: text},
	}
}

func respond(t *testing.T, b *Bot, event webhook.EventInterface) []string {
	t.Helper()
	_, texts := b.Respond(context.Background(), event)
	return texts
}

func TestRespond_Follow(t *testing.T) {
	t.Parallel()
	f := newFixture()
	kind, texts := f.bot.Respond(context.Background(), webhook.FollowEvent{ReplyToken: "reply-token-0001"})
	assert.Equal(t, "follow", kind)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "设置学期")
}

func TestRespond_Queries(t *testing.T) {
	t.Parallel()
	f := newFixture()

	today := respond(t, f.bot, textEvent("今天"))
	assert.Equal(t, []string{"2026-09-09 的课程安排：\n第1-2节 高等数学 教一楼101"}, today)

	week := respond(t, f.bot, textEvent(" 本周 "))
	require.Len(t, week, 1)
	assert.Equal(t, "第1周课程安排：\n周一\n  第1-2节 高等数学 教一楼101\n  第3-4节 线性代数\n周三\n  第5-6节 大学英语 外语楼202", week[0])

	help := respond(t, f.bot, textEvent("帮助"))
	assert.Contains(t, help[0], "取消订阅")

	other := respond(t, f.bot, textEvent("明天下午有什么课"))
	assert.Equal(t, []string{"答：明天下午有什么课"}, other)
}

func TestRespond_Subscription(t *testing.T) {
	t.Parallel()
	f := newFixture()

	texts := respond(t, f.bot, textEvent("订阅"))
	assert.Contains(t, texts[0], "07:00")
	sub := f.subs.subs["U1"]
	require.NotNil(t, sub)
	assert.True(t, sub.Subscribed)
	assert.Equal(t, "Asia/Shanghai", sub.Timezone)

	texts = respond(t, f.bot, textEvent("订阅 08:30"))
	assert.Contains(t, texts[0], "08:30")
	assert.Equal(t, "08:30", f.subs.subs["U1"].DailyTime)

	texts = respond(t, f.bot, textEvent("订阅 8点"))
	assert.Contains(t, texts[0], "HH:mm")
	assert.Equal(t, "08:30", f.subs.subs["U1"].DailyTime)

	texts = respond(t, f.bot, textEvent("取消订阅"))
	assert.Equal(t, []string{"已取消每日课表推送。"}, texts)
	assert.False(t, f.subs.subs["U1"].Subscribed)

	texts = respond(t, f.bot, textEvent("取消订阅"))
	assert.Equal(t, []string{"你还没有订阅每日推送。"}, texts)
}

func TestRespond_SetTerm(t *testing.T) {
	t.Parallel()
	f := newFixture()

	texts := respond(t, f.bot, textEvent("设置学期 2026秋 2026-09-07 18"))
	assert.Contains(t, texts[0], "学期已设置：2026秋，开学日期 2026-09-07，共 18 周")
	require.NotNil(t, f.terms.term)
	assert.Equal(t, 18, *f.terms.term.TotalWeeks)
	assert.Equal(t, []string{"U1"}, f.cache.users, "cached day and week answers are dropped")

	tests := []struct {
		text string
		want string
	}{
		{"设置学期 2026秋", "格式："},
		{"设置学期 2026秋 2026/09/07", "YYYY-MM-DD"},
		{"设置学期 2026秋 2026-09-07 0", "1-60"},
		{"设置学期 2026秋 2026-09-07 十八", "1-60"},
	}
	for _, tt := range tests {
		got := respond(t, f.bot, textEvent(tt.text))
		assert.Contains(t, got[0], tt.want, tt.text)
	}
	assert.Len(t, f.cache.users, 1, "rejected input leaves the cache alone")
}

func TestRespond_ImageUsesTermSettings(t *testing.T) {
	t.Parallel()
	f := newFixture()
	image := webhook.MessageEvent{
		Source:     webhook.UserSource{UserId: "U1"},
		ReplyToken: "reply-token-0001",
		Message:    webhook.ImageMessageContent{Id: "img-1"},
	}

	texts := respond(t, f.bot, image)
	require.Len(t, f.importer.requests, 1)
	req := f.importer.requests[0]
	assert.Equal(t, DefaultTermName, req.TermName)
	assert.Equal(t, "2026-09-07", req.StartDate.Format(time.DateOnly))
	assert.Nil(t, req.TotalWeeks)
	assert.Equal(t, "image/png", req.MIMEType)
	assert.Contains(t, texts[0], "共 3 门课程、5 条排课")
	assert.Contains(t, texts[0], "1 处内容未能识别")

	respond(t, f.bot, textEvent("设置学期 2027春 2027-02-22 16"))
	respond(t, f.bot, image)
	require.Len(t, f.importer.requests, 2)
	req = f.importer.requests[1]
	assert.Equal(t, "2027春", req.TermName)
	assert.Equal(t, "2027-02-22", req.StartDate.Format(time.DateOnly))
	require.NotNil(t, req.TotalWeeks)
	assert.Equal(t, 16, *req.TotalWeeks)
}

func TestRespond_ClearBusy(t *testing.T) {
	t.Parallel()
	f := newFixture()
	assert.Equal(t, []string{"课表已清空。"}, respond(t, f.bot, textEvent("清空课表")))

	f.importer.clearErr = domerrors.NewWrapper("importer", "clear").
		Wrap(domerrors.ErrImportBusy, "当前账号正在导入课表，请稍后再试")
	assert.Equal(t, []string{"当前账号正在导入课表，请稍后再试"}, respond(t, f.bot, textEvent("清空课表")))
}

func TestRespond_Groups(t *testing.T) {
	t.Parallel()
	f := newFixture()

	plain := webhook.MessageEvent{
		Source:  webhook.GroupSource{GroupId: "G1", UserId: "U1"},
		Message: webhook.TextMessageContent{Text: "今天"},
	}
	assert.Empty(t, respond(t, f.bot, plain))
	assert.False(t, f.bot.Responds(plain))

	mentioned := webhook.MessageEvent{
		Source: webhook.GroupSource{GroupId: "G1", UserId: "U1"},
		Message: webhook.TextMessageContent{
			Text: "@课表助手 明天有课吗",
			Mention: &webhook.Mention{Mentionees: []webhook.MentioneeInterface{
				webhook.UserMentionee{Index: 0, Length: 5, IsSelf: true},
			}},
		},
	}
	assert.True(t, f.bot.Responds(mentioned))
	assert.Equal(t, []string{"答：明天有课吗"}, respond(t, f.bot, mentioned))

	groupImage := webhook.MessageEvent{
		Source:  webhook.GroupSource{GroupId: "G1", UserId: "U1"},
		Message: webhook.ImageMessageContent{Id: "img"},
	}
	assert.Empty(t, respond(t, f.bot, groupImage))
	assert.Empty(t, f.importer.requests)
}

func TestRespond_RateLimited(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.bot.cfg.UserLimiter = denyAll{}
	assert.Equal(t, []string{"操作太频繁，请稍后再试。"}, respond(t, f.bot, textEvent("今天")))
	assert.Empty(t, f.asker.questions)
}

func TestRespond_Unsupported(t *testing.T) {
	t.Parallel()
	f := newFixture()
	kind, texts := f.bot.Respond(context.Background(), webhook.UnfollowEvent{})
	assert.Empty(t, kind)
	assert.Empty(t, texts)

	sticker := webhook.MessageEvent{
		Source:  webhook.UserSource{UserId: "U1"},
		Message: webhook.StickerMessageContent{PackageId: "1", StickerId: "1"},
	}
	assert.Empty(t, respond(t, f.bot, sticker))
}

func TestFormatWeek_Empty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "本周没有安排课程。", FormatWeek(nil))
}

func TestFailure_FallbackMessage(t *testing.T) {
	t.Parallel()
	got := failure(context.Background(), "", errors.New("boom"))
	assert.True(t, strings.HasPrefix(got, "系统暂时无法处理"))
}
