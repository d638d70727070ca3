package webhook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/garyellow/timetable-linebot-go/internal/ctxutil"
	"github.com/garyellow/timetable-linebot-go/internal/digest"
	domerrors "github.com/garyellow/timetable-linebot-go/internal/errors"
	"github.com/garyellow/timetable-linebot-go/internal/importer"
	"github.com/garyellow/timetable-linebot-go/internal/qa"
	"github.com/garyellow/timetable-linebot-go/internal/schedule"
	"github.com/garyellow/timetable-linebot-go/internal/storage"
)

// DefaultTermName is used for screenshots sent before any 设置学期.
const DefaultTermName = "默认学期"

const welcomeText = "欢迎使用课表助手！\n\n" +
	"1. 先发送「设置学期 学期名称 开学日期 周数」，例如：设置学期 2026秋 2026-09-07 18\n" +
	"2. 再发送课表截图，我会识别并导入课表\n" +
	"3. 之后可以发送「今天」「本周」，或直接提问，例如：明天下午有什么课"

const helpText = "可用指令：\n" +
	"今天：查看今天的课程\n" +
	"本周：查看本周的课程\n" +
	"订阅 [HH:mm]：每天定时推送当天课程\n" +
	"取消订阅：停止每日推送\n" +
	"清空课表：删除已导入的课表\n" +
	"设置学期 名称 YYYY-MM-DD [周数]：设置学期信息\n" +
	"发送课表截图：导入课表\n" +
	"其他文字：按问题回答，例如「下周三上午有课吗」"

var weekdayNames = [...]string{"", "周一", "周二", "周三", "周四", "周五", "周六", "周日"}

// Importer imports screenshots and clears timetables. importer.Service
// implements it.
type Importer interface {
	Import(ctx context.Context, req importer.Request) (*importer.Result, error)
	Clear(ctx context.Context, userID string) error
}

// Asker answers free-form questions. qa.Service implements it.
type Asker interface {
	Answer(ctx context.Context, userID, question string) (*qa.Reply, error)
}

// TermStore keeps the per-user term settings used for screenshot imports.
type TermStore interface {
	LatestTerm(ctx context.Context, userID string) (*storage.Term, error)
	EnsureTerm(ctx context.Context, userID, name string, startDate time.Time, totalWeeks *int) (*storage.Term, error)
}

// SubscriptionStore reads and writes digest preferences.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, userID string) (*storage.Subscription, error)
	SaveSubscription(ctx context.Context, sub *storage.Subscription) error
}

// ContentFetcher downloads the binary content of a message.
type ContentFetcher interface {
	Content(ctx context.Context, messageID string) ([]byte, string, error)
}

// Invalidator drops cached query results of a user. schedule.CachedEngine
// implements it.
type Invalidator interface {
	Invalidate(userID string)
}

// Limiter gates events per user. ratelimit.KeyedLimiter implements it.
type Limiter interface {
	Allow(key string) bool
}

// BotConfig wires the services a Bot talks to. Query and Asker are required.
type BotConfig struct {
	Importer      Importer
	Asker         Asker
	Query         schedule.Querier
	Terms         TermStore
	Subscriptions SubscriptionStore
	Cache         Invalidator
	Content       ContentFetcher
	UserLimiter   Limiter
	Location      *time.Location
}

// Bot turns webhook events into reply texts. It holds no LINE client so it
// can be exercised without the network.
type Bot struct {
	cfg BotConfig
	now func() time.Time
}

// NewBot creates a Bot.
func NewBot(cfg BotConfig) *Bot {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Bot{cfg: cfg, now: time.Now}
}

// Responds reports whether event gets a reply, so the loading animation is
// only shown when one follows.
func (b *Bot) Responds(event webhook.EventInterface) bool {
	switch e := event.(type) {
	case webhook.FollowEvent:
		return true
	case webhook.MessageEvent:
		_, ok := b.messageInput(e)
		return ok
	default:
		return false
	}
}

// Respond handles one event and returns its type label and reply texts.
// An empty label means the event type is not handled.
func (b *Bot) Respond(ctx context.Context, event webhook.EventInterface) (string, []string) {
	switch e := event.(type) {
	case webhook.FollowEvent:
		return "follow", []string{welcomeText}
	case webhook.MessageEvent:
		userID := sourceUserID(e.Source)
		if userID == "" {
			return "message", nil
		}
		ctx = ctxutil.WithUserID(ctx, userID)
		in, ok := b.messageInput(e)
		if !ok {
			return "message", nil
		}
		if b.cfg.UserLimiter != nil && !b.cfg.UserLimiter.Allow(userID) {
			return "message", []string{"操作太频繁，请稍后再试。"}
		}
		if in.imageID != "" {
			return "image", []string{b.importImage(ctx, userID, in.imageID)}
		}
		return "text", []string{b.command(ctx, userID, in.text)}
	default:
		return "", nil
	}
}

type input struct {
	text    string
	imageID string
}

// messageInput extracts what the bot acts on. In groups and rooms only
// text that mentions the bot is handled.
func (b *Bot) messageInput(e webhook.MessageEvent) (input, bool) {
	_, direct := e.Source.(webhook.UserSource)
	switch m := e.Message.(type) {
	case webhook.TextMessageContent:
		if direct {
			text := strings.TrimSpace(m.Text)
			return input{text: text}, text != ""
		}
		if !isBotMentioned(m) {
			return input{}, false
		}
		text := removeBotMentions(m.Text, m.Mention)
		return input{text: text}, text != ""
	case webhook.ImageMessageContent:
		if !direct {
			return input{}, false
		}
		return input{imageID: m.Id}, true
	default:
		return input{}, false
	}
}

func (b *Bot) command(ctx context.Context, userID, text string) string {
	fields := strings.Fields(text)
	switch {
	case text == "今天" || text == "今日课表":
		return b.today(ctx, userID)
	case text == "本周" || text == "本周课表":
		return b.thisWeek(ctx, userID)
	case fields[0] == "订阅":
		return b.subscribe(ctx, userID, fields[1:])
	case text == "取消订阅":
		return b.unsubscribe(ctx, userID)
	case text == "清空课表":
		return b.clear(ctx, userID)
	case fields[0] == "设置学期":
		return b.setTerm(ctx, userID, fields[1:])
	case text == "帮助" || text == "使用说明" || strings.EqualFold(text, "help"):
		return helpText
	default:
		return b.ask(ctx, userID, text)
	}
}

func (b *Bot) today(ctx context.Context, userID string) string {
	now := b.now().In(b.cfg.Location)
	entries, err := b.cfg.Query.Day(ctx, userID, now)
	if err != nil {
		return failure(ctx, "查询课表失败，请稍后重试", err)
	}
	return qa.DeterministicAnswer(now, entries)
}

func (b *Bot) thisWeek(ctx context.Context, userID string) string {
	now := b.now().In(b.cfg.Location)
	entries, err := b.cfg.Query.Week(ctx, userID, &now, nil)
	if err != nil {
		return failure(ctx, "查询课表失败，请稍后重试", err)
	}
	return FormatWeek(entries)
}

// FormatWeek lists a week's classes grouped by weekday.
func FormatWeek(entries []schedule.Entry) string {
	if len(entries) == 0 {
		return "本周没有安排课程。"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "第%d周课程安排：", entries[0].Week)
	day := 0
	for _, e := range entries {
		if e.DayOfWeek != day {
			day = e.DayOfWeek
			sb.WriteString("\n")
			if day >= 1 && day <= 7 {
				sb.WriteString(weekdayNames[day])
			}
		}
		fmt.Fprintf(&sb, "\n  第%d-%d节 %s", e.SectionStart, e.SectionEnd(), e.CourseName)
		if e.Classroom != "" {
			sb.WriteString(" ")
			sb.WriteString(e.Classroom)
		}
	}
	return sb.String()
}

func (b *Bot) subscribe(ctx context.Context, userID string, args []string) string {
	if b.cfg.Subscriptions == nil {
		return "每日推送暂未开放。"
	}
	sub, err := b.cfg.Subscriptions.GetSubscription(ctx, userID)
	if err != nil {
		return failure(ctx, "读取订阅设置失败，请稍后重试", err)
	}
	if sub == nil {
		sub = &storage.Subscription{UserID: userID}
	}
	sub.Subscribed = true
	if len(args) > 0 {
		sub.DailyTime = args[0]
	}
	if err := digest.ApplyDefaults(sub); err != nil {
		return "时间格式应为 HH:mm，例如：订阅 07:30"
	}
	if err := b.cfg.Subscriptions.SaveSubscription(ctx, sub); err != nil {
		return failure(ctx, "保存订阅设置失败，请稍后重试", err)
	}
	return fmt.Sprintf("已订阅每日课表推送，将在每天 %s（%s）发送当天课程。", sub.DailyTime, sub.Timezone)
}

func (b *Bot) unsubscribe(ctx context.Context, userID string) string {
	if b.cfg.Subscriptions == nil {
		return "每日推送暂未开放。"
	}
	sub, err := b.cfg.Subscriptions.GetSubscription(ctx, userID)
	if err != nil {
		return failure(ctx, "读取订阅设置失败，请稍后重试", err)
	}
	if sub == nil || !sub.Subscribed {
		return "你还没有订阅每日推送。"
	}
	sub.Subscribed = false
	if err := b.cfg.Subscriptions.SaveSubscription(ctx, sub); err != nil {
		return failure(ctx, "保存订阅设置失败，请稍后重试", err)
	}
	return "已取消每日课表推送。"
}

func (b *Bot) clear(ctx context.Context, userID string) string {
	if b.cfg.Importer == nil {
		return "课表导入暂未开放。"
	}
	if err := b.cfg.Importer.Clear(ctx, userID); err != nil {
		return failure(ctx, domerrors.GetUserMessage(err), err)
	}
	return "课表已清空。"
}

const setTermUsage = "格式：设置学期 学期名称 开学日期 [周数]\n例如：设置学期 2026秋 2026-09-07 18"

func (b *Bot) setTerm(ctx context.Context, userID string, args []string) string {
	if b.cfg.Terms == nil {
		return "学期设置暂未开放。"
	}
	if len(args) < 2 || len(args) > 3 {
		return setTermUsage
	}
	start, err := time.Parse(time.DateOnly, args[1])
	if err != nil {
		return "开学日期格式应为 YYYY-MM-DD\n" + setTermUsage
	}
	var totalWeeks *int
	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 1 || n > 60 {
			return "周数应为 1-60 之间的整数\n" + setTermUsage
		}
		totalWeeks = &n
	}
	term, err := b.cfg.Terms.EnsureTerm(ctx, userID, args[0], start, totalWeeks)
	if err != nil {
		return failure(ctx, "保存学期信息失败，请稍后重试", err)
	}
	// Moving the start date shifts every stored item to another week.
	if b.cfg.Cache != nil {
		b.cfg.Cache.Invalidate(userID)
	}
	msg := fmt.Sprintf("学期已设置：%s，开学日期 %s", term.Name, term.StartDate.Format(time.DateOnly))
	if term.TotalWeeks != nil {
		msg += fmt.Sprintf("，共 %d 周", *term.TotalWeeks)
	}
	return msg + "。\n现在可以发送课表截图导入课表。"
}

func (b *Bot) ask(ctx context.Context, userID, text string) string {
	reply, err := b.cfg.Asker.Answer(ctx, userID, text)
	if err != nil {
		return failure(ctx, domerrors.GetUserMessage(err), err)
	}
	return reply.Text
}

func (b *Bot) importImage(ctx context.Context, userID, messageID string) string {
	if b.cfg.Importer == nil || b.cfg.Content == nil {
		return "课表导入暂未开放。"
	}
	data, mime, err := b.cfg.Content.Content(ctx, messageID)
	if err != nil {
		return failure(ctx, "下载图片失败，请重新发送", err)
	}

	name, start, totalWeeks := b.termSettings(ctx, userID)
	res, err := b.cfg.Importer.Import(ctx, importer.Request{
		UserID:     userID,
		TermName:   name,
		StartDate:  start,
		TotalWeeks: totalWeeks,
		Image:      data,
		MIMEType:   mime,
	})
	if err != nil {
		return failure(ctx, domerrors.GetUserMessage(err), err)
	}

	msg := fmt.Sprintf("课表导入成功（%s）：共 %d 门课程、%d 条排课。", name, res.CourseCount, res.ItemCount)
	if len(res.Warnings) > 0 {
		msg += fmt.Sprintf("\n有 %d 处内容未能识别，已跳过。", len(res.Warnings))
	}
	return msg + "\n发送「本周」查看课表。"
}

// termSettings returns the user's most recent term, or a default term
// starting on Monday of the current week.
func (b *Bot) termSettings(ctx context.Context, userID string) (string, time.Time, *int) {
	if b.cfg.Terms != nil {
		term, err := b.cfg.Terms.LatestTerm(ctx, userID)
		if err != nil {
			slog.WarnContext(ctx, "failed to load term settings", "error", err)
		}
		if term != nil {
			return term.Name, term.StartDate, term.TotalWeeks
		}
	}
	now := b.now().In(b.cfg.Location)
	offset := (int(now.Weekday()) + 6) % 7
	y, m, d := now.AddDate(0, 0, -offset).Date()
	return DefaultTermName, time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func failure(ctx context.Context, msg string, err error) string {
	slog.WarnContext(ctx, "line command failed", "error", err)
	if msg == "" {
		msg = "系统暂时无法处理您的请求，请稍后再试。"
	}
	return msg
}

func sourceUserID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	default:
		return ""
	}
}

// BlobContent downloads message content through the Messaging API.
type BlobContent struct {
	blob     *messaging_api.MessagingApiBlobAPI
	maxBytes int64
}

// NewBlobContent creates a fetcher that refuses content over maxBytes.
func NewBlobContent(channelToken string, maxBytes int64) (*BlobContent, error) {
	blob, err := messaging_api.NewMessagingApiBlobAPI(channelToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging blob client: %w", err)
	}
	return &BlobContent{blob: blob, maxBytes: maxBytes}, nil
}

// Content returns the message body and its content type.
func (c *BlobContent) Content(_ context.Context, messageID string) ([]byte, string, error) {
	resp, err := c.blob.GetMessageContent(messageID)
	if err != nil {
		return nil, "", fmt.Errorf("get message content: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, "", domerrors.NewUpstreamError("line", resp.StatusCode, fmt.Errorf("content %s", messageID))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read message content: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
