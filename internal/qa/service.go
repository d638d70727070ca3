// Package qa answers free-form questions about a user's timetable, such as
// "明天下午有什么课". The date and part of day are resolved from the question;
// the matching classes become the facts handed to the chat model, or are
// listed directly when no model is available.
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/garyellow/timetable-linebot-go/internal/config"
	domerrors "github.com/garyellow/timetable-linebot-go/internal/errors"
	"github.com/garyellow/timetable-linebot-go/internal/schedule"
)

// SystemPrompt instructs the chat model to answer from the supplied facts.
const SystemPrompt = "你是课程表助手。根据给定的课程事实回答用户问题。若无相关课程，明确告知。"

// Answerer is the chat model. genai.Answerer satisfies it.
type Answerer interface {
	Answer(ctx context.Context, system, question string) (string, error)
}

// Limiter gates chat model calls per user. ratelimit.KeyedLimiter
// satisfies it.
type Limiter interface {
	Allow(key string) bool
}

// Reply is the outcome of one question.
type Reply struct {
	Date    string           `json:"date"`
	Period  string           `json:"period"`
	Entries []schedule.Entry `json:"courses"`
	Text    string           `json:"answer"`
	FromLLM bool             `json:"fromLlm"`
}

// Options holds the optional collaborators of a Service.
type Options struct {
	Answerer  Answerer
	Limiter   Limiter
	Tokenizer Tokenizer
	Location  *time.Location
	Timeout   time.Duration
}

// Service answers timetable questions.
type Service struct {
	query    schedule.Querier
	answerer Answerer
	limiter  Limiter
	tok      Tokenizer
	loc      *time.Location
	timeout  time.Duration
	now      func() time.Time
}

// NewService creates a QA service over query.
func NewService(query schedule.Querier, opts Options) *Service {
	s := &Service{
		query:    query,
		answerer: opts.Answerer,
		limiter:  opts.Limiter,
		tok:      opts.Tokenizer,
		loc:      opts.Location,
		timeout:  opts.Timeout,
		now:      time.Now,
	}
	if s.tok == nil {
		s.tok = NewSegmenterTokenizer()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.timeout <= 0 {
		s.timeout = config.AnswerRequest
	}
	return s
}

// Answer resolves the date and period named in question relative to today,
// looks up the classes and phrases the answer.
func (s *Service) Answer(ctx context.Context, userID, question string) (*Reply, error) {
	return s.AnswerAt(ctx, userID, question, s.now())
}

// AnswerAt is Answer with relative dates resolved against base.
func (s *Service) AnswerAt(ctx context.Context, userID, question string, base time.Time) (*Reply, error) {
	wrap := domerrors.NewWrapper("qa", "answer")
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, wrap.Wrap(domerrors.NewValidationError("question", "empty"), "问题不能为空")
	}

	today := base.In(s.loc)
	date := schedule.ResolveDate(question, today)
	period := schedule.ResolvePeriod(question)

	entries, err := s.query.Day(ctx, userID, date)
	if err != nil {
		return nil, wrap.Wrap(err, "查询课表失败，请稍后重试")
	}
	entries = schedule.FilterByPeriod(entries, period)
	entries = Narrow(entries, Keywords(s.tok, question))

	reply := &Reply{
		Date:    date.Format(time.DateOnly),
		Period:  period.String(),
		Entries: entries,
	}

	if s.answerer == nil || (s.limiter != nil && !s.limiter.Allow(userID)) {
		reply.Text = DeterministicAnswer(date, entries)
		return reply, nil
	}

	answerCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.answerer.Answer(answerCtx, SystemPrompt, BuildUserPrompt(question, date, entries))
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		slog.WarnContext(ctx, "llm answer failed, using fact list", "error", err)
		reply.Text = DeterministicAnswer(date, entries)
		return reply, nil
	}
	reply.Text = text
	reply.FromLLM = true
	return reply, nil
}

// BuildUserPrompt renders the question followed by one fact line per class.
func BuildUserPrompt(question string, date time.Time, entries []schedule.Entry) string {
	var b strings.Builder
	b.WriteString("问题：")
	b.WriteString(question)
	b.WriteString("\n事实：\n")
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(FactLine(date, e))
	}
	return b.String()
}

// FactLine renders one class as a key=value fact.
func FactLine(date time.Time, e schedule.Entry) string {
	return fmt.Sprintf("日期=%s; 节次=%d-%d; 课程=%s; 代码=%s; 教师=%s; 教室=%s; 备注=%s",
		date.Format(time.DateOnly),
		e.SectionStart,
		e.SectionEnd(),
		e.CourseName,
		e.CourseCode,
		e.Teacher,
		e.Classroom,
		e.Remark)
}

// DeterministicAnswer lists the classes without a chat model.
func DeterministicAnswer(date time.Time, entries []schedule.Entry) string {
	day := date.Format(time.DateOnly)
	if len(entries) == 0 {
		return day + " 没有安排课程。"
	}
	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, day+" 的课程安排：")
	for _, e := range entries {
		line := fmt.Sprintf("第%d-%d节 %s", e.SectionStart, e.SectionEnd(), e.CourseName)
		if e.Classroom != "" {
			line += " " + e.Classroom
		}
		if e.Teacher != "" {
			line += " " + e.Teacher
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
