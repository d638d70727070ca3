// Package importer turns timetable screenshots into stored schedules. An
// import stores the image, asks the vision model for the day-marker text,
// parses and normalizes it, and replaces the user's schedule in one
// transaction while holding the user's import lease.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/garyellow/timetable-linebot-go/internal/config"
	"github.com/garyellow/timetable-linebot-go/internal/ctxutil"
	domerrors "github.com/garyellow/timetable-linebot-go/internal/errors"
	"github.com/garyellow/timetable-linebot-go/internal/lease"
	"github.com/garyellow/timetable-linebot-go/internal/r2client"
	"github.com/garyellow/timetable-linebot-go/internal/storage"
	"github.com/garyellow/timetable-linebot-go/internal/timetable"
)

const moduleName = "importer"

// MinRecognizedRunes is the shortest recognizer output treated as a timetable.
const MinRecognizedRunes = 30

// Import outcomes reported to the Recorder.
const (
	StatusSuccess           = "success"
	StatusBusy              = "busy"
	StatusInvalid           = "invalid"
	StatusRecognitionFailed = "recognition_failed"
	StatusParseFailed       = "parse_failed"
	StatusIOFailed          = "io_failed"
)

// Recognizer extracts timetable text from an image. genai.Recognizer
// satisfies it.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Store is the persistence the importer needs. ReplaceSchedule upserts the
// term in the same transaction as the schedule.
type Store interface {
	storage.ScheduleWriter
}

// Invalidator drops cached query results of a user.
type Invalidator interface {
	Invalidate(userID string)
}

// Recorder observes import outcomes. metrics.Metrics implements it.
type Recorder interface {
	RecordImport(status string, d time.Duration)
	RecordParseWarnings(n int)
}

// Request is an image import.
type Request struct {
	UserID     string
	TermName   string
	StartDate  time.Time
	TotalWeeks *int
	Image      []byte
	// MIMEType is a hint; the content is sniffed when it is not an image type.
	MIMEType string
}

// TextRequest imports text that was already recognized.
type TextRequest struct {
	UserID     string
	TermName   string
	StartDate  time.Time
	TotalWeeks *int
	Text       string
}

// Result summarizes a successful import.
type Result struct {
	ImportID    string   `json:"importId"`
	TermID      int64    `json:"termId"`
	CourseCount int      `json:"courseCount"`
	ItemCount   int      `json:"itemCount"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Options holds the optional collaborators of a Service.
type Options struct {
	Recognizer       Recognizer
	Images           ImageStore
	Cache            Invalidator
	Recorder         Recorder
	LockWait         time.Duration
	RecognizeTimeout time.Duration
	MaxImageBytes    int64
}

// Service runs imports and the other schedule write operations.
type Service struct {
	store            Store
	locker           lease.Locker
	recognizer       Recognizer
	images           ImageStore
	cache            Invalidator
	recorder         Recorder
	lockWait         time.Duration
	recognizeTimeout time.Duration
	maxImageBytes    int64
}

// NewService creates an import service. Zero durations take the defaults
// from the config package.
func NewService(store Store, locker lease.Locker, opts Options) *Service {
	s := &Service{
		store:            store,
		locker:           locker,
		recognizer:       opts.Recognizer,
		images:           opts.Images,
		cache:            opts.Cache,
		recorder:         opts.Recorder,
		lockWait:         opts.LockWait,
		recognizeTimeout: opts.RecognizeTimeout,
		maxImageBytes:    opts.MaxImageBytes,
	}
	if s.lockWait <= 0 {
		s.lockWait = config.ImportLockWait
	}
	if s.recognizeTimeout <= 0 {
		s.recognizeTimeout = config.RecognitionRequest
	}
	if s.maxImageBytes <= 0 {
		s.maxImageBytes = 10 << 20
	}
	return s
}

// CanRecognize reports whether image imports are available.
func (s *Service) CanRecognize() bool {
	return s.recognizer != nil
}

// attempt carries the state of one import through the pipeline.
type attempt struct {
	importID string
	userID   string
	imageURL string
	rawText  string
	start    time.Time
}

// Import stores the image, recognizes it and replaces the user's schedule.
func (s *Service) Import(ctx context.Context, req Request) (*Result, error) {
	wrap := domerrors.NewWrapper(moduleName, "import")
	start := time.Now()

	if bad := s.validateImage(req); bad != nil {
		s.record(StatusInvalid, start)
		return nil, wrap.Wrap(bad.err, bad.msg)
	}
	mime := detectImage(req.Image, req.MIMEType)
	if !strings.HasPrefix(mime.String(), "image/") {
		s.record(StatusInvalid, start)
		err := domerrors.NewValidationError("image", "unsupported content type "+mime.String())
		return nil, wrap.Wrap(err, "请上传 PNG 或 JPEG 格式的课表截图")
	}
	if s.recognizer == nil {
		s.record(StatusRecognitionFailed, start)
		return nil, wrap.Wrap(domerrors.ErrRecognition, "课表识别服务未配置，请改用文字导入")
	}

	a := &attempt{importID: uuid.NewString(), userID: req.UserID, start: start}
	ctx = ctxutil.WithImportID(ctxutil.WithUserID(ctx, req.UserID), a.importID)

	release, err := s.acquire(ctx, req.UserID)
	if err != nil {
		return nil, s.lockFailure(ctx, wrap, err, start)
	}
	defer release()

	slog.InfoContext(ctx, "import started",
		"term", req.TermName,
		"bytes", len(req.Image),
		"mime", mime.String())

	if s.images != nil {
		key := imageKey(req.UserID, a.importID, mime.Extension())
		url, err := s.images.Put(ctx, key, req.Image, mime.String())
		if err != nil {
			return nil, s.fail(ctx, a, StatusIOFailed, wrap.Wrap(errors.Join(domerrors.ErrImportIO, err), "保存课表截图失败，请稍后重试"))
		}
		a.imageURL = url
	}

	recognizeCtx, cancel := context.WithTimeout(ctx, s.recognizeTimeout)
	text, err := s.recognizer.Recognize(recognizeCtx, req.Image, mime.String())
	cancel()
	if err != nil {
		a.rawText = "AI_ERROR: " + err.Error()
		return nil, s.fail(ctx, a, StatusRecognitionFailed,
			wrap.Wrap(errors.Join(domerrors.ErrRecognition, err), "课表识别失败，请检查截图是否清晰、完整后重新上传"))
	}
	text = strings.TrimSpace(text)
	a.rawText = text
	if utf8.RuneCountInString(text) < MinRecognizedRunes {
		return nil, s.fail(ctx, a, StatusRecognitionFailed,
			wrap.Wrap(fmt.Errorf("%w: output too short (%d runes)", domerrors.ErrRecognition, utf8.RuneCountInString(text)),
				"未能从截图中识别出课表，请检查截图是否清晰、完整后重新上传"))
	}

	res, err := s.persist(ctx, wrap, a, req.TermName, req.StartDate, req.TotalWeeks)
	if err != nil {
		return nil, err
	}
	s.archiveText(ctx, a)
	return res, nil
}

// ImportText runs the pipeline on already recognized text.
func (s *Service) ImportText(ctx context.Context, req TextRequest) (*Result, error) {
	wrap := domerrors.NewWrapper(moduleName, "import_text")
	start := time.Now()

	if bad := validateTerm(req.UserID, req.TermName, req.StartDate, req.TotalWeeks); bad != nil {
		s.record(StatusInvalid, start)
		return nil, wrap.Wrap(bad.err, bad.msg)
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		s.record(StatusInvalid, start)
		return nil, wrap.Wrap(domerrors.NewValidationError("text", "empty"), "课表文本不能为空")
	}

	a := &attempt{importID: uuid.NewString(), userID: req.UserID, rawText: text, start: start}
	ctx = ctxutil.WithImportID(ctxutil.WithUserID(ctx, req.UserID), a.importID)

	release, err := s.acquire(ctx, req.UserID)
	if err != nil {
		return nil, s.lockFailure(ctx, wrap, err, start)
	}
	defer release()

	return s.persist(ctx, wrap, a, req.TermName, req.StartDate, req.TotalWeeks)
}

// persist parses the attempt's text and replaces the user's schedule and
// term in one transaction.
func (s *Service) persist(ctx context.Context, wrap *domerrors.ErrorWrapper, a *attempt, termName string, startDate time.Time, totalWeeks *int) (*Result, error) {
	parsed, err := timetable.ParseContext(ctx, a.rawText)
	if err != nil {
		return nil, s.fail(ctx, a, StatusParseFailed,
			wrap.Wrap(errors.Join(domerrors.ErrRecognition, err), "识别结果中没有找到“星期X：”格式的课表内容"))
	}
	items := timetable.Normalize(parsed.Items)
	warnings := make([]string, len(parsed.Warnings))
	for i, w := range parsed.Warnings {
		warnings[i] = w.Error()
	}
	if s.recorder != nil {
		s.recorder.RecordParseWarnings(len(warnings))
	}
	if len(parsed.Courses) == 0 || len(items) == 0 {
		return nil, s.fail(ctx, a, StatusParseFailed,
			wrap.Wrap(fmt.Errorf("%w: no courses or items parsed", domerrors.ErrRecognition),
				"未能从截图中解析出任何课程，请检查截图后重新上传"))
	}

	parsedJSON, err := json.Marshal(timetable.Result{Courses: parsed.Courses, Items: items})
	if err != nil {
		return nil, s.fail(ctx, a, StatusIOFailed, wrap.Wrap(errors.Join(domerrors.ErrImportIO, err), "保存课表失败，请稍后重试"))
	}

	replaced, err := s.store.ReplaceSchedule(ctx, storage.ScheduleSet{
		ImportID:   a.importID,
		UserID:     a.userID,
		Term:       &storage.TermSpec{Name: termName, StartDate: startDate, TotalWeeks: totalWeeks},
		ImageURL:   a.imageURL,
		RawText:    a.rawText,
		ParsedJSON: string(parsedJSON),
		Courses:    parsed.Courses,
		Items:      items,
	})
	if err != nil {
		return nil, s.fail(ctx, a, StatusIOFailed, wrap.Wrap(errors.Join(domerrors.ErrImportIO, err), "保存课表失败，请稍后重试"))
	}

	if s.cache != nil {
		s.cache.Invalidate(a.userID)
	}
	s.record(StatusSuccess, a.start)
	slog.InfoContext(ctx, "import finished",
		"term_id", replaced.TermID,
		"courses", replaced.CourseCount,
		"items", replaced.ItemCount,
		"warnings", len(warnings),
		"duration_ms", time.Since(a.start).Milliseconds())

	return &Result{
		ImportID:    a.importID,
		TermID:      replaced.TermID,
		CourseCount: replaced.CourseCount,
		ItemCount:   replaced.ItemCount,
		ImageURL:    a.imageURL,
		Warnings:    warnings,
	}, nil
}

// Status reports whether the user has a live imported timetable.
func (s *Service) Status(ctx context.Context, userID string) (bool, error) {
	ok, err := s.store.HasSuccessfulImport(ctx, userID)
	if err != nil {
		return false, domerrors.NewWrapper(moduleName, "status").Wrap(err, "查询导入状态失败，请稍后重试")
	}
	return ok, nil
}

// Clear deletes the user's courses, items and successful import records.
// It waits for the user's lease so it never races an import.
func (s *Service) Clear(ctx context.Context, userID string) error {
	wrap := domerrors.NewWrapper(moduleName, "clear")
	release, err := s.acquire(ctx, userID)
	if err != nil {
		if errors.Is(err, lease.ErrBusy) {
			return wrap.Wrap(domerrors.ErrImportBusy, "当前账号正在导入课表，请稍后再试")
		}
		return wrap.Wrap(err, "清空课表失败，请稍后重试")
	}
	defer release()

	if err := s.store.ClearUserSchedules(ctx, userID); err != nil {
		return wrap.Wrap(err, "清空课表失败，请稍后重试")
	}
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
	slog.InfoContext(ctx, "schedule cleared")
	return nil
}

// UpdateSections moves an item to a new section range and rebuilds its
// display string.
func (s *Service) UpdateSections(ctx context.Context, userID string, itemID int64, sectionStart, sectionCount int) (*storage.ScheduleItem, error) {
	wrap := domerrors.NewWrapper(moduleName, "update_sections")
	if sectionStart < 1 {
		return nil, wrap.Wrap(domerrors.NewValidationError("sectionStart", "must be at least 1"), "起始节次必须大于等于 1")
	}
	if sectionCount < 1 {
		return nil, wrap.Wrap(domerrors.NewValidationError("sectionCount", "must be at least 1"), "节数必须大于等于 1")
	}

	item, err := s.store.GetItem(ctx, userID, itemID)
	if err != nil {
		return nil, wrap.Wrap(err, "查询课程安排失败，请稍后重试")
	}
	if item == nil {
		return nil, wrap.Wrap(domerrors.ErrNotFound, "课程安排不存在")
	}

	raw := timetable.FormatRawTimeExpr(item.WeekStart, item.WeekEnd, sectionStart, sectionCount, item.Classroom)
	ok, err := s.store.UpdateItemSections(ctx, userID, itemID, sectionStart, sectionCount, raw)
	if err != nil {
		return nil, wrap.Wrap(err, "更新节次失败，请稍后重试")
	}
	if !ok {
		return nil, wrap.Wrap(domerrors.ErrNotFound, "课程安排不存在")
	}
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}

	item.SectionStart = sectionStart
	item.SectionCount = sectionCount
	item.RawTimeExpr = raw
	return item, nil
}

func (s *Service) acquire(ctx context.Context, userID string) (lease.Release, error) {
	return s.locker.Acquire(ctx, userID, s.lockWait)
}

func (s *Service) lockFailure(ctx context.Context, wrap *domerrors.ErrorWrapper, err error, start time.Time) error {
	if errors.Is(err, lease.ErrBusy) {
		s.record(StatusBusy, start)
		slog.WarnContext(ctx, "import rejected: lease busy")
		return wrap.Wrap(domerrors.ErrImportBusy, "当前账号正在导入课表，请稍后再试")
	}
	s.record(StatusIOFailed, start)
	return wrap.Wrap(err, "导入任务被中断，请稍后重试")
}

// fail writes the FAIL_AI record and returns err. Live data is never touched.
func (s *Service) fail(ctx context.Context, a *attempt, status string, err error) error {
	s.record(status, a.start)
	slog.WarnContext(ctx, "import failed",
		"status", status,
		"error", err)

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	rec := storage.ImportRecord{
		ImportID: a.importID,
		UserID:   a.userID,
		ImageURL: a.imageURL,
		RawText:  a.rawText,
		Status:   storage.ImportStatusFailAI,
		Error:    err.Error(),
	}
	if saveErr := s.store.SaveImportRecord(recordCtx, rec); saveErr != nil {
		slog.ErrorContext(ctx, "failed to record failed import", "error", saveErr)
	}
	return err
}

// archiveText stores the compressed recognized text next to the image.
func (s *Service) archiveText(ctx context.Context, a *attempt) {
	if s.images == nil || a.imageURL == "" {
		return
	}
	key := textKey(a.userID, a.importID)
	if _, err := s.images.Put(ctx, key, r2client.CompressBytes([]byte(a.rawText)), "application/zstd"); err != nil {
		slog.WarnContext(ctx, "failed to archive recognized text", "key", key, "error", err)
	}
}

func (s *Service) record(status string, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordImport(status, time.Since(start))
	}
}

func (s *Service) validateImage(req Request) *invalid {
	if bad := validateTerm(req.UserID, req.TermName, req.StartDate, req.TotalWeeks); bad != nil {
		return bad
	}
	if len(req.Image) == 0 {
		return &invalid{domerrors.NewValidationError("image", "empty"), "课表图片不能为空"}
	}
	if int64(len(req.Image)) > s.maxImageBytes {
		return &invalid{
			domerrors.NewValidationError("image", fmt.Sprintf("%d bytes exceeds limit %d", len(req.Image), s.maxImageBytes)),
			fmt.Sprintf("图片过大，请上传小于 %d MB 的截图", max(s.maxImageBytes>>20, 1)),
		}
	}
	return nil
}

func validateTerm(userID, termName string, startDate time.Time, totalWeeks *int) *invalid {
	if userID == "" {
		return &invalid{domerrors.ErrUnauthorized, "用户未登录"}
	}
	if strings.TrimSpace(termName) == "" || startDate.IsZero() {
		return &invalid{domerrors.NewValidationError("term", "name and start date are required"), "学期名称和开始日期不能为空"}
	}
	if totalWeeks != nil && *totalWeeks <= 0 {
		return &invalid{domerrors.NewValidationError("totalWeeks", "must be positive"), "总周数必须大于 0"}
	}
	return nil
}

// invalid pairs a validation failure with its user-facing message.
type invalid struct {
	err error
	msg string
}

func detectImage(data []byte, hint string) *mimetype.MIME {
	detected := mimetype.Detect(data)
	if strings.HasPrefix(detected.String(), "image/") || !strings.HasPrefix(hint, "image/") {
		return detected
	}
	if m := mimetype.Lookup(hint); m != nil {
		return m
	}
	return detected
}

func imageKey(userID, importID, ext string) string {
	if ext == "" {
		ext = ".img"
	}
	return "timetables/" + safeSegment(userID) + "/" + importID + ext
}

func textKey(userID, importID string) string {
	return "timetables/" + safeSegment(userID) + "/" + importID + ".txt.zst"
}

// safeSegment keeps user ids usable as a single path segment.
func safeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
