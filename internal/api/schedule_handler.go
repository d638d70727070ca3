package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/timetable-linebot-go/internal/importer"
	"github.com/garyellow/timetable-linebot-go/internal/schedule"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GET /api/schedule/today
func (h *Handler) today(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	entries, err := h.query.Day(c.Request.Context(), userID, h.currentDate())
	if err != nil {
		h.writeError(c, "schedule", err)
		return
	}
	OK(c, nonNil(entries))
}

// GET /api/schedule/date?date=2026-09-07
func (h *Handler) byDate(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	raw := c.Query("date")
	if raw == "" {
		Fail(c, http.StatusBadRequest, "date 不能为空")
		return
	}
	date, err := h.parseDate(raw)
	if err != nil {
		Fail(c, http.StatusBadRequest, "日期格式应为 yyyy-MM-dd")
		return
	}
	entries, err := h.query.Day(c.Request.Context(), userID, date)
	if err != nil {
		h.writeError(c, "schedule", err)
		return
	}
	OK(c, nonNil(entries))
}

// GET /api/schedule/week?date=2026-09-07&week=3
// Both parameters are optional: the term is picked by date (today when
// absent) and the week defaults to the one containing that date.
func (h *Handler) byWeek(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	var ref *time.Time
	if raw := c.Query("date"); raw != "" {
		date, err := h.parseDate(raw)
		if err != nil {
			Fail(c, http.StatusBadRequest, "日期格式应为 yyyy-MM-dd")
			return
		}
		ref = &date
	}
	var week *int
	if raw := c.Query("week"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			Fail(c, http.StatusBadRequest, "周次必须是正整数")
			return
		}
		week = &n
	}
	entries, err := h.query.Week(c.Request.Context(), userID, ref, week)
	if err != nil {
		h.writeError(c, "schedule", err)
		return
	}
	OK(c, nonNil(entries))
}

// GET /api/schedule/import/status
func (h *Handler) importStatus(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	imported, err := h.importer.Status(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, "importer", err)
		return
	}
	OK(c, imported)
}

// termForm holds the term fields shared by both import routes.
type termForm struct {
	TermName   string `form:"termName" json:"termName"`
	StartDate  string `form:"startDate" json:"startDate"`
	TotalWeeks *int   `form:"totalWeeks" json:"totalWeeks"`
}

func (h *Handler) parseTerm(c *gin.Context, f termForm) (time.Time, bool) {
	if strings.TrimSpace(f.TermName) == "" || f.StartDate == "" {
		Fail(c, http.StatusBadRequest, "学期名称和开始日期不能为空")
		return time.Time{}, false
	}
	start, err := h.parseDate(f.StartDate)
	if err != nil {
		Fail(c, http.StatusBadRequest, "开始日期格式应为 yyyy-MM-dd")
		return time.Time{}, false
	}
	return start, true
}

// POST /api/schedule/upload-image (multipart: file, termName, startDate, totalWeeks)
func (h *Handler) uploadImage(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	var form termForm
	if err := c.ShouldBind(&form); err != nil {
		Fail(c, http.StatusBadRequest, "参数不合法")
		return
	}
	start, ok := h.parseTerm(c, form)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		Fail(c, http.StatusBadRequest, "请选择要上传的课表截图")
		return
	}
	if fh.Size > h.maxImageBytes {
		Fail(c, http.StatusBadRequest, "图片过大，请上传小于 "+strconv.FormatInt(max(h.maxImageBytes>>20, 1), 10)+" MB 的截图")
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.writeError(c, "importer", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxImageBytes+1))
	if err != nil {
		h.writeError(c, "importer", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.importTimeout)
	defer cancel()
	res, err := h.importer.Import(ctx, importer.Request{
		UserID:     userID,
		TermName:   strings.TrimSpace(form.TermName),
		StartDate:  start,
		TotalWeeks: form.TotalWeeks,
		Image:      data,
		MIMEType:   fh.Header.Get("Content-Type"),
	})
	if err != nil {
		h.writeError(c, "importer", err)
		return
	}
	OK(c, res)
}

type importTextRequest struct {
	termForm
	Text string `json:"text"`
}

// POST /api/schedule/import-text
func (h *Handler) importText(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	var req importTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "请求体格式无效")
		return
	}
	start, ok := h.parseTerm(c, req.termForm)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.importTimeout)
	defer cancel()
	res, err := h.importer.ImportText(ctx, importer.TextRequest{
		UserID:     userID,
		TermName:   strings.TrimSpace(req.TermName),
		StartDate:  start,
		TotalWeeks: req.TotalWeeks,
		Text:       req.Text,
	})
	if err != nil {
		h.writeError(c, "importer", err)
		return
	}
	OK(c, res)
}

// DELETE /api/schedule/clear
func (h *Handler) clear(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	if err := h.importer.Clear(c.Request.Context(), userID); err != nil {
		h.writeError(c, "importer", err)
		return
	}
	OK(c, nil)
}

type sectionsRequest struct {
	SectionStart *int `form:"sectionStart" json:"sectionStart"`
	SectionCount *int `form:"sectionCount" json:"sectionCount"`
}

// PUT /api/schedule/items/:id/sections
// The section range may come as a JSON body or as query/form parameters.
func (h *Handler) updateSections(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		Fail(c, http.StatusBadRequest, "参数不合法")
		return
	}
	var req sectionsRequest
	if err := c.ShouldBind(&req); err != nil || req.SectionStart == nil || req.SectionCount == nil {
		Fail(c, http.StatusBadRequest, "参数不合法")
		return
	}

	item, err := h.importer.UpdateSections(c.Request.Context(), userID, id, *req.SectionStart, *req.SectionCount)
	if err != nil {
		h.writeError(c, "importer", err)
		return
	}
	OK(c, item)
}

// GET /api/schedule/export.ics
func (h *Handler) exportICS(c *gin.Context) {
	h.export(c, "text/calendar; charset=utf-8", func(ctx context.Context, userID string) ([]byte, string, error) {
		return h.exporter.ICS(ctx, userID)
	})
}

// GET /api/schedule/export.xlsx
func (h *Handler) exportXLSX(c *gin.Context) {
	h.export(c, xlsxContentType, func(ctx context.Context, userID string) ([]byte, string, error) {
		return h.exporter.XLSX(ctx, userID)
	})
}

func (h *Handler) export(c *gin.Context, contentType string, build func(context.Context, string) ([]byte, string, error)) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	if h.exporter == nil {
		Fail(c, http.StatusNotFound, "导出功能未启用")
		return
	}
	data, name, err := build(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, "export", err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(name))
	c.Data(http.StatusOK, contentType, data)
}

type askRequest struct {
	Question string `json:"question"`
	Date     string `json:"date"`
}

type askContext struct {
	Date    string           `json:"date"`
	Period  string           `json:"period"`
	Items   []schedule.Entry `json:"items"`
	FromLLM bool             `json:"fromLlm"`
}

type askResponse struct {
	Answer  string     `json:"answer"`
	Context askContext `json:"context"`
}

// POST /api/ask
// An optional date replaces today as the base of relative expressions.
func (h *Handler) ask(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	if h.asker == nil {
		Fail(c, http.StatusNotFound, "问答功能未启用")
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "请求体格式无效")
		return
	}
	base := h.currentDate()
	if req.Date != "" {
		date, err := h.parseDate(req.Date)
		if err != nil {
			Fail(c, http.StatusBadRequest, "日期格式应为 yyyy-MM-dd")
			return
		}
		base = date
	}

	reply, err := h.asker.AnswerAt(c.Request.Context(), userID, req.Question, base)
	if err != nil {
		h.writeError(c, "qa", err)
		return
	}
	OK(c, askResponse{
		Answer: reply.Text,
		Context: askContext{
			Date:    reply.Date,
			Period:  reply.Period,
			Items:   nonNil(reply.Entries),
			FromLLM: reply.FromLLM,
		},
	})
}

func nonNil(entries []schedule.Entry) []schedule.Entry {
	if entries == nil {
		return []schedule.Entry{}
	}
	return entries
}
