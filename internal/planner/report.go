package planner

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/neekly/neekly/internal/client/clienterrors"
	"github.com/neekly/neekly/internal/common/httpclient"
)

// ReportStatus is the folded status of a report.
type ReportStatus string

const (
	StatusRequest  ReportStatus = "REQUEST"
	StatusComplete ReportStatus = "COMPLETE"
	StatusError    ReportStatus = "ERROR"
)

// ReportType selects what a weekly report summarizes.
type ReportType string

const (
	ReportSummary ReportType = "summary"
	ReportRecord  ReportType = "record"
)

// Report is an entry in the report list.
type Report struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Date   string       `json:"date"`
	Status ReportStatus `json:"status"`
	Type   ReportType   `json:"type"`
}

// ReportDetail is a report with its generated content.
type ReportDetail struct {
	Report
	Content string `json:"content,omitempty"`
	Raw     any    `json:"raw,omitempty"`
}

// ReportRequest asks the server to build a report over a date range.
type ReportRequest struct {
	StartDate string     `validate:"required,datetime=2006-01-02"`
	EndDate   string     `validate:"required,datetime=2006-01-02"`
	Type      ReportType `validate:"oneof=summary record"`
}

type rawReport struct {
	ReportUID string `mapstructure:"reportUid"`
	ID        string `mapstructure:"id"`
	Title     string `mapstructure:"title"`
	CreatedAt string `mapstructure:"createdAt"`
	Date      string `mapstructure:"date"`
	Status    string `mapstructure:"status"`
	Type      string `mapstructure:"type"`
	Content   string `mapstructure:"content"`
}

var upper = cases.Upper(language.Und)

// NormalizeStatus folds the many status spellings used by the server into
// REQUEST, COMPLETE or ERROR. Unknown values count as complete.
func NormalizeStatus(raw string) ReportStatus {
	switch upper.String(raw) {
	case "REQUEST", "REQUESTING", "PENDING", "IN_PROGRESS":
		return StatusRequest
	case "COMPLETE", "COMPLETED", "DONE", "SUCCESS":
		return StatusComplete
	case "ERROR", "FAILED", "FAIL":
		return StatusError
	default:
		return StatusComplete
	}
}

// ReportTitle is the default title of a report over a date range.
func ReportTitle(startDate, endDate string, t ReportType) string {
	if t == ReportRecord {
		return fmt.Sprintf("%s ~ %s weekly record report", startDate, endDate)
	}
	return fmt.Sprintf("%s ~ %s weekly report", startDate, endDate)
}

// ListReports returns the user's reports.
func (c *Client) ListReports(ctx context.Context) ([]Report, error) {
	rsp, err := c.http.Get(ctx, c.endpoints.Reports, nil)
	if err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(rsp.Body)
	if len(rsp.Body) == 0 || root.Type == gjson.Null {
		return []Report{}, nil
	}
	if !root.IsArray() {
		return nil, clienterrors.ErrInvalidResponse.Msg("report list is not an array")
	}

	reports := []Report{}
	for _, item := range root.Array() {
		raw, err := decodeReport(item)
		if err != nil {
			return nil, err
		}
		reports = append(reports, c.toReport(raw))
	}
	return reports, nil
}

// GetReport returns one report with its content.
func (c *Client) GetReport(ctx context.Context, uid string) (*ReportDetail, error) {
	if uid == "" {
		return nil, fmt.Errorf("reportUid is required")
	}
	rsp, err := c.http.Get(ctx, c.endpoints.ReportDetail, map[string]string{"reportUid": uid})
	if err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(rsp.Body)
	if !root.IsObject() {
		return &ReportDetail{
			Report:  Report{ID: uid, Status: StatusComplete, Type: ReportSummary},
			Content: string(rsp.Body),
			Raw:     rsp.Value,
		}, nil
	}
	raw, err := decodeReport(root)
	if err != nil {
		return nil, err
	}
	r := c.toReport(raw)
	if r.ID == "" {
		r.ID = uid
	}
	return &ReportDetail{Report: r, Content: raw.Content, Raw: rsp.Value}, nil
}

// CreateReport asks the server to generate a report. The returned Report
// falls back to the request values for anything the server omits.
func (c *Client) CreateReport(ctx context.Context, req ReportRequest) (*Report, error) {
	if req.Type == "" {
		req.Type = ReportSummary
	}
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid report request: %w", err)
	}
	title := ReportTitle(req.StartDate, req.EndDate, req.Type)

	body := []byte(`{}`)
	var err error
	for _, kv := range [][2]string{
		{"startDate", req.StartDate},
		{"endDate", req.EndDate},
		{"type", string(req.Type)},
		{"title", title},
	} {
		if body, err = sjson.SetBytes(body, kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("failed to encode report request: %w", err)
		}
	}

	rsp, err := c.http.Post(ctx, c.endpoints.CreateReport, body)
	if err != nil {
		return nil, err
	}
	r := &Report{
		ID:     gjson.GetBytes(rsp.Body, "id").String(),
		Title:  gjson.GetBytes(rsp.Body, "title").String(),
		Date:   req.StartDate,
		Status: StatusComplete,
		Type:   req.Type,
	}
	if r.ID == "" {
		r.ID = gjson.GetBytes(rsp.Body, "reportUid").String()
	}
	if r.ID == "" {
		r.ID = strconv.FormatInt(c.now().UnixMilli(), 10)
	}
	if r.Title == "" {
		r.Title = title
	}
	return r, nil
}

// Chat sends a message to the weekly schedule assistant and returns its
// reply. The call may take minutes.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "chat", message)
	if err != nil {
		return "", fmt.Errorf("failed to encode chat message: %w", err)
	}
	rsp, err := c.http.DoAuthenticated(ctx, httpclient.RequestOptions{
		Method:  http.MethodPost,
		Path:    c.endpoints.Chat,
		Body:    body,
		Timeout: ChatTimeout,
	})
	if err != nil {
		return "", err
	}
	root := gjson.ParseBytes(rsp.Body)
	if root.Type == gjson.String {
		return root.Str, nil
	}
	if root.IsObject() {
		for _, key := range []string{"response", "answer", "message", "reply", "chat"} {
			if v := root.Get(key); v.Type == gjson.String {
				return v.Str, nil
			}
		}
	}
	return string(rsp.Body), nil
}

func decodeReport(item gjson.Result) (rawReport, error) {
	var raw rawReport
	m, ok := item.Value().(map[string]any)
	if !ok {
		return raw, clienterrors.ErrInvalidResponse.Msg("report entry is not an object")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return raw, err
	}
	if err := dec.Decode(m); err != nil {
		return raw, clienterrors.ErrInvalidResponse.MsgErr("malformed report entry", err)
	}
	return raw, nil
}

func (c *Client) toReport(raw rawReport) Report {
	r := Report{
		ID:     raw.ReportUID,
		Title:  raw.Title,
		Date:   raw.CreatedAt,
		Status: NormalizeStatus(raw.Status),
		Type:   ReportType(raw.Type),
	}
	if r.ID == "" {
		r.ID = raw.ID
	}
	if r.ID == "" {
		r.ID = strconv.FormatInt(c.now().UnixMilli(), 10)
	}
	if r.Title == "" {
		r.Title = "Untitled"
	}
	if r.Date == "" {
		r.Date = raw.Date
	}
	if r.Date == "" {
		r.Date = c.now().Format(time.DateOnly)
	}
	if r.Type == "" {
		r.Type = ReportSummary
	}
	return r
}
