package devserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/neekly/neekly/internal/common/httpx"
)

type scheduleRequest struct {
	ScheduleUID string `json:"scheduleUid"`
	Title       string `json:"title" validate:"required"`
	Content     string `json:"content"`
	StartTime   string `json:"startTime" validate:"required"`
	EndTime     string `json:"endTime"`
}

// toServerTime renders an RFC 3339 client timestamp in the server's
// zoneless UTC layout.
func toServerTime(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return "", httpx.ErrInvalidRequest(fmt.Sprintf("invalid time %q", v))
	}
	return t.UTC().Format(serverTimeLayout), nil
}

func (req scheduleRequest) record() (scheduleRecord, error) {
	start, err := toServerTime(req.StartTime)
	if err != nil {
		return scheduleRecord{}, err
	}
	end, err := toServerTime(req.EndTime)
	if err != nil {
		return scheduleRecord{}, err
	}
	return scheduleRecord{
		ScheduleUID: req.ScheduleUID,
		Title:       req.Title,
		Content:     req.Content,
		StartTime:   start,
		EndTime:     end,
	}, nil
}

func (s *Server) listSchedules(r *http.Request) (*httpx.Response, error) {
	schedules := s.store.listSchedules(emailFromContext(r.Context()))
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   map[string]any{"data": schedules},
	}, nil
}

func (s *Server) insertSchedule(r *http.Request) (*httpx.Response, error) {
	var req scheduleRequest
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}
	rec, err := req.record()
	if err != nil {
		return nil, err
	}
	created := s.store.insertSchedule(emailFromContext(r.Context()), rec)
	return &httpx.Response{StatusCode: http.StatusCreated, Response: created}, nil
}

func (s *Server) updateSchedule(r *http.Request) (*httpx.Response, error) {
	var req scheduleRequest
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}
	if req.ScheduleUID == "" {
		return nil, httpx.ErrInvalidRequest("scheduleUid is required")
	}
	rec, err := req.record()
	if err != nil {
		return nil, err
	}
	updated, err := s.store.updateSchedule(emailFromContext(r.Context()), rec)
	if err != nil {
		return nil, err
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: updated}, nil
}

func (s *Server) deleteSchedule(r *http.Request) (*httpx.Response, error) {
	uid := r.URL.Query().Get("scheduleUid")
	if uid == "" {
		return nil, httpx.ErrInvalidRequest("scheduleUid is required")
	}
	if err := s.store.deleteSchedule(emailFromContext(r.Context()), uid); err != nil {
		return nil, err
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: map[string]string{"scheduleUid": uid}}, nil
}

// generateSchedules turns each non-empty line of the notes into a
// schedule. A line may start with "YYYY-MM-DD HH:MM"; lines without a
// time get no start time, like notes the real parser cannot place.
func (s *Server) generateSchedules(r *http.Request) (*httpx.Response, error) {
	var req struct {
		RawText string `json:"rawText" validate:"required"`
	}
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}

	email := emailFromContext(r.Context())
	created := []scheduleRecord{}
	for _, line := range strings.Split(req.RawText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rec := scheduleRecord{Title: line, RawText: line, Source: "AI"}
		if len(line) > 16 {
			if t, err := time.ParseInLocation("2006-01-02 15:04", line[:16], time.UTC); err == nil {
				rec.StartTime = t.Format(serverTimeLayout)
				rec.Title = strings.TrimSpace(line[16:])
			}
		}
		created = append(created, s.store.insertSchedule(email, rec))
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: created}, nil
}

func (s *Server) chat(r *http.Request) (*httpx.Response, error) {
	var req struct {
		Chat string `json:"chat" validate:"required"`
	}
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}
	n := len(s.store.listSchedules(emailFromContext(r.Context())))
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response: map[string]string{
			"response": fmt.Sprintf("You have %d schedules. You asked: %s", n, req.Chat),
		},
	}, nil
}

func (s *Server) listReports(r *http.Request) (*httpx.Response, error) {
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   s.store.listReports(emailFromContext(r.Context())),
	}, nil
}

func (s *Server) reportDetail(r *http.Request) (*httpx.Response, error) {
	uid := r.URL.Query().Get("reportUid")
	if uid == "" {
		return nil, httpx.ErrInvalidRequest("reportUid is required")
	}
	rep, err := s.store.report(emailFromContext(r.Context()), uid)
	if err != nil {
		return nil, err
	}
	return &httpx.Response{StatusCode: http.StatusOK, Response: rep}, nil
}

type reportRequest struct {
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Type      string `json:"type" validate:"oneof=summary record"`
	Title     string `json:"title"`
}

func (s *Server) createReport(r *http.Request) (*httpx.Response, error) {
	var req reportRequest
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}
	email := emailFromContext(r.Context())

	var b strings.Builder
	count := 0
	for _, sc := range s.store.listSchedules(email) {
		day := sc.StartTime
		if len(day) >= 10 {
			day = day[:10]
		}
		if day < req.StartDate || day > req.EndDate {
			continue
		}
		count++
		fmt.Fprintf(&b, "- %s %s\n", day, sc.Title)
	}
	content := fmt.Sprintf("%d schedules between %s and %s\n%s", count, req.StartDate, req.EndDate, b.String())

	rep := s.store.addReport(email, reportRecord{
		Title:     req.Title,
		Type:      req.Type,
		Status:    "DONE",
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Content:   content,
	})
	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Response:   map[string]string{"id": rep.ReportUID, "title": rep.Title},
	}, nil
}
