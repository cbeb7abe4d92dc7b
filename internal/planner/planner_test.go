package planner

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neekly/neekly/internal/client/auth"
	"github.com/neekly/neekly/internal/client/authapi"
	"github.com/neekly/neekly/internal/client/clienterrors"
	"github.com/neekly/neekly/internal/client/cookiestore"
	"github.com/neekly/neekly/internal/client/session"
	"github.com/neekly/neekly/internal/common/httpclient"
	"github.com/neekly/neekly/internal/devserver"
)

var fixedNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

// cannedHTTP answers every request with a fixed body per path.
type cannedHTTP struct {
	bodies map[string]string
	last   httpclient.RequestOptions
}

func (c *cannedHTTP) DoRequest(ctx context.Context, opts httpclient.RequestOptions) (*httpclient.Response, error) {
	c.last = opts
	body, ok := c.bodies[opts.Path]
	if !ok {
		return nil, &httpclient.HTTPError{StatusCode: http.StatusNotFound, Message: "not found"}
	}
	rsp := &httpclient.Response{StatusCode: http.StatusOK, Body: []byte(body)}
	if body != "" {
		rsp.Value = body
	}
	return rsp, nil
}

func (c *cannedHTTP) DoAuthenticated(ctx context.Context, opts httpclient.RequestOptions) (*httpclient.Response, error) {
	return c.DoRequest(ctx, opts)
}

func (c *cannedHTTP) Get(ctx context.Context, path string, q map[string]string) (*httpclient.Response, error) {
	return c.DoRequest(ctx, httpclient.RequestOptions{Method: http.MethodGet, Path: path, QueryParams: q})
}

func (c *cannedHTTP) Post(ctx context.Context, path string, body []byte) (*httpclient.Response, error) {
	return c.DoRequest(ctx, httpclient.RequestOptions{Method: http.MethodPost, Path: path, Body: body})
}

func (c *cannedHTTP) Put(ctx context.Context, path string, body []byte) (*httpclient.Response, error) {
	return c.DoRequest(ctx, httpclient.RequestOptions{Method: http.MethodPut, Path: path, Body: body})
}

func (c *cannedHTTP) Delete(ctx context.Context, path string, q map[string]string) (*httpclient.Response, error) {
	return c.DoRequest(ctx, httpclient.RequestOptions{Method: http.MethodDelete, Path: path, QueryParams: q})
}

func canned(bodies map[string]string) (*Client, *cannedHTTP) {
	hc := &cannedHTTP{bodies: bodies}
	return New(hc, WithClock(func() time.Time { return fixedNow })), hc
}

func TestListSchedulesShapes(t *testing.T) {
	item := `{"scheduleUid":"s1","title":"Standup","startTime":"2026-10-16T09:00:00","endTime":"2026-10-16T09:15:00"}`
	for _, body := range []string{
		`[` + item + `]`,
		`{"data":[` + item + `]}`,
		`{"schedules":[` + item + `]}`,
		`{"items":[` + item + `]}`,
	} {
		c, _ := canned(map[string]string{DefaultEndpoints().Schedules: body})
		got, err := c.ListSchedules(context.Background())
		require.NoError(t, err, body)
		require.Len(t, got, 1, body)
		assert.Equal(t, "s1", got[0].UID)
		assert.Equal(t, time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC), got[0].Start)
		assert.Equal(t, time.Date(2026, 10, 16, 9, 15, 0, 0, time.UTC), got[0].End)
	}

	c, _ := canned(map[string]string{DefaultEndpoints().Schedules: `{"result":"ok"}`})
	_, err := c.ListSchedules(context.Background())
	assert.ErrorIs(t, err, clienterrors.ErrInvalidResponse)
}

func TestListSchedulesFallbacks(t *testing.T) {
	c, _ := canned(map[string]string{DefaultEndpoints().Schedules: `[
		{"scheduleUid":"a","title":"no start","createDate":"2026-10-15T08:30:00"},
		{"scheduleUid":"b","title":"no end","startTime":"2026-10-16T10:00:00+09:00"},
		{"scheduleUid":"c","title":"nothing"},
		{"scheduleUid":"d","title":"bad start","startTime":"tomorrow"},
		"not an object",
		{"scheduleUid":42,"title":"numeric uid","startTime":"2026-10-16 11:00:00","isAllDay":"true"}
	]`})
	got, err := c.ListSchedules(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC), got[0].Start)
	assert.Equal(t, got[0].Start.Add(time.Hour), got[0].End)

	assert.True(t, got[1].End.Equal(got[1].Start.Add(DefaultDuration)))
	assert.Equal(t, 1, got[1].Start.UTC().Hour())

	assert.Equal(t, fixedNow, got[2].Start)

	assert.Equal(t, "42", got[3].UID)
	assert.True(t, got[3].IsAllDay)
}

func TestParseServerTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2026-10-16T09:00:00Z", time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC), true},
		{"2026-10-16T09:00:00", time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC), true},
		{"2026-10-16T09:00:00.250", time.Date(2026, 10, 16, 9, 0, 0, 250000000, time.UTC), true},
		{"2026-10-16 09:00", time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC), true},
		{"2026-10-16", time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), true},
		{"16/10/2026", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseServerTime(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.True(t, tt.want.Equal(got), tt.in)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]ReportStatus{
		"REQUEST":     StatusRequest,
		"requesting":  StatusRequest,
		"Pending":     StatusRequest,
		"IN_PROGRESS": StatusRequest,
		"COMPLETE":    StatusComplete,
		"completed":   StatusComplete,
		"done":        StatusComplete,
		"SUCCESS":     StatusComplete,
		"ERROR":       StatusError,
		"failed":      StatusError,
		"FAIL":        StatusError,
		"":            StatusComplete,
		"archived":    StatusComplete,
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeStatus(in), in)
	}
}

func TestListReports(t *testing.T) {
	c, _ := canned(map[string]string{DefaultEndpoints().Reports: `[
		{"reportUid":"r1","title":"Week 41","createdAt":"2026-10-09","status":"IN_PROGRESS","type":"record"},
		{"id":7,"date":"2026-10-02","status":"FAILED"},
		{}
	]`})
	got, err := c.ListReports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Report{
		{ID: "r1", Title: "Week 41", Date: "2026-10-09", Status: StatusRequest, Type: ReportRecord},
		{ID: "7", Title: "Untitled", Date: "2026-10-02", Status: StatusError, Type: ReportSummary},
		{ID: "1792141200000", Title: "Untitled", Date: "2026-10-16", Status: StatusComplete, Type: ReportSummary},
	}, got)

	c, _ = canned(map[string]string{DefaultEndpoints().Reports: ``})
	got, err = c.ListReports(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCreateReportRequest(t *testing.T) {
	c, hc := canned(map[string]string{DefaultEndpoints().CreateReport: `{}`})
	r, err := c.CreateReport(context.Background(), ReportRequest{StartDate: "2026-10-12", EndDate: "2026-10-18", Type: ReportRecord})
	require.NoError(t, err)
	assert.Equal(t, "2026-10-12 ~ 2026-10-18 weekly record report", r.Title)
	assert.Equal(t, StatusComplete, r.Status)
	assert.Equal(t, "2026-10-12", r.Date)
	assert.JSONEq(t, `{"startDate":"2026-10-12","endDate":"2026-10-18","type":"record","title":"2026-10-12 ~ 2026-10-18 weekly record report"}`, string(hc.last.Body))

	_, err = c.CreateReport(context.Background(), ReportRequest{StartDate: "12/10/2026", EndDate: "2026-10-18"})
	assert.Error(t, err)
}

func TestGenerateSchedulesResponses(t *testing.T) {
	path := DefaultEndpoints().GenerateSchedule
	item := `{"scheduleUid":"g1","title":"retro","startTime":"2026-10-15T10:00:00"}`

	for _, body := range []string{`{"result":"ok"}`, `"accepted"`, ``} {
		c, hc := canned(map[string]string{path: body})
		got, err := c.GenerateSchedules(context.Background(), "retro tomorrow")
		require.NoError(t, err, body)
		assert.Empty(t, got, body)
		assert.JSONEq(t, `{"rawText":"retro tomorrow"}`, string(hc.last.Body))
	}

	c, _ := canned(map[string]string{path: `{"data":[` + item + `]}`})
	got, err := c.GenerateSchedules(context.Background(), "retro")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "g1", got[0].UID)

	c, _ = canned(map[string]string{path: `{"data":{"scheduleUid":"g1"}}`})
	_, err = c.GenerateSchedules(context.Background(), "retro")
	assert.ErrorIs(t, err, clienterrors.ErrInvalidResponse)
}

func TestChatUsesLongTimeout(t *testing.T) {
	c, hc := canned(map[string]string{DefaultEndpoints().Chat: `{"response":"You are free on Friday."}`})
	reply, err := c.Chat(context.Background(), "when am I free?")
	require.NoError(t, err)
	assert.Equal(t, "You are free on Friday.", reply)
	assert.Equal(t, ChatTimeout, hc.last.Timeout)
	assert.JSONEq(t, `{"chat":"when am I free?"}`, string(hc.last.Body))

	c, _ = canned(map[string]string{DefaultEndpoints().Chat: `plain reply`})
	reply, err = c.Chat(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "plain reply", reply)
}

func TestScheduleInputValidation(t *testing.T) {
	c, _ := canned(map[string]string{})
	start := fixedNow
	_, err := c.AddSchedule(context.Background(), ScheduleInput{Title: "", Start: start, End: start.Add(time.Hour)})
	assert.Error(t, err)
	_, err = c.AddSchedule(context.Background(), ScheduleInput{Title: "x", Start: start, End: start.Add(-time.Hour)})
	assert.Error(t, err)
	_, err = c.UpdateSchedule(context.Background(), ScheduleInput{Title: "x", Start: start, End: start.Add(time.Hour)})
	assert.Error(t, err)
	assert.Error(t, c.DeleteSchedule(context.Background(), ""))
}

func TestEndpointsMerge(t *testing.T) {
	e := Endpoints{Chat: "/v2/chat"}.Merge(DefaultEndpoints())
	assert.Equal(t, "/v2/chat", e.Chat)
	assert.Equal(t, "/api/report", e.Reports)
}

// newDevClient wires a planner client to an in-process dev server through
// the full authentication stack, logged in as jane@example.com.
func newDevClient(t *testing.T) (*Client, *devserver.Server, *session.Store) {
	t.Helper()
	cfg := devserver.DefaultConfig()
	cfg.Users = []devserver.UserConfig{{Email: "jane@example.com", Password: "s3cret", UserName: "Jane"}}
	srv, err := devserver.New(cfg)
	require.NoError(t, err)

	jar, err := cookiestore.New("")
	require.NoError(t, err)
	transport := &httpclient.HandlerTransport{Handler: srv.Router}
	const base = "http://neekly.test"

	store := session.NewStore(nil)
	api := authapi.New(base, store, &http.Client{Jar: jar, Transport: transport})
	svc := auth.NewService(store, api)
	pipeline := httpclient.NewClientWithOptions(staticConfig(base), svc, httpclient.ClientOptions{Jar: jar, Transport: transport})

	_, err = svc.Login(context.Background(), "jane@example.com", "s3cret")
	require.NoError(t, err)
	return New(pipeline), srv, store
}

type staticConfig string

func (c staticConfig) GetServerURL() string             { return string(c) }
func (c staticConfig) GetRequestTimeout() time.Duration { return 5 * time.Second }

func TestPlannerAgainstDevServer(t *testing.T) {
	c, srv, store := newDevClient(t)
	ctx := context.Background()

	start := time.Date(2026, 10, 14, 14, 0, 0, 0, time.UTC)
	_, err := c.AddSchedule(ctx, ScheduleInput{Title: "Design review", Start: start, End: start.Add(90 * time.Minute)})
	require.NoError(t, err)

	srv.Faults().RejectNext(1)
	schedules, err := c.ListSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "Design review", schedules[0].Title)
	assert.True(t, start.Equal(schedules[0].Start))
	assert.Equal(t, 1, srv.RefreshCalls())

	in := ScheduleInput{UID: schedules[0].UID, Title: "Design review (v2)", Start: start, End: start.Add(time.Hour)}
	_, err = c.UpdateSchedule(ctx, in)
	require.NoError(t, err)

	generated, err := c.GenerateSchedules(ctx, "2026-10-15 10:00 retro\nwrite notes")
	require.NoError(t, err)
	require.Len(t, generated, 2)
	assert.Equal(t, "retro", generated[0].Title)

	r, err := c.CreateReport(ctx, ReportRequest{StartDate: "2026-10-12", EndDate: "2026-10-18"})
	require.NoError(t, err)
	reports, err := c.ListReports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, r.ID, reports[0].ID)
	assert.Equal(t, StatusComplete, reports[0].Status)

	detail, err := c.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Contains(t, detail.Content, "Design review (v2)")

	require.NoError(t, c.DeleteSchedule(ctx, in.UID))
	err = c.DeleteSchedule(ctx, in.UID)
	var httpErr *httpclient.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, "schedule not found", httpErr.Message)

	srv.Faults().FailRefresh(true)
	srv.Faults().RejectNext(1)
	_, err = c.ListSchedules(ctx)
	assert.ErrorIs(t, err, clienterrors.ErrSessionExpired)
	assert.False(t, store.IsPresent())

	_, err = c.ListReports(ctx)
	assert.ErrorIs(t, err, clienterrors.ErrNotLoggedIn)
}
