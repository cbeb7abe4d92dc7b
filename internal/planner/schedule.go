package planner

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/neekly/neekly/internal/client/clienterrors"
	"github.com/neekly/neekly/internal/common/httpclient"
)

// DefaultDuration is the length given to a schedule the server returns
// without an end time.
const DefaultDuration = time.Hour

// Schedule is one calendar entry.
type Schedule struct {
	UID          string    `json:"scheduleUid,omitempty"`
	Title        string    `json:"title"`
	Content      string    `json:"content,omitempty"`
	RawText      string    `json:"rawText,omitempty"`
	Start        time.Time `json:"startTime"`
	End          time.Time `json:"endTime"`
	IsAllDay     bool      `json:"isAllDay,omitempty"`
	MainCategory string    `json:"mainCategory,omitempty"`
	SubCategory  string    `json:"subCategory,omitempty"`
	Source       string    `json:"source,omitempty"`
	CreateDate   string    `json:"createDate,omitempty"`
	ModifyDate   string    `json:"modifyDate,omitempty"`
}

// rawSchedule is the server's view of a schedule, before time parsing.
type rawSchedule struct {
	UID          string `mapstructure:"scheduleUid"`
	Title        string `mapstructure:"title"`
	Content      string `mapstructure:"content"`
	RawText      string `mapstructure:"rawText"`
	StartTime    string `mapstructure:"startTime"`
	EndTime      string `mapstructure:"endTime"`
	IsAllDay     bool   `mapstructure:"isAllDay"`
	MainCategory string `mapstructure:"mainCategory"`
	SubCategory  string `mapstructure:"subCategory"`
	Source       string `mapstructure:"source"`
	CreateDate   string `mapstructure:"createDate"`
	ModifyDate   string `mapstructure:"modifyDate"`
}

// ScheduleInput is a schedule to insert or update.
type ScheduleInput struct {
	UID     string    `json:"scheduleUid,omitempty" yaml:"scheduleUid,omitempty"`
	Title   string    `json:"title" yaml:"title" validate:"required,max=200"`
	Content string    `json:"content,omitempty" yaml:"content,omitempty" validate:"max=4000"`
	Start   time.Time `json:"startTime" yaml:"startTime" validate:"required"`
	End     time.Time `json:"endTime" yaml:"endTime" validate:"required,gtfield=Start"`
}

// ListSchedules returns the user's calendar. Entries whose start time
// cannot be parsed are dropped.
func (c *Client) ListSchedules(ctx context.Context) ([]Schedule, error) {
	rsp, err := c.http.Get(ctx, c.endpoints.Schedules, nil)
	if err != nil {
		return nil, err
	}
	return c.normalizeSchedules(rsp.Body)
}

// AddSchedule inserts a schedule and returns the server's response body.
func (c *Client) AddSchedule(ctx context.Context, in ScheduleInput) ([]byte, error) {
	if err := c.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	body, err := scheduleBody(in)
	if err != nil {
		return nil, err
	}
	rsp, err := c.http.Post(ctx, c.endpoints.InsertSchedule, body)
	if err != nil {
		return nil, err
	}
	return rsp.Body, nil
}

// UpdateSchedule replaces the schedule identified by in.UID.
func (c *Client) UpdateSchedule(ctx context.Context, in ScheduleInput) ([]byte, error) {
	if in.UID == "" {
		return nil, fmt.Errorf("invalid schedule: scheduleUid is required for update")
	}
	if err := c.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	body, err := scheduleBody(in)
	if err != nil {
		return nil, err
	}
	rsp, err := c.http.Put(ctx, c.endpoints.UpdateSchedule, body)
	if err != nil {
		return nil, err
	}
	return rsp.Body, nil
}

// DeleteSchedule removes a schedule.
func (c *Client) DeleteSchedule(ctx context.Context, uid string) error {
	if uid == "" {
		return fmt.Errorf("scheduleUid is required")
	}
	_, err := c.http.Delete(ctx, c.endpoints.DeleteSchedule, map[string]string{"scheduleUid": uid})
	return err
}

// GenerateSchedules sends free text notes to the server, which extracts
// schedules from them. Any schedules echoed back are returned.
func (c *Client) GenerateSchedules(ctx context.Context, rawText string) ([]Schedule, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "rawText", rawText)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notes: %w", err)
	}
	rsp, err := c.http.DoAuthenticated(ctx, httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   c.endpoints.GenerateSchedule,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	if rsp.Value == nil || isAcknowledgement(rsp.Body) {
		return nil, nil
	}
	return c.normalizeSchedules(rsp.Body)
}

// isAcknowledgement reports whether body is a JSON scalar, or an object
// with no schedule list key at all, such as {"result":"ok"}.
func isAcknowledgement(body []byte) bool {
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return false
	}
	if !root.IsObject() {
		return true
	}
	for _, key := range []string{"data", "schedules", "items"} {
		if root.Get(key).Exists() {
			return false
		}
	}
	return true
}

func scheduleBody(in ScheduleInput) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, v)
		}
	}
	if in.UID != "" {
		set("scheduleUid", in.UID)
	}
	set("title", in.Title)
	set("content", in.Content)
	set("startTime", in.Start.Format(time.RFC3339))
	set("endTime", in.End.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to encode schedule: %w", err)
	}
	return body, nil
}

// scheduleArray locates the schedule list in a response body: either the
// body itself or its data, schedules or items field.
func scheduleArray(body []byte) (gjson.Result, bool) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, false
	}
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return root, true
	}
	if root.IsObject() {
		for _, key := range []string{"data", "schedules", "items"} {
			if v := root.Get(key); v.IsArray() {
				return v, true
			}
		}
	}
	return gjson.Result{}, false
}

func (c *Client) normalizeSchedules(body []byte) ([]Schedule, error) {
	arr, ok := scheduleArray(body)
	if !ok {
		return nil, clienterrors.ErrInvalidResponse.Msg("no schedule list in response")
	}

	schedules := []Schedule{}
	for i, item := range arr.Array() {
		m, ok := item.Value().(map[string]any)
		if !ok {
			continue
		}
		var raw rawSchedule
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &raw,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(m); err != nil {
			log.Debug().Err(err).Int("index", i).Msg("skipping malformed schedule")
			continue
		}
		s, ok := c.toSchedule(raw)
		if !ok {
			log.Debug().Int("index", i).Str("startTime", raw.StartTime).Msg("skipping schedule with invalid start time")
			continue
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}

func (c *Client) toSchedule(raw rawSchedule) (Schedule, bool) {
	startText := raw.StartTime
	if startText == "" {
		startText = raw.CreateDate
	}
	var start time.Time
	if startText == "" {
		start = c.now().UTC()
	} else {
		t, ok := ParseServerTime(startText)
		if !ok {
			return Schedule{}, false
		}
		start = t
	}

	end := start.Add(DefaultDuration)
	if raw.EndTime != "" {
		if t, ok := ParseServerTime(raw.EndTime); ok {
			end = t
		}
	}

	return Schedule{
		UID:          raw.UID,
		Title:        raw.Title,
		Content:      raw.Content,
		RawText:      raw.RawText,
		Start:        start,
		End:          end,
		IsAllDay:     raw.IsAllDay,
		MainCategory: raw.MainCategory,
		SubCategory:  raw.SubCategory,
		Source:       raw.Source,
		CreateDate:   raw.CreateDate,
		ModifyDate:   raw.ModifyDate,
	}, true
}

var serverTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseServerTime parses a server timestamp. Timestamps without a zone are
// UTC.
func ParseServerTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range serverTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
