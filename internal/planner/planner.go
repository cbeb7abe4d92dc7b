// Package planner wraps the schedule and report endpoints of the neekly
// server. Every call goes through the authenticated request pipeline; this
// package only builds request bodies and normalizes the loosely shaped
// responses into typed values.
package planner

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/neekly/neekly/internal/common/httpclient"
)

// ChatTimeout bounds the weekly chat call, which waits for the server to
// run a language model.
const ChatTimeout = 600 * time.Second

// Endpoints are the server paths used by the planner.
type Endpoints struct {
	Schedules        string `yaml:"schedules,omitempty"`
	InsertSchedule   string `yaml:"insert_schedule,omitempty"`
	UpdateSchedule   string `yaml:"update_schedule,omitempty"`
	DeleteSchedule   string `yaml:"delete_schedule,omitempty"`
	GenerateSchedule string `yaml:"generate_schedule,omitempty"`
	Chat             string `yaml:"chat,omitempty"`
	Reports          string `yaml:"reports,omitempty"`
	ReportDetail     string `yaml:"report_detail,omitempty"`
	CreateReport     string `yaml:"create_report,omitempty"`
}

// DefaultEndpoints returns the paths served by the neekly backend.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Schedules:        "/api/schedule/manual/calendar",
		InsertSchedule:   "/api/schedule/manual/insert",
		UpdateSchedule:   "/api/schedule/manual/update",
		DeleteSchedule:   "/api/schedule/manual/delete",
		GenerateSchedule: "/api/schedule",
		Chat:             "/api/report/chat",
		Reports:          "/api/report",
		ReportDetail:     "/api/report/detail",
		CreateReport:     "/api/reports/create",
	}
}

// Merge returns e with empty fields taken from defaults.
func (e Endpoints) Merge(defaults Endpoints) Endpoints {
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&e.Schedules, defaults.Schedules)
	fill(&e.InsertSchedule, defaults.InsertSchedule)
	fill(&e.UpdateSchedule, defaults.UpdateSchedule)
	fill(&e.DeleteSchedule, defaults.DeleteSchedule)
	fill(&e.GenerateSchedule, defaults.GenerateSchedule)
	fill(&e.Chat, defaults.Chat)
	fill(&e.Reports, defaults.Reports)
	fill(&e.ReportDetail, defaults.ReportDetail)
	fill(&e.CreateReport, defaults.CreateReport)
	return e
}

// Client calls the planner endpoints.
type Client struct {
	http      httpclient.HTTPClientInterface
	endpoints Endpoints
	validate  *validator.Validate
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoints overrides the endpoint paths.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) {
		c.endpoints = e.Merge(DefaultEndpoints())
	}
}

// WithClock overrides the time source used for defaults.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a planner client over the request pipeline.
func New(hc httpclient.HTTPClientInterface, opts ...Option) *Client {
	c := &Client{
		http:      hc,
		endpoints: DefaultEndpoints(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
