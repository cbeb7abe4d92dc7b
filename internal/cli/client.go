package cli

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/neekly/neekly/internal/client/auth"
	"github.com/neekly/neekly/internal/client/authapi"
	"github.com/neekly/neekly/internal/client/cookiestore"
	"github.com/neekly/neekly/internal/client/session"
	"github.com/neekly/neekly/internal/common/httpclient"
	"github.com/neekly/neekly/internal/planner"
)

// Client bundles the session stack and the planner API. It is built once
// per command invocation and shared by everything the command calls.
type Client struct {
	Config   *Config
	Store    *session.Store
	Jar      *cookiestore.Jar
	AuthAPI  *authapi.Client
	Auth     *auth.Service
	Pipeline *httpclient.HTTPClient
	Planner  *planner.Client
}

// ClientOption configures NewClient.
type ClientOption func(*clientOptions)

type clientOptions struct {
	transport http.RoundTripper
	storeOpts []session.Option
}

// WithTransport sends every request through rt instead of the network.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) {
		o.transport = rt
	}
}

// WithStoreOptions passes options to the session store.
func WithStoreOptions(opts ...session.Option) ClientOption {
	return func(o *clientOptions) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// NewClient restores the persisted session and wires the auth API client,
// the auth service, the request pipeline and the planner API around it.
// The auth API client and the pipeline share one cookie jar.
func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("no configuration loaded")
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	store := session.NewStore(session.NewFilePersister(cfg.SessionPath()), o.storeOpts...)
	store.Restore()

	jar, err := cookiestore.New(cfg.CookiePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie file: %w", err)
	}

	transport := o.transport
	if transport == nil && cfg.InsecureSkipVerify {
		transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}

	api := authapi.New(cfg.GetServerURL(), store, &http.Client{Jar: jar, Transport: transport},
		authapi.WithEndpoints(cfg.Endpoints.Auth))
	svc := auth.NewService(store, api)
	pipeline := httpclient.NewClientWithOptions(cfg, svc, httpclient.ClientOptions{
		Jar:       jar,
		Transport: transport,
	})

	return &Client{
		Config:   cfg,
		Store:    store,
		Jar:      jar,
		AuthAPI:  api,
		Auth:     svc,
		Pipeline: pipeline,
		Planner:  planner.New(pipeline, planner.WithEndpoints(cfg.Endpoints.Planner)),
	}, nil
}

// withRequestTimeout bounds calls that go to the auth endpoints directly
// rather than through the pipeline.
func (c *Client) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.Config.GetRequestTimeout())
}

// clearLocalSession removes the persisted session and refresh cookie.
func clearLocalSession(cfg *Config) error {
	session.NewStore(session.NewFilePersister(cfg.SessionPath())).Clear()
	jar, err := cookiestore.New(cfg.CookiePath())
	if err != nil {
		return errors.Wrap(err, "failed to open cookie file")
	}
	if err := jar.Clear(); err != nil {
		return errors.Wrap(err, "failed to clear cookies")
	}
	return nil
}
