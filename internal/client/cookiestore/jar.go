// Package cookiestore provides an http.CookieJar that survives process
// restarts. The server keeps its refresh credential in an HttpOnly cookie;
// persisting the jar lets a later invocation of the CLI refresh a session
// the same way a browser would, without the client ever reading the cookie.
package cookiestore

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
	"gopkg.in/yaml.v3"
)

type storedCookie struct {
	URL      string    `yaml:"url"`
	Name     string    `yaml:"name"`
	Value    string    `yaml:"value"`
	Path     string    `yaml:"path,omitempty"`
	Domain   string    `yaml:"domain,omitempty"`
	Expires  time.Time `yaml:"expires,omitempty"`
	Secure   bool      `yaml:"secure,omitempty"`
	HttpOnly bool      `yaml:"http_only,omitempty"`
}

func (c storedCookie) key() string {
	return c.URL + "|" + c.Domain + "|" + c.Path + "|" + c.Name
}

func (c storedCookie) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}

// Jar is a cookie jar mirrored to a YAML file. An empty path keeps the jar
// in memory only.
type Jar struct {
	mu      sync.Mutex
	inner   *cookiejar.Jar
	path    string
	cookies map[string]storedCookie
	now     func() time.Time
}

var _ http.CookieJar = (*Jar)(nil)

// New creates a jar and loads any cookies previously saved at path.
// Cookies that expired while the jar was on disk are dropped.
func New(path string) (*Jar, error) {
	inner, err := newInner()
	if err != nil {
		return nil, err
	}
	j := &Jar{
		inner:   inner,
		path:    path,
		cookies: map[string]storedCookie{},
		now:     time.Now,
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func newInner() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	inner := j.inner
	j.mu.Unlock()
	return inner.Cookies(u)
}

// SetCookies implements http.CookieJar. Every change is written through to
// disk; write failures are logged because they only affect later runs.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner.SetCookies(u, cookies)

	origin := (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
	now := j.now()
	for _, c := range cookies {
		sc := storedCookie{
			URL:      origin,
			Name:     c.Name,
			Value:    c.Value,
			Path:     cookiePath(u, c.Path),
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if c.MaxAge > 0 {
			sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if c.MaxAge < 0 || (!sc.Expires.IsZero() && !sc.Expires.After(now)) {
			delete(j.cookies, sc.key())
			continue
		}
		j.cookies[sc.key()] = sc
	}
	if err := j.save(); err != nil {
		log.Error().Err(err).Msg("unable to persist cookies")
	}
}

// cookiePath returns the path a cookie is scoped to. Without a usable Path
// attribute that is the directory of the request path (RFC 6265 5.1.4).
func cookiePath(u *url.URL, attr string) string {
	if strings.HasPrefix(attr, "/") {
		return attr
	}
	p := u.Path
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}

// Clear drops every cookie from memory and disk.
func (j *Jar) Clear() error {
	inner, err := newInner()
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner = inner
	j.cookies = map[string]storedCookie{}
	if j.path == "" {
		return nil
	}
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "unable to remove cookie file")
	}
	return nil
}

// Len returns the number of cookies held.
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.cookies)
}

func (j *Jar) load() error {
	if j.path == "" {
		return nil
	}
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "unable to read cookie file")
	}
	var stored []storedCookie
	if err := yaml.Unmarshal(data, &stored); err != nil {
		log.Warn().Err(err).Str("path", j.path).Msg("ignoring corrupt cookie file")
		return nil
	}
	now := j.now()
	for _, sc := range stored {
		if !sc.Expires.IsZero() && !sc.Expires.After(now) {
			continue
		}
		u, err := url.Parse(sc.URL)
		if err != nil {
			continue
		}
		j.inner.SetCookies(u, []*http.Cookie{sc.cookie()})
		j.cookies[sc.key()] = sc
	}
	return nil
}

func (j *Jar) save() error {
	if j.path == "" {
		return nil
	}
	stored := make([]storedCookie, 0, len(j.cookies))
	for _, sc := range j.cookies {
		stored = append(stored, sc)
	}
	data, err := yaml.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, "unable to encode cookies")
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return errors.Wrap(err, "unable to create cookie directory")
	}
	return errors.Wrap(os.WriteFile(j.path, data, 0600), "unable to write cookie file")
}
