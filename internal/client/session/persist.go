package session

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Persisted storage keys. They mirror the storage layout used by the web
// client so that a session file can be inspected with the same names.
const (
	KeyAccessToken  = "neekly_access_token"
	KeyUserInfo     = "neekly_user_info"
	KeyRefreshToken = "neekly_refresh_token" // legacy, only ever removed
)

// Persisted is the on-disk form of a session. UserInfo holds the identity as
// a JSON blob.
type Persisted struct {
	AccessToken  string `yaml:"neekly_access_token,omitempty"`
	UserInfo     string `yaml:"neekly_user_info,omitempty"`
	RefreshToken string `yaml:"neekly_refresh_token,omitempty"`
}

// Persister mirrors session state to durable storage so that a new process
// can restore the session without logging in again.
type Persister interface {
	// Load returns nil and no error when nothing has been stored.
	Load() (*Persisted, error)
	Save(p Persisted) error
	// Clear removes every persisted key. Clearing empty storage is not an error.
	Clear() error
}

// FilePersister stores the session as a YAML document readable only by the
// current user.
type FilePersister struct {
	path string
}

var _ Persister = (*FilePersister)(nil)

// NewFilePersister returns a persister backed by the file at path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Path returns the backing file path.
func (f *FilePersister) Path() string {
	return f.path
}

func (f *FilePersister) Load() (*Persisted, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "unable to read session file")
	}
	var p Persisted
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "unable to parse session file")
	}
	return &p, nil
}

func (f *FilePersister) Save(p Persisted) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return errors.Wrap(err, "unable to create session directory")
	}
	data, err := yaml.Marshal(&p)
	if err != nil {
		return errors.Wrap(err, "unable to encode session")
	}
	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return errors.Wrap(err, "unable to write session file")
	}
	return nil
}

func (f *FilePersister) Clear() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "unable to remove session file")
	}
	return nil
}
