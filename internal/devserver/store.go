package devserver

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/neekly/neekly/internal/common/apperrors"
	"github.com/neekly/neekly/internal/common/uuid"
)

// serverTimeLayout is how the server renders timestamps: UTC, no zone.
const serverTimeLayout = "2006-01-02T15:04:05"

var (
	errStore            = apperrors.New("store error").SetStatusCode(http.StatusInternalServerError)
	errUserExists       = errStore.New("email already registered").SetStatusCode(http.StatusConflict)
	errBadLogin         = errStore.New("invalid email or password").SetStatusCode(http.StatusUnauthorized)
	errNotFound         = errStore.New("not found").SetStatusCode(http.StatusNotFound)
	errBadRefresh       = errStore.New("refresh token invalid or expired").SetStatusCode(http.StatusUnauthorized)
	errScheduleNotFound = errNotFound.New("schedule not found")
	errReportNotFound   = errNotFound.New("report not found")
)

type user struct {
	Email    string
	UserName string
	hash     []byte
}

type refreshEntry struct {
	email   string
	expires time.Time
}

type scheduleRecord struct {
	ScheduleUID  string `json:"scheduleUid"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	RawText      string `json:"rawText,omitempty"`
	StartTime    string `json:"startTime,omitempty"`
	EndTime      string `json:"endTime,omitempty"`
	IsAllDay     bool   `json:"isAllDay"`
	MainCategory string `json:"mainCategory,omitempty"`
	SubCategory  string `json:"subCategory,omitempty"`
	Source       string `json:"source"`
	CreateDate   string `json:"createDate"`
	ModifyDate   string `json:"modifyDate"`
}

type reportRecord struct {
	ReportUID string `json:"reportUid"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Content   string `json:"content"`
}

// memStore keeps all server state in memory.
type memStore struct {
	mu        sync.Mutex
	users     map[string]*user
	refresh   map[string]refreshEntry
	schedules map[string][]*scheduleRecord
	reports   map[string][]*reportRecord
	now       func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		users:     make(map[string]*user),
		refresh:   make(map[string]refreshEntry),
		schedules: make(map[string][]*scheduleRecord),
		reports:   make(map[string][]*reportRecord),
		now:       now,
	}
}

func (m *memStore) stamp() string {
	return m.now().UTC().Format(serverTimeLayout)
}

func (m *memStore) addUser(email, password, userName string) (*user, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, errStore.MsgErr("unable to hash password", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; ok {
		return nil, errUserExists
	}
	u := &user{Email: email, UserName: userName, hash: hash}
	m.users[email] = u
	return u, nil
}

func (m *memStore) authenticate(email, password string) (*user, error) {
	m.mu.Lock()
	u, ok := m.users[email]
	m.mu.Unlock()
	if !ok {
		return nil, errBadLogin
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return nil, errBadLogin
	}
	return u, nil
}

func (m *memStore) user(email string) (*user, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	return u, ok
}

func (m *memStore) newRefreshToken(email string, ttl time.Duration) (string, time.Time) {
	tok := uuid.NewToken()
	expires := m.now().Add(ttl)
	m.mu.Lock()
	m.refresh[tok] = refreshEntry{email: email, expires: expires}
	m.mu.Unlock()
	return tok, expires
}

func (m *memStore) lookupRefreshToken(tok string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.refresh[tok]
	if !ok {
		return "", errBadRefresh
	}
	if !m.now().Before(e.expires) {
		delete(m.refresh, tok)
		return "", errBadRefresh
	}
	return e.email, nil
}

func (m *memStore) revokeRefreshToken(tok string) {
	m.mu.Lock()
	delete(m.refresh, tok)
	m.mu.Unlock()
}

func (m *memStore) listSchedules(email string) []scheduleRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]scheduleRecord, 0, len(m.schedules[email]))
	for _, s := range m.schedules[email] {
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func (m *memStore) insertSchedule(email string, s scheduleRecord) scheduleRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ScheduleUID = uuid.NewID()
	s.CreateDate = m.stamp()
	s.ModifyDate = s.CreateDate
	if s.Source == "" {
		s.Source = "MANUAL"
	}
	m.schedules[email] = append(m.schedules[email], &s)
	return s
}

func (m *memStore) updateSchedule(email string, s scheduleRecord) (scheduleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.schedules[email] {
		if cur.ScheduleUID == s.ScheduleUID {
			cur.Title = s.Title
			cur.Content = s.Content
			cur.StartTime = s.StartTime
			cur.EndTime = s.EndTime
			cur.ModifyDate = m.stamp()
			return *cur, nil
		}
	}
	return scheduleRecord{}, errScheduleNotFound
}

func (m *memStore) deleteSchedule(email, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.schedules[email]
	for i, cur := range list {
		if cur.ScheduleUID == uid {
			m.schedules[email] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return errScheduleNotFound
}

func (m *memStore) addReport(email string, r reportRecord) reportRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ReportUID = uuid.NewID()
	r.CreatedAt = m.now().UTC().Format(time.DateOnly)
	m.reports[email] = append([]*reportRecord{&r}, m.reports[email]...)
	return r
}

func (m *memStore) listReports(email string) []reportRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]reportRecord, 0, len(m.reports[email]))
	for _, r := range m.reports[email] {
		out = append(out, *r)
	}
	return out
}

func (m *memStore) report(email, uid string) (reportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports[email] {
		if r.ReportUID == uid {
			return *r, nil
		}
	}
	return reportRecord{}, errReportNotFound
}
