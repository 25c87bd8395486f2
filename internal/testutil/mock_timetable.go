// Package testutil provides testing utilities for the schedule ETL.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Paths served by the timetable site.
const (
	GroupListPath        = "/Schedules/ScheduleGroupSelection.aspx/GetGroups"
	TeacherListPath      = "/Schedules/LecturerSelection.aspx/GetLecturers"
	GroupSelectionPath   = "/Schedules/ScheduleGroupSelection.aspx"
	TeacherSelectionPath = "/Schedules/LecturerSelection.aspx"
	ViewSchedulePath     = "/Schedules/ViewSchedule.aspx"
)

// Form fields posted to the selection pages.
const (
	GroupNameField   = "ctl00$MainContent$ctl00$txtboxGroup"
	TeacherNameField = "ctl00$MainContent$txtboxLecturer"
)

// MockResponse defines a canned response for one path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockTimetable is a configurable in-process timetable site.
type MockTimetable struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	groups    map[string][]uuid.UUID
	teachers  map[string][]uuid.UUID
	schedules map[uuid.UUID]string
	failures  map[string]int

	requests  map[string]int
	active    atomic.Int64
	maxActive atomic.Int64

	// Delay is applied to every request before it is handled.
	Delay time.Duration
}

// NewMockTimetable starts a new mock timetable site.
func NewMockTimetable() *MockTimetable {
	mock := &MockTimetable{
		handlers:  make(map[string]func(w http.ResponseWriter, r *http.Request)),
		groups:    make(map[string][]uuid.UUID),
		teachers:  make(map[string][]uuid.UUID),
		schedules: make(map[uuid.UUID]string),
		failures:  make(map[string]int),
		requests:  make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := mock.active.Add(1)
		defer mock.active.Add(-1)
		for {
			max := mock.maxActive.Load()
			if n <= max || mock.maxActive.CompareAndSwap(max, n) {
				break
			}
		}

		mock.mu.Lock()
		mock.requests[r.URL.Path]++
		delay := mock.Delay
		if remaining := mock.failures[r.URL.Path]; remaining > 0 {
			mock.failures[r.URL.Path] = remaining - 1
			mock.mu.Unlock()
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockTimetable) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockTimetable) Close() {
	m.server.Close()
}

// AddGroup registers a group name with its schedule ids.
func (m *MockTimetable) AddGroup(name string, ids ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[name] = append(m.groups[name], ids...)
}

// AddTeacher registers a teacher name with its schedule ids.
func (m *MockTimetable) AddTeacher(name string, ids ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teachers[name] = append(m.teachers[name], ids...)
}

// SetSchedule sets the page served for a schedule id.
func (m *MockTimetable) SetSchedule(id uuid.UUID, page string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[id] = page
}

// FailNext makes the next n requests to path answer 503.
func (m *MockTimetable) FailNext(path string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = n
}

// SetHandler sets a custom handler for a specific path.
func (m *MockTimetable) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockTimetable) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns the number of requests made to path.
func (m *MockTimetable) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[path]
}

// TotalRequests returns the number of requests made to the server.
func (m *MockTimetable) TotalRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.requests {
		total += n
	}
	return total
}

// MaxInFlight returns the highest number of concurrent requests observed.
func (m *MockTimetable) MaxInFlight() int64 {
	return m.maxActive.Load()
}

func (m *MockTimetable) defaultHandler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case GroupListPath:
		m.serveList(w, r, m.groups)
	case TeacherListPath:
		m.serveList(w, r, m.teachers)
	case GroupSelectionPath:
		m.serveSelection(w, r, m.groups, GroupNameField, "g")
	case TeacherSelectionPath:
		m.serveSelection(w, r, m.teachers, TeacherNameField, "v")
	case ViewSchedulePath:
		m.serveSchedule(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (m *MockTimetable) serveList(w http.ResponseWriter, r *http.Request, entities map[string][]uuid.UUID) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		PrefixText string `json:"prefixText"`
		Count      int    `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.RLock()
	names := make([]string, 0)
	for name := range entities {
		if strings.HasPrefix(name, req.PrefixText) {
			names = append(names, name)
		}
	}
	m.mu.RUnlock()
	sort.Strings(names)
	if req.Count > 0 && len(names) > req.Count {
		names = names[:req.Count]
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string]any{"d": names})
}

func (m *MockTimetable) serveSelection(w http.ResponseWriter, r *http.Request, entities map[string][]uuid.UUID, field, param string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodGet {
		fmt.Fprint(w, SelectionPage())
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("__VIEWSTATE") != ViewState {
		http.Error(w, "invalid viewstate", http.StatusInternalServerError)
		return
	}

	m.mu.RLock()
	ids := entities[r.PostForm.Get(field)]
	m.mu.RUnlock()

	switch len(ids) {
	case 0:
		fmt.Fprint(w, SelectionPage())
	case 1:
		target := ViewSchedulePath + "?" + url.Values{param: {ids[0].String()}}.Encode()
		http.Redirect(w, r, target, http.StatusFound)
	default:
		fmt.Fprint(w, ChoicePage(param, ids...))
	}
}

func (m *MockTimetable) serveSchedule(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("g")
	if raw == "" {
		raw = r.URL.Query().Get("v")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	m.mu.RLock()
	page, ok := m.schedules[id]
	m.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, page)
}
