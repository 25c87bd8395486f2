package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/schedule"
)

const viewSchedulePath = "/Schedules/ViewSchedule.aspx"

// endpoints are the kind-specific pages of the timetable site.
type endpoints struct {
	kind          etl.EntityKind
	listPath      string
	selectionPath string
	nameField     string
	submitField   string
	idParam       string
}

var (
	groupEndpoints = endpoints{
		kind:          etl.KindGroup,
		listPath:      "/Schedules/ScheduleGroupSelection.aspx/GetGroups",
		selectionPath: "/Schedules/ScheduleGroupSelection.aspx",
		nameField:     "ctl00$MainContent$ctl00$txtboxGroup",
		submitField:   "ctl00$MainContent$ctl00$btnShowSchedule",
		idParam:       "g",
	}
	teacherEndpoints = endpoints{
		kind:          etl.KindTeacher,
		listPath:      "/Schedules/LecturerSelection.aspx/GetLecturers",
		selectionPath: "/Schedules/LecturerSelection.aspx",
		nameField:     "ctl00$MainContent$txtboxLecturer",
		submitField:   "ctl00$MainContent$btnSchedule",
		idParam:       "v",
	}
)

const submitValue = "Розклад занять"

// Directory resolves one entity kind against the timetable site.
type Directory struct {
	client *Client
	ep     endpoints
}

var _ etl.Directory[schedule.Schedule] = (*Directory)(nil)

// NewGroupDirectory returns the student group directory.
func NewGroupDirectory(c *Client) *Directory {
	return &Directory{client: c, ep: groupEndpoints}
}

// NewTeacherDirectory returns the lecturer directory.
func NewTeacherDirectory(c *Client) *Directory {
	return &Directory{client: c, ep: teacherEndpoints}
}

// Kind reports which entities this directory lists.
func (d *Directory) Kind() etl.EntityKind {
	return d.ep.kind
}

// ListNames returns the names starting with prefix.
func (d *Directory) ListNames(ctx context.Context, prefix string) ([]string, error) {
	body, err := json.Marshal(map[string]any{
		"prefixText": prefix,
		"count":      d.client.config.ListCount,
	})
	if err != nil {
		return nil, fmt.Errorf("encode list request: %w", err)
	}

	p, err := d.client.do(ctx, request{method: http.MethodPost, path: d.ep.listPath, body: body})
	if err != nil {
		return nil, etl.Communication(prefix, err)
	}

	var out struct {
		D []string `json:"d"`
	}
	if err := json.Unmarshal(p.body, &out); err != nil {
		return nil, etl.Parse(prefix, fmt.Errorf("decode name list: %w", err))
	}
	if out.D == nil {
		return []string{}, nil
	}
	return out.D, nil
}

// ResolveID submits the selection form for name and returns the first
// schedule id the site offers.
func (d *Directory) ResolveID(ctx context.Context, name string) (uuid.UUID, error) {
	form, err := d.selectionForm(ctx, name)
	if err != nil {
		return uuid.Nil, err
	}
	form.Set(d.ep.nameField, name)
	form.Set(d.ep.submitField, submitValue)

	p, err := d.client.do(ctx, request{method: http.MethodPost, path: d.ep.selectionPath, form: form})
	if err != nil {
		return uuid.Nil, etl.Communication(name, err)
	}

	ids, err := d.scheduleIDs(p)
	if err != nil {
		return uuid.Nil, etl.Parse(name, err)
	}
	if len(ids) == 0 {
		return uuid.Nil, etl.NotFound(d.ep.kind, name)
	}
	if len(ids) > 1 {
		d.client.logger.Debug().
			Str("kind", string(d.ep.kind)).
			Str("name", name).
			Int("schedule_ids", len(ids)).
			Msg("Several schedules for one name, taking the first")
	}
	return ids[0], nil
}

// FetchSchedule downloads and parses one schedule page.
func (d *Directory) FetchSchedule(ctx context.Context, id uuid.UUID) (schedule.Schedule, error) {
	query := url.Values{d.ep.idParam: []string{id.String()}}
	p, err := d.client.do(ctx, request{method: http.MethodGet, path: viewSchedulePath, query: query})
	if err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return schedule.Schedule{}, etl.NotFound(d.ep.kind, id.String())
		}
		return schedule.Schedule{}, etl.Communication(id.String(), err)
	}
	return schedule.Parse(bytes.NewReader(p.body), d.ep.kind, id)
}

// selectionForm fetches the selection page and returns its hidden fields.
func (d *Directory) selectionForm(ctx context.Context, name string) (url.Values, error) {
	p, err := d.client.do(ctx, request{method: http.MethodGet, path: d.ep.selectionPath})
	if err != nil {
		return nil, etl.Communication(name, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return nil, etl.Parse(name, fmt.Errorf("read selection page: %w", err))
	}

	form := url.Values{}
	doc.Find(`input[type="hidden"]`).Each(func(_ int, input *goquery.Selection) {
		fieldName, ok := input.Attr("name")
		if !ok || fieldName == "" {
			return
		}
		value, _ := input.Attr("value")
		form.Set(fieldName, value)
	})
	if form.Get("__VIEWSTATE") == "" {
		return nil, etl.Parse(name, errors.New("selection page has no view state"))
	}
	return form, nil
}

// scheduleIDs reads ids from the redirect target or, when the site lists
// several schedules, from the links on the page.
func (d *Directory) scheduleIDs(p *page) ([]uuid.UUID, error) {
	if p.url != nil && strings.HasSuffix(p.url.Path, viewSchedulePath) {
		if raw := p.url.Query().Get(d.ep.idParam); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("schedule id in %q: %w", p.url, err)
			}
			return []uuid.UUID{id}, nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return nil, fmt.Errorf("read selection result: %w", err)
	}

	var ids []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	doc.Find(`a[href*="ViewSchedule.aspx"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		link, err := url.Parse(href)
		if err != nil {
			return
		}
		id, err := uuid.Parse(link.Query().Get(d.ep.idParam))
		if err != nil || id == uuid.Nil {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	})
	return ids, nil
}
