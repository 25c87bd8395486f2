package schedule

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
)

// Element ids of the schedule page.
const (
	headerSelector     = "#ctl00_MainContent_lblHeader"
	firstWeekSelector  = "#ctl00_MainContent_FirstScheduleTable"
	secondWeekSelector = "#ctl00_MainContent_SecondScheduleTable"
)

// Parse errors. They are always wrapped into an etl parse failure.
var (
	ErrMissingHeader = errors.New("schedule header not found")
	ErrMissingTable  = errors.New("schedule table not found")
	ErrMalformedRow  = errors.New("malformed schedule row")
)

// Lesson types printed after the room.
var lessonTypes = map[string]struct{}{
	"Лек":  {},
	"Прак": {},
	"Лаб":  {},
}

// Parse reads one schedule page. Any structural problem is reported as an
// etl parse failure keyed by id.
func Parse(r io.Reader, kind etl.EntityKind, id uuid.UUID) (Schedule, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Schedule{}, etl.Parse(id.String(), fmt.Errorf("read document: %w", err))
	}

	name, err := parseHeader(doc)
	if err != nil {
		return Schedule{}, etl.Parse(id.String(), err)
	}

	first, err := parseWeek(doc, firstWeekSelector)
	if err != nil {
		return Schedule{}, etl.Parse(id.String(), fmt.Errorf("first week: %w", err))
	}
	second, err := parseWeek(doc, secondWeekSelector)
	if err != nil {
		return Schedule{}, etl.Parse(id.String(), fmt.Errorf("second week: %w", err))
	}

	return Schedule{
		ID:         id,
		Kind:       kind,
		Name:       name,
		FirstWeek:  first,
		SecondWeek: second,
	}, nil
}

func parseHeader(doc *goquery.Document) (string, error) {
	header := doc.Find(headerSelector)
	if header.Length() == 0 {
		return "", ErrMissingHeader
	}
	text := normalizeSpace(header.Text())
	if i := strings.LastIndex(text, ":"); i >= 0 {
		text = text[i+1:]
	} else if i := strings.Index(text, " для "); i >= 0 {
		text = text[i+len(" для "):]
	}
	name := strings.TrimSpace(text)
	if name == "" {
		return "", ErrMissingHeader
	}
	return name, nil
}

func parseWeek(doc *goquery.Document, selector string) (Week, error) {
	table := doc.Find(selector)
	if table.Length() == 0 {
		return Week{}, ErrMissingTable
	}

	rows := table.Find("tr")
	if rows.Length() == 0 {
		return Week{}, ErrMissingTable
	}

	// The header row names the days; column 1 is Monday.
	dayCount := rows.First().Find("td, th").Length() - 1
	if dayCount <= 0 {
		return Week{}, fmt.Errorf("%w: no day columns", ErrMalformedRow)
	}
	week := Week{Days: make([]Day, dayCount)}
	for i := range week.Days {
		week.Days[i] = Day{Weekday: time.Weekday((i + 1) % 7), Pairs: []Pair{}}
	}

	var rowErr error
	rows.Slice(1, goquery.ToEnd).EachWithBreak(func(i int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return true
		}
		number, start, err := parseSlot(cells.First())
		if err != nil {
			rowErr = fmt.Errorf("row %d: %w", i+1, err)
			return false
		}
		cells.Slice(1, goquery.ToEnd).Each(func(col int, cell *goquery.Selection) {
			if col >= dayCount {
				return
			}
			pair, ok := parsePair(cell)
			if !ok {
				return
			}
			pair.Number = number
			pair.Start = start
			week.Days[col].Pairs = append(week.Days[col].Pairs, pair)
		})
		return true
	})
	if rowErr != nil {
		return Week{}, rowErr
	}
	return week, nil
}

// parseSlot reads the "1<br>08:30" cell opening every row.
func parseSlot(cell *goquery.Selection) (int, string, error) {
	parts := lines(cell)
	if len(parts) == 0 {
		return 0, "", fmt.Errorf("%w: empty slot cell", ErrMalformedRow)
	}
	number, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", fmt.Errorf("%w: slot number %q", ErrMalformedRow, parts[0])
	}
	start := ""
	if len(parts) > 1 {
		start = parts[1]
	}
	return number, start, nil
}

func parsePair(cell *goquery.Selection) (Pair, bool) {
	if normalizeSpace(cell.Text()) == "" {
		return Pair{}, false
	}

	var pair Pair
	anchors := cell.Find("a")
	if anchors.Length() == 0 {
		pair.Subject = normalizeSpace(cell.Text())
		return pair, true
	}

	subject := anchors.First()
	if title, ok := subject.Attr("title"); ok && strings.TrimSpace(title) != "" {
		pair.Subject = normalizeSpace(title)
	} else {
		pair.Subject = normalizeSpace(subject.Text())
	}

	anchors.Slice(1, goquery.ToEnd).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		text := normalizeSpace(a.Text())
		if text == "" {
			return
		}
		switch {
		case strings.Contains(href, "ViewSchedule.aspx?v="):
			pair.Teachers = append(pair.Teachers, text)
		case strings.Contains(href, "ViewSchedule.aspx?g="):
			pair.Groups = append(pair.Groups, text)
		case strings.Contains(href, "maps"):
			room, lessonType := splitRoom(text)
			if room != "" {
				pair.Rooms = append(pair.Rooms, room)
			}
			if lessonType != "" {
				pair.Type = lessonType
			}
		}
	})
	return pair, true
}

// splitRoom splits "228-18 Лек" into the room and the lesson type.
func splitRoom(text string) (string, string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", ""
	}
	last := fields[len(fields)-1]
	if _, ok := lessonTypes[last]; ok {
		return strings.Join(fields[:len(fields)-1], " "), last
	}
	return text, ""
}

// lines returns the trimmed, non-empty text segments of sel separated by <br>.
func lines(sel *goquery.Selection) []string {
	var out []string
	var current strings.Builder
	flush := func() {
		if s := normalizeSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
	}
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		node := child.Get(0)
		if node.Type == html.ElementNode && node.Data == "br" {
			flush()
			return
		}
		current.WriteString(" ")
		current.WriteString(child.Text())
	})
	flush()
	return out
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
