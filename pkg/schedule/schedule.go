// Package schedule models timetable documents and parses them from the
// timetable site's HTML.
package schedule

import (
	"time"

	"github.com/google/uuid"

	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
)

// Schedule is one fetched timetable of a group or a teacher.
type Schedule struct {
	ID         uuid.UUID      `json:"id"`
	Kind       etl.EntityKind `json:"kind"`
	Name       string         `json:"name"`
	FirstWeek  Week           `json:"firstWeek"`
	SecondWeek Week           `json:"secondWeek"`
}

// Week holds the days of one week of the two-week rotation.
type Week struct {
	Days []Day `json:"days"`
}

// Day is a weekday column of the timetable. Days without pairs are kept so
// that every week has the same shape.
type Day struct {
	Weekday time.Weekday `json:"weekday"`
	Pairs   []Pair       `json:"pairs"`
}

// Pair is one class slot.
type Pair struct {
	Number   int      `json:"number"`
	Start    string   `json:"start"`
	Subject  string   `json:"subject"`
	Type     string   `json:"type,omitempty"`
	Teachers []string `json:"teachers,omitempty"`
	Groups   []string `json:"groups,omitempty"`
	Rooms    []string `json:"rooms,omitempty"`
}

// PairCount returns the number of pairs across both weeks.
func (s Schedule) PairCount() int {
	n := 0
	for _, w := range []Week{s.FirstWeek, s.SecondWeek} {
		for _, d := range w.Days {
			n += len(d.Pairs)
		}
	}
	return n
}
