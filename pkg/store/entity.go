package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/schedule"
)

// ScheduleEntity is the stored form of a schedule. The weeks are kept as a
// JSON document; name and pair count are columns for lookups.
type ScheduleEntity struct {
	ID        string
	Kind      etl.EntityKind
	Name      string
	PairCount int
	Payload   []byte
	UpdatedAt time.Time
}

// ToEntity maps a parsed schedule onto its storage entity.
func ToEntity(s schedule.Schedule, now time.Time) (ScheduleEntity, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return ScheduleEntity{}, fmt.Errorf("encode schedule %s: %w", s.ID, err)
	}
	return ScheduleEntity{
		ID:        s.ID.String(),
		Kind:      s.Kind,
		Name:      s.Name,
		PairCount: s.PairCount(),
		Payload:   payload,
		UpdatedAt: now,
	}, nil
}

// Schedule decodes the stored payload.
func (e ScheduleEntity) Schedule() (schedule.Schedule, error) {
	var s schedule.Schedule
	if err := json.Unmarshal(e.Payload, &s); err != nil {
		return schedule.Schedule{}, fmt.Errorf("decode schedule %s: %w", e.ID, err)
	}
	return s, nil
}

func tableFor(kind etl.EntityKind) (string, error) {
	switch kind {
	case etl.KindGroup:
		return "group_schedules", nil
	case etl.KindTeacher:
		return "teacher_schedules", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
