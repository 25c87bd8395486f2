package runner

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
)

// WriteJSON writes v indented, with non-ASCII and markup characters left
// unescaped, the format the orchestration host exchanges.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// ReadState decodes and validates an iteration state. Both a bare state and
// a full StepOutput are accepted, so the output of one step can be piped into
// the next.
func ReadState(r io.Reader) (etl.IterationState, error) {
	var raw struct {
		etl.IterationState
		State *etl.IterationState `json:"state"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return etl.IterationState{}, fmt.Errorf("decode iteration state: %w", err)
	}

	state := raw.IterationState
	if raw.State != nil {
		state = *raw.State
	}
	if err := state.Validate(); err != nil {
		return etl.IterationState{}, err
	}
	return state, nil
}
