package etl

import (
	"fmt"
)

// IterationState is the resumable state of a chunked harvest. The
// orchestration host owns it between steps and hands it back as plain data.
type IterationState struct {
	PrefixChunks [][]string   `json:"prefixChunks"`
	Index        int          `json:"index"`
	Count        int          `json:"count"`
	Accumulated  StageSummary `json:"accumulated"`
}

// ChunkPrefixes partitions prefixes into consecutive chunks of at most size elements.
func ChunkPrefixes(prefixes []string, size int) ([][]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidChunkSize, size)
	}
	if prefixes == nil {
		return nil, ErrNilPrefixes
	}

	chunks := make([][]string, 0, (len(prefixes)+size-1)/size)
	for start := 0; start < len(prefixes); start += size {
		end := start + size
		if end > len(prefixes) {
			end = len(prefixes)
		}
		chunk := make([]string, end-start)
		copy(chunk, prefixes[start:end])
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// NewIterationState builds the initial state: index 0, zero accumulated summary.
func NewIterationState(prefixes []string, chunkSize int) (IterationState, error) {
	chunks, err := ChunkPrefixes(prefixes, chunkSize)
	if err != nil {
		return IterationState{}, err
	}
	return IterationState{
		PrefixChunks: chunks,
		Index:        0,
		Count:        len(chunks),
	}, nil
}

// Validate checks the state invariants, typically after decoding host input.
func (s IterationState) Validate() error {
	if s.Count != len(s.PrefixChunks) {
		return fmt.Errorf("%w: count %d does not match %d chunks", ErrInvalidState, s.Count, len(s.PrefixChunks))
	}
	if s.Index < 0 || s.Index > s.Count {
		return fmt.Errorf("%w: index %d outside [0, %d]", ErrInvalidState, s.Index, s.Count)
	}
	return nil
}

// Done reports whether every chunk has been processed.
func (s IterationState) Done() bool {
	return s.Index >= s.Count
}

// Current returns the chunk the next step must process.
func (s IterationState) Current() ([]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Done() {
		return nil, ErrIterationDone
	}
	return s.PrefixChunks[s.Index], nil
}

// Step folds the summary produced for the current chunk into the running total
// and advances to the next chunk. It performs no I/O.
func Step(s IterationState, summary StageSummary) (IterationState, error) {
	if err := s.Validate(); err != nil {
		return s, err
	}
	if s.Done() {
		return s, ErrIterationDone
	}

	iterationStepsTotal.Inc()
	return IterationState{
		PrefixChunks: s.PrefixChunks,
		Index:        s.Index + 1,
		Count:        s.Count,
		Accumulated:  Combine(s.Accumulated, summary),
	}, nil
}
