package etl

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type fakeRecord struct {
	ID uuid.UUID
}

// fakeDirectory is an in-memory Directory that also tracks in-flight calls.
type fakeDirectory struct {
	kind EntityKind

	names     map[string][]string
	nameErrs  map[string]error
	ids       map[string]uuid.UUID
	idErrs    map[string]error
	fetchErrs map[uuid.UUID]error

	delay time.Duration

	mu         sync.Mutex
	fetched    []uuid.UUID
	active     atomic.Int64
	maxActive  atomic.Int64
	totalCalls atomic.Int64
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		kind:      KindGroup,
		names:     map[string][]string{},
		nameErrs:  map[string]error{},
		ids:       map[string]uuid.UUID{},
		idErrs:    map[string]error{},
		fetchErrs: map[uuid.UUID]error{},
	}
}

func (f *fakeDirectory) enter() func() {
	f.totalCalls.Add(1)
	n := f.active.Add(1)
	for {
		max := f.maxActive.Load()
		if n <= max || f.maxActive.CompareAndSwap(max, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.active.Add(-1) }
}

func (f *fakeDirectory) Kind() EntityKind { return f.kind }

func (f *fakeDirectory) ListNames(ctx context.Context, prefix string) ([]string, error) {
	defer f.enter()()
	if err := f.nameErrs[prefix]; err != nil {
		return nil, err
	}
	return f.names[prefix], nil
}

func (f *fakeDirectory) ResolveID(ctx context.Context, name string) (uuid.UUID, error) {
	defer f.enter()()
	if err := f.idErrs[name]; err != nil {
		return uuid.Nil, err
	}
	id, ok := f.ids[name]
	if !ok {
		return uuid.Nil, NotFound(f.kind, name)
	}
	return id, nil
}

func (f *fakeDirectory) FetchSchedule(ctx context.Context, id uuid.UUID) (fakeRecord, error) {
	defer f.enter()()
	if err := f.fetchErrs[id]; err != nil {
		return fakeRecord{}, err
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()
	return fakeRecord{ID: id}, nil
}

func (f *fakeDirectory) fetchedIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uuid.UUID, len(f.fetched))
	copy(out, f.fetched)
	return out
}

var errBoom = errors.New("boom")
