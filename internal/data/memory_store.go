package data

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

type memRecord struct {
	job       *model.QueuedJob
	expiresAt time.Time
}

type delayedEntry struct {
	ref   model.JobRef
	dueAt time.Time
	seq   uint64
}

// MemoryStore implements core.JobStore in process memory.
// A single mutex serialises every operation, which makes ClaimNext trivially atomic.
type MemoryStore struct {
	clock core.Clock

	mu         sync.Mutex
	jobs       map[string]memRecord
	ready      map[model.JobPriority][]string
	delayed    []delayedEntry
	seq        uint64
	processing map[string]struct{}
	counters   map[model.Counter]int64
	fireKeys   map[string]time.Time
}

var _ core.JobStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. A nil clock uses system time.
func NewMemoryStore(clock core.Clock) *MemoryStore {
	if clock == nil {
		clock = RealClock{}
	}
	return &MemoryStore{
		clock:      clock,
		jobs:       make(map[string]memRecord),
		ready:      make(map[model.JobPriority][]string),
		processing: make(map[string]struct{}),
		counters:   make(map[model.Counter]int64),
		fireKeys:   make(map[string]time.Time),
	}
}

// SaveJob stores a copy of job, replacing any previous record. A positive ttl expires it.
func (s *MemoryStore) SaveJob(_ context.Context, job *model.QueuedJob, ttl time.Duration) error {
	if job == nil {
		return ErrNilJob
	}
	rec := memRecord{job: job.Clone()}
	if ttl > 0 {
		rec.expiresAt = s.clock.Now().Add(ttl)
	}
	s.mu.Lock()
	s.jobs[job.ID] = rec
	s.mu.Unlock()
	return nil
}

// GetJob returns a copy of the record, or model.ErrJobNotFound when it is missing or expired.
func (s *MemoryStore) GetJob(_ context.Context, id string) (*model.QueuedJob, error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	if !rec.expiresAt.IsZero() && !now.Before(rec.expiresAt) {
		delete(s.jobs, id)
		return nil, model.ErrJobNotFound
	}
	return rec.job.Clone(), nil
}

// PushReady appends the job to the tail of its priority's ready list.
func (s *MemoryStore) PushReady(_ context.Context, ref model.JobRef) error {
	if !ref.Priority.Valid() {
		return ErrUnknownPriority
	}
	s.mu.Lock()
	s.ready[ref.Priority] = append(s.ready[ref.Priority], ref.ID)
	s.mu.Unlock()
	return nil
}

// ScheduleDelayed adds the job to the delayed set, due at dueAt.
func (s *MemoryStore) ScheduleDelayed(_ context.Context, ref model.JobRef, dueAt time.Time) error {
	if !ref.Priority.Valid() {
		return ErrUnknownPriority
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeDelayedLocked(ref.ID)
	s.seq++
	s.delayed = append(s.delayed, delayedEntry{ref: ref, dueAt: dueAt, seq: s.seq})
	return nil
}

// PromoteDue moves up to limit delayed jobs that are due into their ready lists.
func (s *MemoryStore) PromoteDue(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(s.delayed, func(i, j int) bool {
		a, b := s.delayed[i], s.delayed[j]
		if !a.dueAt.Equal(b.dueAt) {
			return a.dueAt.Before(b.dueAt)
		}
		return a.seq < b.seq
	})

	var promoted []string
	n := 0
	for n < len(s.delayed) && !s.delayed[n].dueAt.After(now) {
		if limit > 0 && n >= limit {
			break
		}
		e := s.delayed[n]
		s.ready[e.ref.Priority] = append(s.ready[e.ref.Priority], e.ref.ID)
		promoted = append(promoted, e.ref.ID)
		n++
	}
	s.delayed = s.delayed[n:]
	return promoted, nil
}

// ClaimNext pops the head of the highest non-empty ready list into the processing set.
func (s *MemoryStore) ClaimNext(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range model.Priorities() {
		list := s.ready[p]
		if len(list) == 0 {
			continue
		}
		id := list[0]
		s.ready[p] = list[1:]
		s.processing[id] = struct{}{}
		return id, nil
	}
	return "", model.ErrNoJobsAvailable
}

// ReleaseClaim removes id from the processing set and reports whether it was there.
func (s *MemoryStore) ReleaseClaim(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processing[id]
	delete(s.processing, id)
	return ok, nil
}

// ListProcessing returns the claimed job IDs in sorted order.
func (s *MemoryStore) ListProcessing(_ context.Context) ([]string, error) {
	s.mu.Lock()
	out := make([]string, 0, len(s.processing))
	for id := range s.processing {
		out = append(out, id)
	}
	s.mu.Unlock()
	slices.Sort(out)
	return out, nil
}

// RemoveJob drops the job from every ready list, the delayed set and the processing set.
func (s *MemoryStore) RemoveJob(_ context.Context, ref model.JobRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for p, list := range s.ready {
		kept := list[:0:0]
		for _, id := range list {
			if id == ref.ID {
				found = true
				continue
			}
			kept = append(kept, id)
		}
		s.ready[p] = kept
	}
	if s.removeDelayedLocked(ref.ID) {
		found = true
	}
	if _, ok := s.processing[ref.ID]; ok {
		delete(s.processing, ref.ID)
		found = true
	}
	return found, nil
}

func (s *MemoryStore) removeDelayedLocked(id string) bool {
	for i, e := range s.delayed {
		if e.ref.ID == id {
			s.delayed = slices.Delete(s.delayed, i, i+1)
			return true
		}
	}
	return false
}

// IncrementCounters adds every delta to the queue counters.
func (s *MemoryStore) IncrementCounters(_ context.Context, deltas map[model.Counter]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range deltas {
		s.counters[k] += v
	}
	return nil
}

// Counters returns a copy of the queue counters.
func (s *MemoryStore) Counters(_ context.Context) (map[model.Counter]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.Counter]int64, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out, nil
}

// PurgeFinished deletes up to limit jobs that finished in state before cutoff.
func (s *MemoryStore) PurgeFinished(
	_ context.Context,
	state model.JobState,
	cutoff time.Time,
	limit int,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type candidate struct {
		id string
		at time.Time
	}
	var candidates []candidate
	for id, rec := range s.jobs {
		st := rec.job.Status
		if st.State != state || !state.Terminal() || st.CompletedAt == nil || !st.CompletedAt.Before(cutoff) {
			continue
		}
		candidates = append(candidates, candidate{id: id, at: *st.CompletedAt})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].at.Before(candidates[j].at) })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for _, c := range candidates {
		delete(s.jobs, c.id)
	}
	return int64(len(candidates)), nil
}

// AcquireFireKey sets key for ttl unless an unexpired key already exists.
func (s *MemoryStore) AcquireFireKey(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.fireKeys[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.fireKeys[key] = now.Add(ttl)
	return true, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }
