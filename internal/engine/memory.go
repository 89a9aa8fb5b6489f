package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/internal/assessments"
)

// MemoryStore is an in-memory Store used by tests and local experiments.
// It mirrors the lease semantics of PostgresStore under a single mutex.
type MemoryStore struct {
	mu           sync.Mutex
	rows         map[uuid.UUID]*assessments.Assessment
	results      map[uuid.UUID][]assessments.Result
	leases       map[uuid.UUID]lease
	nextAttempts map[uuid.UUID]time.Time
	now          func() time.Time
}

type lease struct {
	owner   string
	expires time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:         make(map[uuid.UUID]*assessments.Assessment),
		results:      make(map[uuid.UUID][]assessments.Result),
		leases:       make(map[uuid.UUID]lease),
		nextAttempts: make(map[uuid.UUID]time.Time),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Seed inserts an assessment directly, bypassing validation.
func (s *MemoryStore) Seed(a assessments.Assessment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := a
	s.rows[a.ID] = &cp
}

// Get returns a copy of the stored assessment.
func (s *MemoryStore) Get(id uuid.UUID) (assessments.Assessment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.rows[id]
	if !ok {
		return assessments.Assessment{}, false
	}
	return *a, true
}

// Results returns the persisted results for an assessment.
func (s *MemoryStore) Results(id uuid.UUID) []assessments.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]assessments.Result(nil), s.results[id]...)
}

// RequestCancel sets the cancellation flag.
func (s *MemoryStore) RequestCancel(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.rows[id]; ok {
		a.CancelRequested = true
	}
}

// SetClock overrides the store's notion of now.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Claim(
	_ context.Context,
	workerID string,
	lease time.Duration,
	tenantCap int,
) (*assessments.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	processing := make(map[string]int)
	for _, a := range s.rows {
		if a.Status == assessments.StatusProcessing {
			processing[a.TenantID]++
		}
	}

	var candidate *assessments.Assessment
	for _, a := range s.rows {
		if a.Status != assessments.StatusPending {
			continue
		}
		if next, ok := s.nextAttempt(a.ID); ok && next.After(now) {
			continue
		}
		if processing[a.TenantID] >= tenantCap {
			continue
		}
		if candidate == nil || a.CreatedAt.Before(candidate.CreatedAt) {
			candidate = a
		}
	}

	if candidate == nil {
		return nil, nil
	}

	candidate.Status = assessments.StatusProcessing
	candidate.Attempts++
	if candidate.StartedAt == nil {
		started := now
		candidate.StartedAt = &started
	}
	s.setLease(candidate.ID, workerID, now.Add(lease))

	cp := *candidate
	return &cp, nil
}

func (s *MemoryStore) RenewLease(_ context.Context, id uuid.UUID, workerID string, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.holdsLease(id, workerID) {
		return ErrLeaseLost
	}
	s.setLease(id, workerID, s.now().Add(lease))
	return nil
}

func (s *MemoryStore) Release(_ context.Context, id uuid.UUID, workerID string, nextAttempt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.holdsLease(id, workerID) {
		return ErrLeaseLost
	}

	a := s.rows[id]
	a.Status = assessments.StatusPending
	s.clearLease(id)
	s.setNextAttempt(id, nextAttempt)
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, id uuid.UUID, workerID string, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.holdsLease(id, workerID) {
		return ErrLeaseLost
	}

	a := s.rows[id]
	s.results[id] = append([]assessments.Result(nil), outcome.Results...)
	a.Status = assessments.StatusCompleted
	a.PassedCount = outcome.Passed
	a.FailedCount = outcome.Failed
	a.ProgressDone = a.ProgressTotal
	completed := s.now()
	a.CompletedAt = &completed
	s.clearLease(id)
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, id uuid.UUID, workerID string, code, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.holdsLease(id, workerID) {
		return ErrLeaseLost
	}

	a := s.rows[id]
	a.Status = assessments.StatusFailed
	a.ErrorCode = &code
	a.ErrorMessage = &message
	completed := s.now()
	a.CompletedAt = &completed
	s.clearLease(id)
	return nil
}

func (s *MemoryStore) SetDocumentParse(_ context.Context, docID uuid.UUID, workerID string, status string, parseErr *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.rows {
		for i := range a.Documents {
			if a.Documents[i].ID == docID {
				if !s.holdsLease(a.ID, workerID) {
					return ErrLeaseLost
				}
				a.Documents[i].ParseStatus = status
				a.Documents[i].ParseError = parseErr
				return nil
			}
		}
	}
	return fmt.Errorf("document %s not found", docID)
}

func (s *MemoryStore) SetProgress(_ context.Context, id uuid.UUID, workerID string, done, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("assessment %s not found", id)
	}
	if !s.holdsLease(id, workerID) {
		return ErrLeaseLost
	}
	a.ProgressDone = done
	a.ProgressTotal = total
	return nil
}

func (s *MemoryStore) AddCost(_ context.Context, id uuid.UUID, workerID string, units int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("assessment %s not found", id)
	}
	if !s.holdsLease(id, workerID) {
		return ErrLeaseLost
	}
	a.CostUnits += units
	return nil
}

func (s *MemoryStore) CancelRequested(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.rows[id]
	if !ok {
		return false, fmt.Errorf("assessment %s not found", id)
	}
	return a.CancelRequested, nil
}

func (s *MemoryStore) ReapExpired(_ context.Context, now time.Time, policy ReapPolicy) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := 0
	for id, a := range s.rows {
		if a.Status != assessments.StatusProcessing {
			continue
		}
		held, ok := s.leases[id]
		if !ok || !held.expires.Before(now) {
			continue
		}

		if a.Attempts >= policy.MaxAttempts {
			code := assessments.ErrCodeRetryExhausted
			message := fmt.Sprintf("lease expired after %d attempts", policy.MaxAttempts)
			a.Status = assessments.StatusFailed
			a.ErrorCode = &code
			a.ErrorMessage = &message
			completed := now
			a.CompletedAt = &completed
		} else {
			a.Status = assessments.StatusPending
			delay := backoffDelay(a.Attempts, policy.InitialBackoff, policy.MaxBackoff, policy.Multiplier)
			s.setNextAttempt(id, now.Add(delay))
		}

		s.clearLease(id)
		reaped++
	}
	return reaped, nil
}

func (s *MemoryStore) holdsLease(id uuid.UUID, workerID string) bool {
	a, ok := s.rows[id]
	if !ok || a.Status != assessments.StatusProcessing {
		return false
	}
	held, ok := s.leases[id]
	return ok && held.owner == workerID
}

func (s *MemoryStore) setLease(id uuid.UUID, owner string, expires time.Time) {
	s.leases[id] = lease{owner: owner, expires: expires}
}

func (s *MemoryStore) clearLease(id uuid.UUID) {
	delete(s.leases, id)
}

func (s *MemoryStore) setNextAttempt(id uuid.UUID, at time.Time) {
	s.nextAttempts[id] = at
}

func (s *MemoryStore) nextAttempt(id uuid.UUID) (time.Time, bool) {
	at, ok := s.nextAttempts[id]
	return at, ok
}
