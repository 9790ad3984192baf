package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/docreview/internal/reconcile"
	"github.com/dgallion1/docreview/internal/review"
)

// JobStatus represents the state of a reconciliation job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusReconciling JobStatus = "reconciling"
	StatusCompleted   JobStatus = "completed"
	StatusPartial     JobStatus = "partial"
	StatusFailed      JobStatus = "failed"
)

// Job tracks the reconciliation of one review session.
type Job struct {
	mu sync.Mutex

	ID          string `json:"job_id"`
	ExecutionID string `json:"execution_id"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	session *review.Session
	result  *reconcile.Result
	errors  []string
}

// Progress tracks what a run has done so far.
type Progress struct {
	Corrections       int      `json:"corrections"`
	FieldsConsidered  int      `json:"fields_considered"`
	ArtifactsModified []string `json:"artifacts_modified"`
	Unresolved        []string `json:"unresolved"`
	Errors            []string `json:"errors"`
}

// NewJob wraps a parsed review session in a queued job.
func NewJob(session *review.Session) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		ExecutionID: session.ExecutionID,
		Status:      StatusQueued,
		Phase:       "queued",
		Progress:    Progress{Corrections: len(session.Batch.Corrections)},
		CreatedAt:   now,
		UpdatedAt:   now,
		session:     session,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.updatedAt()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

func (j *Job) updatedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.UpdatedAt
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetResult records the outcome of the engine, which may be partial.
func (j *Job) SetResult(res *reconcile.Result) {
	if res == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = res
	j.Progress.FieldsConsidered = res.FieldsConsidered
	j.Progress.ArtifactsModified = append([]string(nil), res.Modified...)
	j.Progress.Unresolved = append([]string(nil), res.Unresolved...)
	j.UpdatedAt = time.Now()
}

// Result returns the engine result, nil until the run has finished.
func (j *Job) Result() *reconcile.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Session returns the review session the job reconciles.
func (j *Job) Session() *review.Session {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.session
}

// Done reports whether the job reached a final status.
func (j *Job) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.Status {
	case StatusCompleted, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	ExecutionID string    `json:"execution_id"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Progress    Progress  `json:"progress"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:          j.ID,
		ExecutionID: j.ExecutionID,
		Status:      j.Status,
		Phase:       j.Phase,
		Progress: Progress{
			Corrections:       j.Progress.Corrections,
			FieldsConsidered:  j.Progress.FieldsConsidered,
			ArtifactsModified: nonNil(j.Progress.ArtifactsModified),
			Unresolved:        nonNil(j.Progress.Unresolved),
			Errors:            nonNil(j.Progress.Errors),
		},
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	if len(s) == 0 {
		return []string{}
	}
	return append([]string(nil), s...)
}
