package server

import (
	"sync"

	"github.com/google/uuid"

	"voicenotes/pkg/domain"
)

// JobRegistry tracks in-flight async jobs in process memory. Jobs are never
// persisted: a restart orphans them, and clients observe that as a 404 on
// the status poll and resubmit.
type JobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

// NewJobRegistry creates an empty registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*domain.Job)}
}

// Create registers a new pending job and returns its id.
func (r *JobRegistry) Create() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	r.jobs[id] = &domain.Job{ID: id, Status: domain.JobPending}
	return id
}

// Get returns a copy of one job.
func (r *JobRegistry) Get(id string) (domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return *job, true
}

// Update mutates one job under the registry lock.
func (r *JobRegistry) Update(id string, fn func(*domain.Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		fn(job)
	}
}
