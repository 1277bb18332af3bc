package handler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ReddyLab/cegs-portal-sub001/logger"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/loader"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("load queue is full")

// LoadJobStatus represents the lifecycle of a queued load.
type LoadJobStatus string

const (
	LoadJobQueued    LoadJobStatus = "queued"
	LoadJobRunning   LoadJobStatus = "running"
	LoadJobCompleted LoadJobStatus = "completed"
	LoadJobFailed    LoadJobStatus = "failed"
)

// LoadJob keeps track of a load submitted over the API.
type LoadJob struct {
	ID          string           `json:"job_id"`
	Kind        loader.Kind      `json:"kind"`
	Manifest    string           `json:"manifest"`
	Status      LoadJobStatus    `json:"status"`
	RunID       string           `json:"run_id,omitempty"`
	State       string           `json:"state,omitempty"`
	AccessionID string           `json:"accession_id,omitempty"`
	Rows        map[string]int64 `json:"rows,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// RunFunc executes one load. (*loader.Loader).Run satisfies it.
type RunFunc func(ctx context.Context, kind loader.Kind, manifest string) (*loader.Result, error)

// LoadJobManager stores load job states indexed by job ID and runs them one at a time, in
// submission order.
type LoadJobManager struct {
	mu    sync.RWMutex
	jobs  map[string]*LoadJob
	queue chan string
	run   RunFunc
}

// NewLoadJobManager constructs a job manager with no jobs. At most capacity jobs wait in the
// queue.
func NewLoadJobManager(run RunFunc, capacity int) *LoadJobManager {
	return &LoadJobManager{
		jobs:  make(map[string]*LoadJob),
		queue: make(chan string, capacity),
		run:   run,
	}
}

// Submit registers a queued job. It fails with ErrQueueFull instead of blocking.
func (m *LoadJobManager) Submit(kind loader.Kind, manifest string) (LoadJob, error) {
	now := time.Now()
	job := &LoadJob{
		ID:        uuid.NewString(),
		Kind:      kind,
		Manifest:  manifest,
		Status:    LoadJobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case m.queue <- job.ID:
	default:
		return LoadJob{}, ErrQueueFull
	}
	m.jobs[job.ID] = job
	return *job, nil
}

// Run works through the queue until ctx is cancelled.
func (m *LoadJobManager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.queue:
			m.process(ctx, id)
		}
	}
}

func (m *LoadJobManager) process(ctx context.Context, jobID string) {
	job, ok := m.GetJob(jobID)
	if !ok {
		return
	}
	m.setRunning(jobID)
	logger.Info("Load job started", zap.String("job_id", jobID), zap.String("kind", string(job.Kind)))

	res, err := m.run(ctx, job.Kind, job.Manifest)
	if err != nil {
		logger.Warn("Load job failed", zap.String("job_id", jobID), zap.Error(err))
		m.failJob(jobID, err)
		return
	}
	logger.Info("Load job completed", zap.String("job_id", jobID), zap.String("accession_id", res.AccessionID))
	m.completeJob(jobID, res)
}

func (m *LoadJobManager) setRunning(jobID string) {
	m.updateJob(jobID, func(job *LoadJob) {
		job.Status = LoadJobRunning
	})
}

func (m *LoadJobManager) completeJob(jobID string, res *loader.Result) {
	m.updateJob(jobID, func(job *LoadJob) {
		job.Status = LoadJobCompleted
		job.RunID = res.RunID
		job.State = string(loader.StateDone)
		job.AccessionID = res.AccessionID
		job.Rows = res.Rows
	})
}

// failJob records a failure. Loads that got as far as starting a run report its id and the state
// they failed in.
func (m *LoadJobManager) failJob(jobID string, err error) {
	m.updateJob(jobID, func(job *LoadJob) {
		job.Status = LoadJobFailed
		job.Error = err.Error()
		var le *loader.LoadError
		if errors.As(err, &le) {
			job.RunID = le.RunID
			job.State = string(le.State)
		}
	})
}

// GetJob returns a snapshot of the job.
func (m *LoadJobManager) GetJob(jobID string) (LoadJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return LoadJob{}, false
	}
	return *job, true
}

func (m *LoadJobManager) updateJob(jobID string, update func(job *LoadJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return
	}

	update(job)
	job.UpdatedAt = time.Now()
}
