package server

import (
	"sync"

	"github.com/google/uuid"
)

// RunStatus defines the possible states of a training run.
type RunStatus string

const (
	RunStatusStarted   RunStatus = "started"
	RunStatusTraining  RunStatus = "training"
	RunStatusVerifying RunStatus = "verifying"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Progress tracks the externally visible state of one training run.
type Progress struct {
	mu sync.RWMutex

	ID      string    `json:"id"`
	Status  RunStatus `json:"status"`
	Algo    string    `json:"algo"`
	Epoch   int       `json:"epoch"`
	Updates uint64    `json:"updates"`
	RMSE    float64   `json:"rmse,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// NewProgress creates a tracker with a fresh run id.
func NewProgress(algo string) *Progress {
	return &Progress{
		ID:     uuid.New().String(),
		Status: RunStatusStarted,
		Algo:   algo,
	}
}

// RunID returns the run's unique id.
func (p *Progress) RunID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ID
}

// SetStatus moves the run to a new state.
func (p *Progress) SetStatus(s RunStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = s
}

// SetEpoch records the current epoch and cumulative update count.
func (p *Progress) SetEpoch(epoch int, updates uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Epoch = epoch
	p.Updates = updates
}

// Complete marks the run finished with its final RMSE.
func (p *Progress) Complete(rmse float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = RunStatusCompleted
	p.RMSE = rmse
}

// Fail marks the run failed.
func (p *Progress) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = RunStatusFailed
	p.Error = err.Error()
}

// snapshot returns a copy safe to serialize.
func (p *Progress) snapshot() Progress {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Progress{
		ID:      p.ID,
		Status:  p.Status,
		Algo:    p.Algo,
		Epoch:   p.Epoch,
		Updates: p.Updates,
		RMSE:    p.RMSE,
		Error:   p.Error,
	}
}
