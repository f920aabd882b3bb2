// Package jobqueue tracks each transcribe/rewrite/deliver operation as
// a cancellable unit of work with a status, under a single mutex.
package jobqueue

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the category of work a job performs.
type Kind string

const (
	KindTranscribe Kind = "transcribe"
	KindRewrite    Kind = "rewrite"
	KindDeliver    Kind = "deliver"
)

// Status is a job's lifecycle state. Queued/Running are open; the rest
// are terminal and never transition further.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "canceled"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Info is the externally visible record for a job.
type Info struct {
	JobID     string
	SessionID string
	SegmentID string
	Kind      Kind
	Status    Status
	CreatedAt time.Time
	Error     string
}

// TaskHandle lets the queue preemptively abort a spawned task, in
// addition to the cooperative cancel channel every job also gets.
type TaskHandle interface {
	Abort()
}

type entry struct {
	info   Info
	cancel chan struct{}
	handle TaskHandle
}

// Queue is a concurrent job map. All mutations take the single mutex;
// no entry field is ever touched except through a Queue method.
type Queue struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty job queue.
func New() *Queue {
	return &Queue{entries: make(map[string]*entry)}
}

// Enqueue creates a Queued entry and returns its id and cancel channel.
// The caller should select on the returned channel at cooperative await
// points inside the spawned task.
func (q *Queue) Enqueue(sessionID, segmentID string, kind Kind) (string, <-chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobID := uuid.NewString()
	cancel := make(chan struct{})
	q.entries[jobID] = &entry{
		info: Info{
			JobID:     jobID,
			SessionID: sessionID,
			SegmentID: segmentID,
			Kind:      kind,
			Status:    StatusQueued,
			CreatedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	return jobID, cancel
}

// SetHandle attaches the spawned task's abort handle; the spawner must
// call this immediately after spawning.
func (q *Queue) SetHandle(jobID string, handle TaskHandle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[jobID]; ok {
		e.handle = handle
	}
}

// MarkRunning moves a Queued job to Running.
func (q *Queue) MarkRunning(jobID string) bool {
	return q.setStatus(jobID, StatusRunning, "")
}

// MarkDone moves a job to Done.
func (q *Queue) MarkDone(jobID string) bool {
	return q.setStatus(jobID, StatusDone, "")
}

// MarkFailed moves a job to Failed with the given error string.
func (q *Queue) MarkFailed(jobID string, errMsg string) bool {
	return q.setStatus(jobID, StatusFailed, errMsg)
}

func (q *Queue) setStatus(jobID string, status Status, errMsg string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[jobID]
	if !ok || e.info.Status.IsTerminal() {
		return false
	}
	e.info.Status = status
	if errMsg != "" {
		e.info.Error = errMsg
	}
	return true
}

// Cancel cancels a Queued or Running job: it closes the one-shot cancel
// channel, aborts the task handle if present, and marks it Cancelled.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[jobID]
	if !ok || e.info.Status.IsTerminal() {
		return false
	}

	close(e.cancel)
	if e.handle != nil {
		e.handle.Abort()
	}
	e.info.Status = StatusCancelled
	return true
}

// CancelSession cancels every non-terminal job belonging to sessionID
// and returns the cancelled job ids.
func (q *Queue) CancelSession(sessionID string) []string {
	q.mu.Lock()
	var ids []string
	for id, e := range q.entries {
		if e.info.SessionID == sessionID && !e.info.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	q.mu.Unlock()

	cancelled := make([]string, 0, len(ids))
	for _, id := range ids {
		if q.Cancel(id) {
			cancelled = append(cancelled, id)
		}
	}
	return cancelled
}

// CleanupCompleted removes every terminal entry from the map.
func (q *Queue) CleanupCompleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	for id, e := range q.entries {
		if e.info.Status.IsTerminal() {
			delete(q.entries, id)
			removed++
		}
	}
	return removed
}

// Get returns a copy of a job's info.
func (q *Queue) Get(jobID string) (Info, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[jobID]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}
