// Package engine implements the priority-aware, tenant-fair execution
// runtime: the task scheduler, the worker pool and task lifecycle records.
package engine

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Priority is the runtime execution priority. Lower numbers are more urgent.
type Priority uint32

const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 10
	PriorityNormal   Priority = 50
	PriorityLow      Priority = 100
)

// Task is a unit of work scheduled for execution on behalf of a tenant.
type Task struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     string          `json:"tenant_id"`
	Payload      json.RawMessage `json:"payload"`
	Priority     Priority        `json:"priority"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	CreatedAt    time.Time       `json:"created_at"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// TaskBuilder constructs a Task with defaults matching the upstream
// protocol: Normal priority, payload null, scheduled_for now.
type TaskBuilder struct {
	t Task
}

// NewTask starts a builder for tenantID.
func NewTask(tenantID string) *TaskBuilder {
	return &TaskBuilder{t: Task{
		TenantID:     tenantID,
		Priority:     PriorityNormal,
		ScheduledFor: time.Now().UTC(),
	}}
}

func (b *TaskBuilder) Payload(payload json.RawMessage) *TaskBuilder { b.t.Payload = payload; return b }
func (b *TaskBuilder) Priority(p Priority) *TaskBuilder             { b.t.Priority = p; return b }
func (b *TaskBuilder) ScheduledFor(at time.Time) *TaskBuilder       { b.t.ScheduledFor = at; return b }
func (b *TaskBuilder) Metadata(m json.RawMessage) *TaskBuilder      { b.t.Metadata = m; return b }

// Build finalises the task, assigning a fresh id and created_at.
func (b *TaskBuilder) Build() Task {
	b.t.ID = uuid.New()
	b.t.CreatedAt = time.Now().UTC()
	return b.t
}

// Status is the lifecycle state of a scheduled task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Record is the in-memory lifecycle record for a submitted task.
type Record struct {
	Task       Task            `json:"task"`
	Status     Status          `json:"status"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	LastError  *string         `json:"last_error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// NewRecord returns a freshly-queued record for task.
func NewRecord(task Task) Record {
	return Record{Task: task, Status: StatusQueued}
}

// Outcome is the terminal result of one execution attempt.
type Outcome struct {
	TaskID     uuid.UUID
	TenantID   string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	Result     json.RawMessage
	Error      *string
}

// Success builds a Completed outcome.
func Success(task Task, startedAt time.Time, result json.RawMessage) Outcome {
	return Outcome{
		TaskID: task.ID, TenantID: task.TenantID, Status: StatusCompleted,
		StartedAt: startedAt, FinishedAt: time.Now().UTC(), Result: result,
	}
}

// Failure builds a Failed outcome.
func Failure(task Task, startedAt time.Time, err error) Outcome {
	msg := err.Error()
	return Outcome{
		TaskID: task.ID, TenantID: task.TenantID, Status: StatusFailed,
		StartedAt: startedAt, FinishedAt: time.Now().UTC(), Error: &msg,
	}
}
