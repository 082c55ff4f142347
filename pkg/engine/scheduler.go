package engine

import (
	"sync"

	"github.com/google/uuid"
)

// Scheduler is a per-tenant priority queue with round-robin tenant rotation:
// no single tenant can starve another regardless of how deep its own queue
// is, and within a tenant's queue lower-priority-number tasks run first.
type Scheduler struct {
	mu       sync.Mutex
	queues   map[string][]Task
	rotation []string
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{queues: make(map[string][]Task)}
}

// Enqueue inserts task into its tenant's queue, ordered by priority then by
// scheduled_for, and registers the tenant in the rotation if it is new.
func (s *Scheduler) Enqueue(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, known := s.queues[task.TenantID]
	if !known {
		s.rotation = append(s.rotation, task.TenantID)
	}

	pos := len(queue)
	for i, existing := range queue {
		if task.Priority < existing.Priority {
			pos = i
			break
		}
		if task.Priority == existing.Priority && task.ScheduledFor.Before(existing.ScheduledFor) {
			pos = i
			break
		}
	}

	queue = append(queue, Task{})
	copy(queue[pos+1:], queue[pos:])
	queue[pos] = task
	s.queues[task.TenantID] = queue
}

// NextTask pops the highest-priority task from the next tenant in rotation,
// advancing the rotation pointer so every tenant gets a fair turn. A tenant
// whose queue drains is removed from rotation until it enqueues again.
func (s *Scheduler) NextTask() (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < len(s.rotation); i++ {
		tenantID := s.rotation[0]
		s.rotation = s.rotation[1:]

		queue := s.queues[tenantID]
		if len(queue) == 0 {
			delete(s.queues, tenantID)
			continue
		}

		task := queue[0]
		queue = queue[1:]
		if len(queue) == 0 {
			delete(s.queues, tenantID)
		} else {
			s.queues[tenantID] = queue
			s.rotation = append(s.rotation, tenantID)
		}
		return task, true
	}
	return Task{}, false
}

// Pending returns the total number of queued tasks across all tenants.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, queue := range s.queues {
		total += len(queue)
	}
	return total
}

// PendingForTenant returns the number of queued tasks for tenantID.
func (s *Scheduler) PendingForTenant(tenantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[tenantID])
}

// Tenants returns the tenant IDs currently holding queued work.
func (s *Scheduler) Tenants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.queues))
	for tenantID := range s.queues {
		out = append(out, tenantID)
	}
	return out
}

// Remove drops a queued task by id, reporting whether it was found. Used to
// cancel a task that has not yet started running.
func (s *Scheduler) Remove(taskID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for tenantID, queue := range s.queues {
		for i, task := range queue {
			if task.ID == taskID {
				queue = append(queue[:i], queue[i+1:]...)
				if len(queue) == 0 {
					delete(s.queues, tenantID)
				} else {
					s.queues[tenantID] = queue
				}
				return true
			}
		}
	}
	return false
}
