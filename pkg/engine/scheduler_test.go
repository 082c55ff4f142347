package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerRoundRobinsBetweenTenants(t *testing.T) {
	scheduler := NewScheduler()
	scheduler.Enqueue(NewTask("tenant-a").Build())
	scheduler.Enqueue(NewTask("tenant-b").Build())
	scheduler.Enqueue(NewTask("tenant-a").Build())

	first, ok := scheduler.NextTask()
	require.True(t, ok)
	require.Equal(t, "tenant-a", first.TenantID)

	second, ok := scheduler.NextTask()
	require.True(t, ok)
	require.Equal(t, "tenant-b", second.TenantID)

	third, ok := scheduler.NextTask()
	require.True(t, ok)
	require.Equal(t, "tenant-a", third.TenantID)

	_, ok = scheduler.NextTask()
	require.False(t, ok)
}

func TestSchedulerRespectsPriorityWithinTenant(t *testing.T) {
	scheduler := NewScheduler()
	scheduler.Enqueue(NewTask("tenant-a").Priority(PriorityLow).Build())
	scheduler.Enqueue(NewTask("tenant-a").Priority(PriorityCritical).Build())
	scheduler.Enqueue(NewTask("tenant-a").Priority(PriorityNormal).Build())

	first, ok := scheduler.NextTask()
	require.True(t, ok)
	require.Equal(t, PriorityCritical, first.Priority)

	second, ok := scheduler.NextTask()
	require.True(t, ok)
	require.Equal(t, PriorityNormal, second.Priority)

	third, ok := scheduler.NextTask()
	require.True(t, ok)
	require.Equal(t, PriorityLow, third.Priority)
}

func TestSchedulerOrdersEqualPriorityByScheduledFor(t *testing.T) {
	scheduler := NewScheduler()
	now := time.Now().UTC()
	later := NewTask("tenant-a").ScheduledFor(now.Add(time.Minute)).Build()
	earlier := NewTask("tenant-a").ScheduledFor(now).Build()

	scheduler.Enqueue(later)
	scheduler.Enqueue(earlier)

	first, ok := scheduler.NextTask()
	require.True(t, ok)
	require.Equal(t, earlier.ID, first.ID)
}

func TestSchedulerDrainsTenantFromRotation(t *testing.T) {
	scheduler := NewScheduler()
	scheduler.Enqueue(NewTask("tenant-a").Build())
	_, ok := scheduler.NextTask()
	require.True(t, ok)
	require.Empty(t, scheduler.Tenants())
	require.Equal(t, 0, scheduler.Pending())
}

func TestSchedulerRemove(t *testing.T) {
	scheduler := NewScheduler()
	task := NewTask("tenant-a").Build()
	scheduler.Enqueue(task)
	require.True(t, scheduler.Remove(task.ID))
	require.Equal(t, 0, scheduler.Pending())
	require.False(t, scheduler.Remove(task.ID))
}
