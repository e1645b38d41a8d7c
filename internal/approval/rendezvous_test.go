package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/approval"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/store"
)

const testInterval = 10 * time.Millisecond

func newWaitingSession(t *testing.T, st store.SessionStore, id string) {
	t.Helper()
	err := st.Create(context.Background(), &model.Session{
		ID:        id,
		Status:    model.StatusAwaitingApproval,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestWait_ApprovedImmediately(t *testing.T) {
	st := store.NewMemoryStore()
	newWaitingSession(t, st, "s1")

	approved := true
	require.NoError(t, st.Update(context.Background(), "s1", store.SessionUpdate{PlanApproved: &approved}))

	r := approval.NewRendezvous(st, testInterval, 20*testInterval)
	assert.Equal(t, approval.Approved, r.Wait(context.Background(), "s1"))
}

func TestWait_ApprovedMidWait(t *testing.T) {
	st := store.NewMemoryStore()
	newWaitingSession(t, st, "s1")

	go func() {
		time.Sleep(3 * testInterval)
		approved := true
		_ = st.Update(context.Background(), "s1", store.SessionUpdate{PlanApproved: &approved})
	}()

	r := approval.NewRendezvous(st, testInterval, 50*testInterval)
	start := time.Now()
	result := r.Wait(context.Background(), "s1")

	assert.Equal(t, approval.Approved, result)
	assert.Less(t, time.Since(start), 20*testInterval, "should return soon after approval, not at timeout")
}

func TestWait_TimeoutAfterExactPollBudget(t *testing.T) {
	st := store.NewMemoryStore()
	newWaitingSession(t, st, "s1")

	// two polls at one-interval spacing: timeout fires after exactly
	// two intervals, never before
	r := approval.NewRendezvous(st, testInterval, 2*testInterval)

	start := time.Now()
	result := r.Wait(context.Background(), "s1")
	elapsed := time.Since(start)

	assert.Equal(t, approval.TimedOut, result)
	assert.GreaterOrEqual(t, elapsed, 2*testInterval)
}

func TestWait_CancelledStatus(t *testing.T) {
	st := store.NewMemoryStore()
	newWaitingSession(t, st, "s1")

	cancelled := model.StatusCancelled
	require.NoError(t, st.Update(context.Background(), "s1", store.SessionUpdate{Status: &cancelled}))

	r := approval.NewRendezvous(st, testInterval, 50*testInterval)
	assert.Equal(t, approval.Cancelled, r.Wait(context.Background(), "s1"))
}

func TestWait_CancelledBeatsApproval(t *testing.T) {
	st := store.NewMemoryStore()
	newWaitingSession(t, st, "s1")

	approved := true
	cancelled := model.StatusCancelled
	require.NoError(t, st.Update(context.Background(), "s1", store.SessionUpdate{
		PlanApproved: &approved,
		Status:       &cancelled,
	}))

	r := approval.NewRendezvous(st, testInterval, 50*testInterval)
	assert.Equal(t, approval.Cancelled, r.Wait(context.Background(), "s1"))
}

func TestWait_ContextCancellation(t *testing.T) {
	st := store.NewMemoryStore()
	newWaitingSession(t, st, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(2 * testInterval)
		cancel()
	}()

	r := approval.NewRendezvous(st, testInterval, 100*testInterval)
	assert.Equal(t, approval.Cancelled, r.Wait(ctx, "s1"))
}

func TestWait_MissingSessionEventuallyTimesOut(t *testing.T) {
	st := store.NewMemoryStore()

	r := approval.NewRendezvous(st, testInterval, 3*testInterval)
	assert.Equal(t, approval.TimedOut, r.Wait(context.Background(), "ghost"))
}
