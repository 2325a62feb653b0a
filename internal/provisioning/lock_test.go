package provisioning

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/telehealth-provisioner/internal/appointments"
)

const testLockKey = "telehealth:provisioning:tick"

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLockerAcquireAndRelease(t *testing.T) {
	mr, client := newTestRedis(t)
	locker, err := NewRedisLocker(client, testLockKey)
	require.NoError(t, err)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(testLockKey))
	assert.Equal(t, time.Minute, mr.TTL(testLockKey))

	_, ok, err = locker.TryLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must wait")

	release()
	assert.False(t, mr.Exists(testLockKey))

	_, ok, err = locker.TryLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockerReleaseKeepsForeignLease(t *testing.T) {
	mr, client := newTestRedis(t)
	locker, err := NewRedisLocker(client, testLockKey)
	require.NoError(t, err)

	release, ok, err := locker.TryLock(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// lease expired and another replica took over
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(testLockKey, "other-replica"))

	release()
	got, err := mr.Get(testLockKey)
	require.NoError(t, err)
	assert.Equal(t, "other-replica", got)
}

func TestNewRedisLockerValidation(t *testing.T) {
	_, err := NewRedisLocker(nil, testLockKey)
	assert.Error(t, err)

	_, client := newTestRedis(t)
	_, err = NewRedisLocker(client, "  ")
	assert.Error(t, err)
}

func TestTickSkippedWhenLockHeldElsewhere(t *testing.T) {
	mr, client := newTestRedis(t)
	locker, err := NewRedisLocker(client, testLockKey)
	require.NoError(t, err)

	h := newHarness()
	s := h.scheduler(t, Config{}, WithLocker(locker))
	appt := h.add("Ada", testNow.Add(time.Minute), appointments.StatusConfirmed)

	require.NoError(t, mr.Set(testLockKey, "other-replica"))
	res := s.Tick(context.Background())
	assert.True(t, res.Skipped)
	assert.Zero(t, h.provider.calls())
	assert.Zero(t, h.store.finds.Load())

	mr.Del(testLockKey)
	res = s.Tick(context.Background())
	assert.False(t, res.Skipped)
	assert.Equal(t, OutcomeProvisioned, res.Outcomes[appt.ID])
	assert.False(t, mr.Exists(testLockKey), "lock released after the tick")
}

func TestTickSkippedWhenLockErrors(t *testing.T) {
	mr, client := newTestRedis(t)
	locker, err := NewRedisLocker(client, testLockKey)
	require.NoError(t, err)

	h := newHarness()
	s := h.scheduler(t, Config{}, WithLocker(locker))
	h.add("Ada", testNow.Add(time.Minute), appointments.StatusConfirmed)

	mr.SetError("ERR lock backend unavailable")
	res := s.Tick(context.Background())
	assert.True(t, res.Skipped)
	assert.Zero(t, h.provider.calls())
}

func TestRedisLockerRenewsWhileHeld(t *testing.T) {
	mr, client := newTestRedis(t)
	locker, err := NewRedisLocker(client, testLockKey)
	require.NoError(t, err)
	locker.renewEvery = 20 * time.Millisecond

	release, ok, err := locker.TryLock(context.Background(), 3*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	waitFor(t, 2*time.Second, func() bool { return mr.TTL(testLockKey) == 3*time.Second })

	// past the original TTL, the lease is still ours
	mr.FastForward(2 * time.Second)
	assert.True(t, mr.Exists(testLockKey))

	release()
	assert.False(t, mr.Exists(testLockKey))
}

func TestSlowTickKeepsSecondReplicaOut(t *testing.T) {
	mr, client := newTestRedis(t)
	lockA, err := NewRedisLocker(client, testLockKey)
	require.NoError(t, err)
	lockA.renewEvery = 20 * time.Millisecond
	lockB, err := NewRedisLocker(client, testLockKey)
	require.NoError(t, err)

	h := newHarness()
	h.provider.block = make(chan struct{})
	h.provider.entered = make(chan struct{}, 1)
	cfg := Config{Interval: time.Second}
	replicaA := h.scheduler(t, cfg, WithLocker(lockA))

	providerB := newFakeProvider()
	replicaB, err := NewScheduler(h.store, providerB, h.notifier, cfg,
		WithClock(func() time.Time { return testNow }), WithLocker(lockB))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, replicaB.Config().LockTTL)

	appt := h.add("Ada", testNow.Add(time.Minute), appointments.StatusConfirmed)

	done := make(chan TickResult, 1)
	go func() { done <- replicaA.Tick(context.Background()) }()
	<-h.provider.entered

	// replica A's provider call outlasts the tick interval
	mr.FastForward(2 * time.Second)
	res := replicaB.Tick(context.Background())
	assert.True(t, res.Skipped)

	waitFor(t, 2*time.Second, func() bool { return mr.TTL(testLockKey) == 3*time.Second })
	mr.FastForward(2 * time.Second)
	res = replicaB.Tick(context.Background())
	assert.True(t, res.Skipped)

	close(h.provider.block)
	first := <-done
	assert.Equal(t, OutcomeProvisioned, first.Outcomes[appt.ID])

	assert.Zero(t, providerB.calls())
	assert.Len(t, h.store.Meetings(), 1)
	assert.False(t, mr.Exists(testLockKey))

	res = replicaB.Tick(context.Background())
	assert.False(t, res.Skipped)
	assert.Zero(t, res.Selected)
}
