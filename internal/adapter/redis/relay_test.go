package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anees-mohamed-ar/logistic/internal/adapter/bus"
	"github.com/anees-mohamed-ar/logistic/internal/adapter/redis"
	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

func emptySnapshot(tenantID int64) domain.SnapshotFunc {
	return func(context.Context) (domain.Notification, error) {
		return domain.Notification{Type: domain.NotifySnapshot, TenantID: tenantID}, nil
	}
}

type instance struct {
	hub   *bus.Hub
	relay *redis.Relay
}

// startInstance connects a relay to srv and runs it until the test ends.
func startInstance(t *testing.T, srv *miniredis.Miniredis) instance {
	t.Helper()
	client, err := redis.Connect(context.Background(), "redis://"+srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	hub := bus.NewHub(nil)
	relay := redis.NewRelay(client, hub, nil)

	before := srv.PubSubNumPat()
	runRelay(t, relay)

	// Wait for this relay's own pattern subscription.
	require.Eventually(t, func() bool {
		return srv.PubSubNumPat() > before && relay.Listening()
	}, time.Second, 5*time.Millisecond)
	return instance{hub: hub, relay: relay}
}

// runRelay runs relay until the test ends.
func runRelay(t *testing.T, relay *redis.Relay) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func next(t *testing.T, sub domain.Subscription) domain.Notification {
	t.Helper()
	select {
	case n := <-sub.Events():
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed notification")
		return domain.Notification{}
	}
}

func TestRelay_FansOutAcrossInstances(t *testing.T) {
	srv := miniredis.RunT(t)
	a := startInstance(t, srv)
	b := startInstance(t, srv)
	ctx := context.Background()

	subA, err := a.relay.Subscribe(ctx, 5, emptySnapshot(5))
	require.NoError(t, err)
	defer subA.Close()
	subB, err := b.relay.Subscribe(ctx, 5, emptySnapshot(5))
	require.NoError(t, err)
	defer subB.Close()
	next(t, subA)
	next(t, subB)

	lockedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	err = a.relay.Publish(ctx, domain.Notification{
		ID:       "n-1",
		Type:     domain.NotifyLocked,
		TenantID: 5,
		DraftID:  "TEMP-A",
		Actor:    2,
		LockedAt: &lockedAt,
	})
	require.NoError(t, err)

	for _, sub := range []domain.Subscription{subA, subB} {
		got := next(t, sub)
		assert.Equal(t, "n-1", got.ID)
		assert.Equal(t, domain.NotifyLocked, got.Type)
		assert.Equal(t, "TEMP-A", got.DraftID)
		require.NotNil(t, got.LockedAt)
		assert.True(t, got.LockedAt.Equal(lockedAt))
	}
}

func TestRelay_OtherCompaniesNotDelivered(t *testing.T) {
	srv := miniredis.RunT(t)
	a := startInstance(t, srv)
	ctx := context.Background()

	sub, err := a.relay.Subscribe(ctx, 5, emptySnapshot(5))
	require.NoError(t, err)
	defer sub.Close()
	next(t, sub)

	require.NoError(t, a.relay.Publish(ctx, domain.Notification{ID: "other", Type: domain.NotifyDeleted, TenantID: 6}))
	require.NoError(t, a.relay.Publish(ctx, domain.Notification{ID: "mine", Type: domain.NotifyDeleted, TenantID: 5}))

	assert.Equal(t, "mine", next(t, sub).ID)
}

func TestRelay_FallsBackToLocalDelivery(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := redis.Connect(context.Background(), "redis://"+srv.Addr())
	require.NoError(t, err)
	defer client.Close()

	hub := bus.NewHub(nil)
	relay := redis.NewRelay(client, hub, nil)
	ctx := context.Background()

	sub, err := relay.Subscribe(ctx, 5, emptySnapshot(5))
	require.NoError(t, err)
	defer sub.Close()
	next(t, sub)

	srv.Close()
	err = relay.Publish(ctx, domain.Notification{ID: "local", Type: domain.NotifyCreated, TenantID: 5})
	require.Error(t, err)
	assert.Equal(t, "local", next(t, sub).ID)
}

func TestRelay_DeliversLocallyBeforeRun(t *testing.T) {
	srv := miniredis.RunT(t)
	remote := startInstance(t, srv)
	client, err := redis.Connect(context.Background(), "redis://"+srv.Addr())
	require.NoError(t, err)
	defer client.Close()

	relay := redis.NewRelay(client, bus.NewHub(nil), nil)
	ctx := context.Background()

	sub, err := relay.Subscribe(ctx, 5, emptySnapshot(5))
	require.NoError(t, err)
	defer sub.Close()
	next(t, sub)
	remoteSub, err := remote.relay.Subscribe(ctx, 5, emptySnapshot(5))
	require.NoError(t, err)
	defer remoteSub.Close()
	next(t, remoteSub)

	require.False(t, relay.Listening())
	require.NoError(t, relay.Publish(ctx, domain.Notification{ID: "early", Type: domain.NotifyCreated, TenantID: 5}))
	assert.Equal(t, "early", next(t, sub).ID)
	assert.Equal(t, "early", next(t, remoteSub).ID)
}

func TestRelay_RetriesSubscriptionUntilRedisReturns(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := redis.Connect(context.Background(), "redis://"+srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	relay := redis.NewRelay(client, bus.NewHub(nil), nil)
	ctx := context.Background()
	sub, err := relay.Subscribe(ctx, 5, emptySnapshot(5))
	require.NoError(t, err)
	defer sub.Close()
	next(t, sub)

	srv.Close()
	runRelay(t, relay)

	err = relay.Publish(ctx, domain.Notification{ID: "down", Type: domain.NotifyCreated, TenantID: 5})
	require.Error(t, err)
	assert.Equal(t, "down", next(t, sub).ID)

	require.NoError(t, srv.Restart())
	require.Eventually(t, relay.Listening, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, relay.Publish(ctx, domain.Notification{ID: "up", Type: domain.NotifyCreated, TenantID: 5}))
	assert.Equal(t, "up", next(t, sub).ID)
	select {
	case n := <-sub.Events():
		t.Fatalf("unexpected second delivery %q", n.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnect_BadURL(t *testing.T) {
	_, err := redis.Connect(context.Background(), "not a url")
	assert.Error(t, err)
}
