package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/streamdesk/server/internal/session"
	"github.com/streamdesk/server/internal/store"
)

type fakeStore struct {
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeStore) ListRecordings(ctx context.Context, userID int32) (map[int32]store.Recording, error) {
	f.calls++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return map[int32]store.Recording{}, nil
}

func TestCollectStoreHealthyOnFastSuccess(t *testing.T) {
	m := NewMonitor()
	CollectStore(context.Background(), m, &fakeStore{})

	check, ok := m.Get("store")
	if !ok {
		t.Fatal("expected a store check to be recorded")
	}
	if check.Status != Healthy {
		t.Fatalf("status = %q, want %q", check.Status, Healthy)
	}
}

func TestCollectStoreUnhealthyOnError(t *testing.T) {
	m := NewMonitor()
	CollectStore(context.Background(), m, &fakeStore{err: errors.New("disk full")})

	check, _ := m.Get("store")
	if check.Status != Unhealthy {
		t.Fatalf("status = %q, want %q", check.Status, Unhealthy)
	}
}

func TestCollectStoreDegradedOnSlowQuery(t *testing.T) {
	m := NewMonitor()
	CollectStore(context.Background(), m, &fakeStore{delay: 600 * time.Millisecond})

	check, _ := m.Get("store")
	if check.Status != Degraded {
		t.Fatalf("status = %q, want %q", check.Status, Degraded)
	}
}

func TestCollectRegistryReportsSessionCount(t *testing.T) {
	m := NewMonitor()
	registry := session.NewRegistry()

	CollectRegistry(m, registry)

	check, ok := m.Get("registry")
	if !ok {
		t.Fatal("expected a registry check to be recorded")
	}
	if check.Status != Healthy {
		t.Fatalf("status = %q, want %q", check.Status, Healthy)
	}
}

func TestRunPeriodicStopsOnContextCancel(t *testing.T) {
	m := NewMonitor()
	registry := session.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunPeriodic(ctx, m, registry, &fakeStore{}, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not stop after context cancellation")
	}

	if _, ok := m.Get("host"); !ok {
		t.Fatal("expected at least one refresh before stopping")
	}
}
