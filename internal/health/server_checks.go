package health

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/streamdesk/server/internal/session"
	"github.com/streamdesk/server/internal/store"
)

// Store is the subset of store.Store a health check needs: one cheap
// query whose latency and success/failure stand in for the database's
// health.
type Store interface {
	ListRecordings(ctx context.Context, userID int32) (map[int32]store.Recording, error)
}

// CollectHost samples host CPU, memory, and disk usage via gopsutil and
// records the "host" check, degrading past 90% and failing past 98% on
// any one resource.
func CollectHost(m *Monitor) {
	status := Healthy
	var msg string

	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		status, msg = worstOf(status, msg, pcts[0], "cpu")
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		status, msg = worstOf(status, msg, vmem.UsedPercent, "memory")
	}
	if du, err := disk.Usage("/"); err == nil {
		status, msg = worstOf(status, msg, du.UsedPercent, "disk")
	}

	m.Update("host", status, msg)
}

func worstOf(status Status, msg string, pct float64, resource string) (Status, string) {
	next := Healthy
	switch {
	case pct >= 98:
		next = Unhealthy
	case pct >= 90:
		next = Degraded
	}
	if statusRank(next) > statusRank(status) {
		return next, fmt.Sprintf("%s at %.1f%%", resource, pct)
	}
	return status, msg
}

// CollectRegistry records the "registry" check: always Healthy while the
// registry itself is reachable (it has no failure mode short of a
// process-wide deadlock, in which case this goroutine wouldn't run
// either), reporting the live session count for operator visibility.
func CollectRegistry(m *Monitor, registry *session.Registry) {
	m.Update("registry", Healthy, fmt.Sprintf("%d active sessions", registry.Count()))
}

// CollectStore records the "store" check by timing a cheap, harmless
// query. A failing or slow store degrades the overall server health
// without taking the process down.
func CollectStore(ctx context.Context, m *Monitor, st Store) {
	start := time.Now()
	_, err := st.ListRecordings(ctx, 0)
	elapsed := time.Since(start)

	if err != nil {
		m.Update("store", Unhealthy, err.Error())
		return
	}
	if elapsed > 500*time.Millisecond {
		m.Update("store", Degraded, fmt.Sprintf("query took %s", elapsed))
		return
	}
	m.Update("store", Healthy, fmt.Sprintf("query took %s", elapsed))
}

// RunPeriodic refreshes every check on interval until ctx is cancelled.
// Intended to run as its own goroutine for the lifetime of the process.
func RunPeriodic(ctx context.Context, m *Monitor, registry *session.Registry, st Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refresh := func() {
		CollectHost(m)
		CollectRegistry(m, registry)
		CollectStore(ctx, m, st)
	}
	refresh()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
