// Package syncmetrics mirrors the relay's latest metrics snapshot into a
// Redis hash on a fixed cadence, so external dashboards can poll server
// health without attaching a websocket. The mirror is an observability
// convenience: losing Redis never affects the relay itself.
package syncmetrics

import (
	"context"
	"strconv"
	"time"

	"chatrelay/internal/relay"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	metricsKey  = "relay:metrics"
	execTimeout = 1500 * time.Millisecond
)

// SnapshotSource is the slice of the session service the mirror needs.
type SnapshotSource interface {
	Snapshot() relay.MetricsSnapshot
}

// nowFn is swapped out in tests.
var nowFn = time.Now

// Run mirrors one snapshot per tick until the context is cancelled.
func Run(ctx context.Context, rdc *redis.Client, src SnapshotSource, interval time.Duration) {
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				mirrorOnce(ctx, rdc, src)
			}
		}
	}()
}

func mirrorOnce(ctx context.Context, rdc *redis.Client, src SnapshotSource) {
	snap := src.Snapshot()

	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	// Ordered field pairs keep the write deterministic.
	err := rdc.HSet(ctx, metricsKey,
		"active_connections", snap.ActiveConnections,
		"messages_per_second", strconv.FormatFloat(snap.MessagesPerSecond, 'f', -1, 64),
		"memory_usage_mb", strconv.FormatFloat(snap.MemoryUsageMB, 'f', -1, 64),
		"cpu_usage_pct", strconv.FormatFloat(snap.CPUUsagePct, 'f', -1, 64),
		"server", snap.Server,
		"updated_at", nowFn().Unix(),
	).Err()
	if err != nil {
		zap.L().Warn("syncmetrics.mirror", zap.Error(err))
	}
}
