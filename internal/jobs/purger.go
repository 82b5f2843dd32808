package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// LevelPurger hard-deletes levels soft-deleted before a cutoff and returns how many it removed
type LevelPurger interface {
	PurgeDeleted(ctx context.Context, before time.Time) int
}

// PurgeRecorder receives the number of purged levels per run
type PurgeRecorder interface {
	LevelsPurged(n int)
}

// PurgerConfig holds configuration for the purger
type PurgerConfig struct {
	Interval  time.Duration // Default: 1h
	Retention time.Duration // Default: 20 days
	Now       func() time.Time
}

// PurgeManager periodically removes soft-deleted levels once their retention has elapsed
type PurgeManager struct {
	levels   LevelPurger
	recorder PurgeRecorder
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  atomic.Bool

	runs   atomic.Int64
	purged atomic.Int64

	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewPurgeManager creates a purge manager. A nil recorder is allowed.
func NewPurgeManager(levels LevelPurger, recorder PurgeRecorder, config PurgerConfig) *PurgeManager {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Retention <= 0 {
		config.Retention = 20 * 24 * time.Hour
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &PurgeManager{
		levels:    levels,
		recorder:  recorder,
		stopCh:    make(chan struct{}),
		interval:  config.Interval,
		retention: config.Retention,
		now:       config.Now,
	}
}

// Start runs one purge immediately and then one per interval
func (pm *PurgeManager) Start(ctx context.Context) error {
	if !pm.running.CompareAndSwap(false, true) {
		return fmt.Errorf("purger already running")
	}

	log.Printf("Purger started (interval %v, retention %v)", pm.interval, pm.retention)

	pm.wg.Add(1)
	go pm.loop(ctx)
	return nil
}

// Stop halts the purger and waits for an in-flight run to finish
func (pm *PurgeManager) Stop() {
	if !pm.running.CompareAndSwap(true, false) {
		return
	}
	close(pm.stopCh)
	pm.wg.Wait()
	log.Printf("Purger stopped after %d runs, %d levels purged", pm.runs.Load(), pm.purged.Load())
}

// IsRunning returns whether the purger loop is active
func (pm *PurgeManager) IsRunning() bool {
	return pm.running.Load()
}

// RunOnce purges every level soft-deleted more than the retention period ago
func (pm *PurgeManager) RunOnce(ctx context.Context) int {
	cutoff := pm.now().Add(-pm.retention)
	n := pm.levels.PurgeDeleted(ctx, cutoff)

	pm.runs.Add(1)
	pm.purged.Add(int64(n))
	if pm.recorder != nil {
		pm.recorder.LevelsPurged(n)
	}
	if n > 0 {
		log.Printf("Purger removed %d levels deleted before %s", n, cutoff.Format(time.RFC3339))
	}
	return n
}

// GetMetrics returns purger counters
func (pm *PurgeManager) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"running": pm.running.Load(),
		"runs":    pm.runs.Load(),
		"purged":  pm.purged.Load(),
	}
}

func (pm *PurgeManager) loop(ctx context.Context) {
	defer pm.wg.Done()

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	pm.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-pm.stopCh:
			return
		case <-ticker.C:
			pm.RunOnce(ctx)
		}
	}
}
