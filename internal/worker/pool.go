package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrBackpressure is returned by Submit when the queue is full
var ErrBackpressure = errors.New("worker pool queue full (backpressure)")

// ScoreTask represents a completion time waiting to be persisted
type ScoreTask struct {
	LevelID uint
	UserID  string
	Time    int64
}

// ScoreSaver persists a score submission
type ScoreSaver interface {
	SaveScore(ctx context.Context, levelID uint, userID string, elapsed int64) error
}

// Recorder receives pool events, typically the Prometheus manager
type Recorder interface {
	ScoreProcessed(seconds float64)
	ScoreFailed()
	Backpressure()
	QueueDepth(n int)
}

type nopRecorder struct{}

func (nopRecorder) ScoreProcessed(float64) {}
func (nopRecorder) ScoreFailed()           {}
func (nopRecorder) Backpressure()          {}
func (nopRecorder) QueueDepth(int)         {}

// WorkerPool manages a pool of workers for asynchronous score writes
type WorkerPool struct {
	jobs        chan ScoreTask
	workerCount int
	saver       ScoreSaver
	recorder    Recorder
	taskTimeout time.Duration
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	metrics     *PoolMetrics
	closeOnce   sync.Once
	closed      chan struct{}
	mu          sync.RWMutex
}

// PoolMetrics tracks worker pool performance
type PoolMetrics struct {
	mu              sync.RWMutex
	processed       int64
	failed          int64
	backpressure    int64
	totalProcessing time.Duration
}

// NewWorkerPool creates a new worker pool. A nil recorder disables metric export.
func NewWorkerPool(workerCount, queueSize int, saver ScoreSaver, recorder Recorder) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &WorkerPool{
		jobs:        make(chan ScoreTask, queueSize),
		workerCount: workerCount,
		saver:       saver,
		recorder:    recorder,
		taskTimeout: 5 * time.Second,
		ctx:         ctx,
		cancel:      cancel,
		metrics:     &PoolMetrics{},
		closed:      make(chan struct{}),
	}
}

// Start initializes and starts all worker goroutines
func (wp *WorkerPool) Start() {
	log.Printf("Starting worker pool with %d workers and queue size %d", wp.workerCount, cap(wp.jobs))

	for i := 1; i <= wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return

		case task, ok := <-wp.jobs:
			if !ok {
				return
			}
			wp.recorder.QueueDepth(len(wp.jobs))
			wp.processTask(id, task)
		}
	}
}

// processTask persists a single submission, recovering from panics so one bad task
// cannot take a worker down
func (wp *WorkerPool) processTask(workerID int, task ScoreTask) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker #%d PANIC recovered: %v (level %d, user %s)", workerID, r, task.LevelID, task.UserID)
			wp.metrics.incrementFailed()
			wp.recorder.ScoreFailed()
		}
	}()

	startTime := time.Now()

	ctx, cancel := context.WithTimeout(wp.ctx, wp.taskTimeout)
	defer cancel()

	err := wp.saver.SaveScore(ctx, task.LevelID, task.UserID, task.Time)
	processingTime := time.Since(startTime)

	if err != nil {
		log.Printf("Worker #%d failed to persist score of %s on level %d: %v (took %v)",
			workerID, task.UserID, task.LevelID, err, processingTime)
		wp.metrics.incrementFailed()
		wp.recorder.ScoreFailed()
		return
	}

	wp.metrics.recordSuccess(processingTime)
	wp.recorder.ScoreProcessed(processingTime.Seconds())
}

// Submit queues a task without blocking. ErrBackpressure is returned when the queue is
// full or the pool is shutting down.
func (wp *WorkerPool) Submit(task ScoreTask) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	select {
	case <-wp.closed:
		return fmt.Errorf("%w: pool is shutting down", ErrBackpressure)
	default:
	}

	select {
	case wp.jobs <- task:
		wp.recorder.QueueDepth(len(wp.jobs))
		return nil

	default:
		log.Printf("BACKPRESSURE WARNING: queue full, dropping score of %s on level %d", task.UserID, task.LevelID)
		wp.metrics.incrementBackpressure()
		wp.recorder.Backpressure()
		return ErrBackpressure
	}
}

// Shutdown stops accepting tasks and waits for queued ones to drain
func (wp *WorkerPool) Shutdown(timeout time.Duration) error {
	log.Printf("Shutting down worker pool...")

	wp.closeOnce.Do(func() {
		wp.mu.Lock()
		close(wp.closed)
		close(wp.jobs)
		wp.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.cancel()
		wp.printMetrics()
		return nil

	case <-time.After(timeout):
		wp.cancel()
		log.Printf("Worker pool shutdown timed out after %v", timeout)
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// QueueLength returns the number of queued tasks
func (wp *WorkerPool) QueueLength() int {
	return len(wp.jobs)
}

// GetMetrics returns a snapshot of the pool metrics
func (wp *WorkerPool) GetMetrics() map[string]interface{} {
	wp.metrics.mu.RLock()
	defer wp.metrics.mu.RUnlock()

	avgProcessing := time.Duration(0)
	if wp.metrics.processed > 0 {
		avgProcessing = wp.metrics.totalProcessing / time.Duration(wp.metrics.processed)
	}

	return map[string]interface{}{
		"processed":           wp.metrics.processed,
		"failed":              wp.metrics.failed,
		"backpressure_events": wp.metrics.backpressure,
		"avg_processing_time": avgProcessing.String(),
		"queue_utilization":   fmt.Sprintf("%d/%d", len(wp.jobs), cap(wp.jobs)),
	}
}

func (wp *WorkerPool) printMetrics() {
	metrics := wp.GetMetrics()
	log.Printf("Worker pool metrics: processed=%v failed=%v backpressure=%v avg=%v",
		metrics["processed"], metrics["failed"], metrics["backpressure_events"], metrics["avg_processing_time"])
}

func (pm *PoolMetrics) recordSuccess(duration time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.processed++
	pm.totalProcessing += duration
}

func (pm *PoolMetrics) incrementFailed() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.failed++
}

func (pm *PoolMetrics) incrementBackpressure() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.backpressure++
}
