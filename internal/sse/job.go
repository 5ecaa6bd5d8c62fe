package sse

import (
	"context"
	"sync"
	"time"

	"offer-parser/internal/logger"
	"offer-parser/internal/model"
	"offer-parser/internal/service"
)

// BatchJob runs the batch scheduler on a fixed interval
type BatchJob struct {
	parseService service.ParseService
	logger       *logger.Logger
	interval     time.Duration
	size         int

	// running guards against overlapping runs when a batch outlasts the interval
	running sync.Mutex

	// Context for managing the job lifecycle
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBatchJob creates a periodic batch runner
func NewBatchJob(parseService service.ParseService, size int, interval time.Duration, logger *logger.Logger) *BatchJob {
	ctx, cancel := context.WithCancel(context.Background())

	return &BatchJob{
		parseService: parseService,
		logger:       logger,
		interval:     interval,
		size:         size,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RunOnce executes one batch unless another run is still in progress.
// The returned job is nil when the run was skipped.
func (j *BatchJob) RunOnce() (*model.BatchJob, error) {
	if !j.running.TryLock() {
		j.logger.Info("Previous batch still running, skipping tick")
		return nil, nil
	}
	defer j.running.Unlock()
	if j.ctx.Err() != nil {
		return nil, nil
	}

	job, err := j.parseService.RunBatch(j.ctx, j.size)
	if err != nil {
		j.logger.Error("Periodic batch failed:", err)
		return nil, err
	}
	return job, nil
}

// Start begins the periodic batch job. It blocks until Stop is called.
func (j *BatchJob) Start() {
	if j.interval <= 0 {
		j.logger.Info("Batch job disabled")
		return
	}
	j.logger.Info("Starting batch job with interval:", j.interval.String())

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			go j.RunOnce()
		case <-j.ctx.Done():
			j.logger.Info("Batch job stopped")
			return
		}
	}
}

// Stop stops the periodic job and waits for a batch in progress. That batch
// stops dispatching new extractions; calls already in flight finish or time
// out. Stop returns ctx.Err() if ctx ends first.
func (j *BatchJob) Stop(ctx context.Context) error {
	j.cancel()

	done := make(chan struct{})
	go func() {
		j.running.Lock()
		j.running.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetInterval returns the batch interval
func (j *BatchJob) GetInterval() time.Duration {
	return j.interval
}
