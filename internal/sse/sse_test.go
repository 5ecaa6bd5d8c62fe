package sse

import (
	"context"
	"encoding/json"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"offer-parser/internal/logger"
	"offer-parser/internal/model"
	"offer-parser/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEManager(t *testing.T) {
	manager := NewSSEManager(logger.NewWithWriter(io.Discard))
	defer manager.Close()

	// Test adding a client
	clientChannel := manager.AddClient()
	assert.Equal(t, 1, manager.ClientCount())

	// Test broadcasting a record change
	email := model.NewEmail("acc-1", "msg_123", "sender@example.com", "Sender", "Test Subject", "Test body", time.Now())
	var notifier service.Notifier = manager
	notifier.EmailUpdated(email)

	select {
	case msg := <-clientChannel:
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal(msg, &event))
		assert.Equal(t, EventEmailUpdated, event["type"])
		assert.Equal(t, email.ID, event["data"].(map[string]interface{})["id"])
	case <-time.After(time.Second):
		t.Fatal("Did not receive message within timeout")
	}

	// Test removing client
	manager.RemoveClient(clientChannel)
	assert.Equal(t, 0, manager.ClientCount())
	_, open := <-clientChannel
	assert.False(t, open)
}

func TestSSEManagerDropsForSlowClient(t *testing.T) {
	manager := NewSSEManager(logger.NewWithWriter(io.Discard))
	defer manager.Close()

	clientChannel := manager.AddClient()
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(clientChannel)+5; i++ {
			manager.BatchCompleted(model.NewBatchJob(1))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full client")
	}
	assert.Len(t, clientChannel, cap(clientChannel))
}

type countingParseService struct {
	runs  atomic.Int32
	block chan struct{}
}

func (c *countingParseService) ParseOne(ctx context.Context, id string, opts service.ParseOptions) (*model.Email, error) {
	return nil, nil
}

func (c *countingParseService) RunBatch(ctx context.Context, size int) (*model.BatchJob, error) {
	c.runs.Add(1)
	if c.block != nil {
		<-c.block
	}
	return model.NewBatchJob(size), nil
}

func TestBatchJobRunOnce(t *testing.T) {
	parser := &countingParseService{}
	job := NewBatchJob(parser, 5, time.Minute, logger.NewWithWriter(io.Discard))

	result, err := job.RunOnce()
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 5, result.RequestedSize)
	assert.Equal(t, int32(1), parser.runs.Load())
	assert.Equal(t, time.Minute, job.GetInterval())
}

func TestBatchJobSkipsOverlappingRuns(t *testing.T) {
	parser := &countingParseService{block: make(chan struct{})}
	job := NewBatchJob(parser, 5, time.Minute, logger.NewWithWriter(io.Discard))

	go job.RunOnce()
	require.Eventually(t, func() bool { return parser.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	result, err := job.RunOnce()
	assert.NoError(t, err)
	assert.Nil(t, result)

	close(parser.block)
	assert.Equal(t, int32(1), parser.runs.Load())
}

func TestBatchJobStartAndStop(t *testing.T) {
	parser := &countingParseService{}
	job := NewBatchJob(parser, 1, 10*time.Millisecond, logger.NewWithWriter(io.Discard))

	stopped := make(chan struct{})
	go func() {
		job.Start()
		close(stopped)
	}()

	require.Eventually(t, func() bool { return parser.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, job.Stop(context.Background()))

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("job did not stop")
	}
}

func TestBatchJobStopWaitsForRunningBatch(t *testing.T) {
	parser := &countingParseService{block: make(chan struct{})}
	job := NewBatchJob(parser, 5, time.Minute, logger.NewWithWriter(io.Discard))

	go job.RunOnce()
	require.Eventually(t, func() bool { return parser.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- job.Stop(context.Background()) }()

	// Test Stop blocks while the batch is still running
	select {
	case <-stopped:
		t.Fatal("Stop returned before the batch finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(parser.block)
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the batch finished")
	}

	// Test a stopped job no longer runs batches
	result, err := job.RunOnce()
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, int32(1), parser.runs.Load())
}

func TestBatchJobStopGivesUpAtDeadline(t *testing.T) {
	parser := &countingParseService{block: make(chan struct{})}
	defer close(parser.block)
	job := NewBatchJob(parser, 5, time.Minute, logger.NewWithWriter(io.Discard))

	go job.RunOnce()
	require.Eventually(t, func() bool { return parser.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, job.Stop(ctx), context.DeadlineExceeded)
}
