package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"patternpals/internal/common"
)

func TestAnalyticsCollectorRecordAndFlush(t *testing.T) {
	sink := new(MockAnalyticsSink)
	sink.On("Insert", mock.Anything, mock.Anything).Return(nil)

	c := NewAnalyticsCollector(sink, 2, 100)
	for i := 0; i < 5; i++ {
		c.Record(common.DeliverySample{NotificationID: "n1", Success: true})
	}
	c.Shutdown()

	sink.AssertNumberOfCalls(t, "Insert", 5)
}

func TestAnalyticsCollectorDropsWhenBufferFull(t *testing.T) {
	// No workers draining: the buffer fills and the overflow is dropped
	// rather than blocking the caller.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &AnalyticsCollector{
		samples: make(chan common.DeliverySample, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	done := make(chan struct{})
	go func() {
		c.Record(common.DeliverySample{NotificationID: "n1"})
		c.Record(common.DeliverySample{NotificationID: "n2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
	assert.Len(t, c.samples, 1)
}

func TestAnalyticsCollectorNilSink(t *testing.T) {
	c := NewAnalyticsCollector(nil, 1, 10)
	c.Record(common.DeliverySample{NotificationID: "n1"})
	assert.Zero(t, c.AverageElapsedMs(context.Background()))
	c.Shutdown()
}

func TestAnalyticsCollectorAverageElapsedMs(t *testing.T) {
	sink := new(MockAnalyticsSink)
	sink.On("AverageElapsedMs", mock.Anything).Return(42.5, nil)

	c := NewAnalyticsCollector(sink, 1, 10)
	defer c.Shutdown()

	assert.Equal(t, 42.5, c.AverageElapsedMs(context.Background()))
}

func TestAnalyticsCollectorAverageErrorFallsBackToZero(t *testing.T) {
	sink := new(MockAnalyticsSink)
	sink.On("AverageElapsedMs", mock.Anything).Return(0.0, errors.New("mongo unavailable"))

	c := NewAnalyticsCollector(sink, 1, 10)
	defer c.Shutdown()

	assert.Zero(t, c.AverageElapsedMs(context.Background()))
}

func TestAnalyticsCollectorSinkFailureDoesNotPropagate(t *testing.T) {
	sink := new(MockAnalyticsSink)
	sink.On("Insert", mock.Anything, mock.Anything).Return(errors.New("mongo unavailable"))

	c := NewAnalyticsCollector(sink, 1, 10)
	c.Record(common.DeliverySample{NotificationID: "n1"})
	c.Shutdown()

	sink.AssertCalled(t, "Insert", mock.Anything, mock.Anything)
}
