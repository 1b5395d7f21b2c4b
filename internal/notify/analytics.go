package notify

import (
	"context"
	"log"
	"sync"

	"patternpals/internal/common"
)

// AnalyticsCollector appends delivery samples through a buffered channel
// and a small worker pool. Record never blocks and sink failures never
// propagate; losing a sample is always preferable to delaying delivery.
type AnalyticsCollector struct {
	sink    common.AnalyticsSink
	samples chan common.DeliverySample
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewAnalyticsCollector(sink common.AnalyticsSink, workers, bufferSize int) *AnalyticsCollector {
	if workers <= 0 {
		workers = 1
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &AnalyticsCollector{
		sink:    sink,
		samples: make(chan common.DeliverySample, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.drainSamples()
	}

	return c
}

// Record enqueues a sample, dropping it when the buffer is full.
func (c *AnalyticsCollector) Record(sample common.DeliverySample) {
	select {
	case c.samples <- sample:
	case <-c.ctx.Done():
	default:
		log.Printf("Analytics channel full, dropping sample for %s", sample.NotificationID)
	}
}

// AverageElapsedMs queries the sink for the mean successful delivery latency.
func (c *AnalyticsCollector) AverageElapsedMs(ctx context.Context) float64 {
	if c.sink == nil {
		return 0
	}
	avg, err := c.sink.AverageElapsedMs(ctx)
	if err != nil {
		log.Printf("Failed to read average delivery time: %v", err)
		return 0
	}
	return avg
}

func (c *AnalyticsCollector) drainSamples() {
	defer c.wg.Done()

	for {
		select {
		case sample := <-c.samples:
			if c.sink == nil {
				continue
			}
			if err := c.sink.Insert(context.Background(), sample); err != nil {
				log.Printf("Failed to record delivery sample: %v", err)
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Shutdown stops the workers and flushes whatever is still buffered.
func (c *AnalyticsCollector) Shutdown() {
	c.cancel()
	c.wg.Wait()

	for {
		select {
		case sample := <-c.samples:
			if c.sink == nil {
				continue
			}
			if err := c.sink.Insert(context.Background(), sample); err != nil {
				log.Printf("Failed to record delivery sample: %v", err)
			}
		default:
			return
		}
	}
}
