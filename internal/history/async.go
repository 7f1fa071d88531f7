package history

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Async hands records to a background worker so callers never wait on the
// underlying sink. When the queue is full new records are dropped.
type Async struct {
	sink    Sink
	timeout time.Duration
	queue   chan []Record

	mu      sync.Mutex
	closed  bool
	dropped int
	wg      sync.WaitGroup
}

// NewAsync starts a worker writing to sink with a per-write timeout
func NewAsync(sink Sink, queueSize int, timeout time.Duration) *Async {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a := &Async{
		sink:    sink,
		timeout: timeout,
		queue:   make(chan []Record, queueSize),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Write enqueues records and returns immediately
func (a *Async) Write(_ context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	select {
	case a.queue <- records:
	default:
		a.dropped += len(records)
		logrus.WithField("dropped", len(records)).Warn("History queue full, dropping records")
	}
	return nil
}

// Dropped returns the number of records lost to a full queue
func (a *Async) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close stops accepting records and waits for queued ones to be written
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Async) run() {
	defer a.wg.Done()
	for records := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.sink.Write(ctx, records...); err != nil {
			logrus.WithError(err).WithField("count", len(records)).Warn("Failed to write history")
		}
		cancel()
	}
}
