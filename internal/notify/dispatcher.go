package notify

import (
	"context"
	"sync"
	"time"

	"github.com/aditya/haggle/internal/metrics"
	"github.com/aditya/haggle/internal/models"
	log "github.com/sirupsen/logrus"
)

const deliveryTimeout = 10 * time.Second

// AsyncDispatcher queues outcomes and delivers them to a Sink from a fixed
// pool of workers. A full queue drops the outcome instead of blocking.
type AsyncDispatcher struct {
	sink    Sink
	metrics *metrics.Metrics
	queue   chan models.Outcome
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncDispatcher(sink Sink, m *metrics.Metrics, queueSize, workers int) *AsyncDispatcher {
	if workers < 1 {
		workers = 1
	}
	return &AsyncDispatcher{
		sink:    sink,
		metrics: m,
		queue:   make(chan models.Outcome, queueSize),
		workers: workers,
	}
}

// Start launches the workers. They exit once Close has drained the queue.
func (d *AsyncDispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

func (d *AsyncDispatcher) Dispatch(outcome models.Outcome) {
	if outcome.IsEmpty() {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.Warn("dispatcher closed, dropping notifications")
		d.metrics.ObserveDropped()
		return
	}

	select {
	case d.queue <- outcome:
	default:
		fields := log.Fields{"notifications": len(outcome.Notifications)}
		if len(outcome.Notifications) > 0 {
			fields["offer_id"] = outcome.Notifications[0].OfferID
		}
		log.WithFields(fields).Warn("notification queue full, dropping outcome")
		d.metrics.ObserveDropped()
	}
}

// Close stops accepting outcomes and waits for queued ones to be delivered.
func (d *AsyncDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *AsyncDispatcher) work() {
	defer d.wg.Done()
	for outcome := range d.queue {
		d.deliver(outcome)
	}
}

func (d *AsyncDispatcher) deliver(outcome models.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	for _, n := range outcome.Notifications {
		err := d.sink.Notify(ctx, n)
		d.metrics.ObserveDelivery(d.sink.Name(), err)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"offer_id":  n.OfferID,
				"event":     n.Event,
				"recipient": n.RecipientID,
			}).Warn("failed to deliver notification")
		}
	}

	if outcome.Hint != nil {
		err := d.sink.Hint(ctx, *outcome.Hint)
		d.metrics.ObserveDelivery(d.sink.Name(), err)
		if err != nil {
			log.WithError(err).WithField("offer_id", outcome.Hint.OfferID).Warn("failed to deliver conversation hint")
		}
	}
}
