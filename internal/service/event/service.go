package event

import (
	"context"
	"sync"
	"time"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
)

const (
	DefaultQueueSize    = 256
	DefaultWorkers      = 4
	DefaultMatchTimeout = 10 * time.Second
)

type DispatcherConfig struct {
	QueueSize    int
	Workers      int
	MatchTimeout time.Duration
}

// Dispatcher fans freed slots out to a fixed pool of workers through a
// bounded queue. Publish never blocks.
type Dispatcher struct {
	handler SlotFreedHandler
	cfg     DispatcherConfig
	log     *logger.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	closed  bool
	started bool
	queue   chan model.FreedSlot
	wg      sync.WaitGroup
}

func NewDispatcher(handler SlotFreedHandler, cfg DispatcherConfig, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MatchTimeout <= 0 {
		cfg.MatchTimeout = DefaultMatchTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		handler: handler,
		cfg:     cfg,
		log:     log,
		metrics: m,
		queue:   make(chan model.FreedSlot, cfg.QueueSize),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.log.Info("slot dispatcher started", "workers", d.cfg.Workers, "queue_size", d.cfg.QueueSize)
}

// Publish enqueues slot or drops it when the queue is full or the
// dispatcher is closed.
func (d *Dispatcher) Publish(slot model.FreedSlot) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(slot, "dispatcher closed")
		return
	}
	select {
	case d.queue <- slot:
	default:
		d.drop(slot, "queue full")
	}
}

// Close stops accepting events and waits for queued ones to drain.
func (d *Dispatcher) Close() {
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

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for slot := range d.queue {
		d.dispatch(slot, id)
	}
}

func (d *Dispatcher) dispatch(slot model.FreedSlot, workerID int) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.MatchTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.log.Warn("slot handler panicked", "panic", r, "worker", workerID,
				"appointment_id", slot.AppointmentID.String())
		}
	}()

	if err := d.handler.HandleSlotFreed(ctx, slot); err != nil {
		d.log.Error(err, "failed to process freed slot",
			"worker", workerID,
			"tenant_id", slot.TenantID.String(),
			"practitioner_id", slot.PractitionerID.String(),
			"appointment_id", slot.AppointmentID.String())
	}
}

func (d *Dispatcher) drop(slot model.FreedSlot, reason string) {
	d.log.Warn("dropping freed slot", "reason", reason,
		"tenant_id", slot.TenantID.String(),
		"appointment_id", slot.AppointmentID.String())
	d.metrics.SlotFreedDrop()
}

// Inline runs the handler on the caller's goroutine and swallows its error.
// Tests use it to observe matching deterministically.
type Inline struct {
	Handler SlotFreedHandler
	Log     *logger.Logger
}

func (p Inline) Publish(slot model.FreedSlot) {
	if err := p.Handler.HandleSlotFreed(context.Background(), slot); err != nil && p.Log != nil {
		p.Log.Error(err, "failed to process freed slot", "appointment_id", slot.AppointmentID.String())
	}
}
