package mailer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/pwkeeper/internal/logging"
)

// Outcome of a queued message, reported to the Recorder.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// Recorder observes delivery outcomes, e.g. for metrics.
type Recorder func(kind Kind, outcome string)

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher hands messages to a Sender from background workers.
// Enqueue never blocks: a full queue drops the message and logs it.
// Delivery errors are logged and never reach the caller.
type Dispatcher struct {
	cfg    DispatcherConfig
	sender Sender
	logger logging.Logger
	record Recorder

	ch        chan Message
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func NewDispatcher(cfg DispatcherConfig, sender Sender, logger logging.Logger, record Recorder) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if record == nil {
		record = func(Kind, string) {}
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		logger: logger.With("module", "mailer"),
		record: record,
		ch:     make(chan Message, cfg.QueueSize),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.run()
	}
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for m := range d.ch {
		d.deliver(m)
	}
}

func (d *Dispatcher) deliver(m Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, m); err != nil {
		d.logger.Error(ctx, "email delivery failed", "kind", string(m.Kind), "error", err)
		d.record(m.Kind, OutcomeFailed)
		return
	}
	d.logger.Debug(ctx, "email sent", "kind", string(m.Kind))
	d.record(m.Kind, OutcomeSent)
}

// Enqueue queues m for delivery and returns at once.
func (d *Dispatcher) Enqueue(ctx context.Context, m Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(ctx, m, "dispatcher closed")
		return
	}

	select {
	case d.ch <- m:
	default:
		d.drop(ctx, m, "queue full")
	}
}

func (d *Dispatcher) drop(ctx context.Context, m Message, reason string) {
	d.dropped.Add(1)
	d.record(m.Kind, OutcomeDropped)
	d.logger.Warn(ctx, "email dropped", "kind", string(m.Kind), "reason", reason)
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.ch)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}
