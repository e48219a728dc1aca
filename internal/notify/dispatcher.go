package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// Config controls dispatcher buffering and delivery.
type Config struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// Dispatcher forwards messages to a Sender from background workers. Submit never
// blocks: when the queue is full the message is dropped and counted.
type Dispatcher struct {
	cfg    Config
	sender Sender
	log    *zap.Logger

	ch        chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once

	dropped atomic.Uint64
	failed  atomic.Uint64

	dispatchedCounter metric.Int64Counter
	failedCounter     metric.Int64Counter
	droppedCounter    metric.Int64Counter
}

// NewDispatcher starts cfg.Workers workers. A nil meter disables metrics.
func NewDispatcher(cfg Config, sender Sender, log *zap.Logger, meter metric.Meter) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("notify")
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		log:    log,
		ch:     make(chan Message, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	d.dispatchedCounter, _ = meter.Int64Counter("notify.dispatched",
		metric.WithDescription("Notifications handed to the sender successfully"))
	d.failedCounter, _ = meter.Int64Counter("notify.failed",
		metric.WithDescription("Notifications the sender rejected"))
	d.droppedCounter, _ = meter.Int64Counter("notify.dropped",
		metric.WithDescription("Notifications dropped because the queue was full"))

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.run()
	}
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	if err := d.sender.SendHTML(ctx, msg.To, msg.Subject, msg.HTML); err != nil {
		d.failed.Add(1)
		d.count(d.failedCounter)
		d.log.Error("notification delivery failed",
			zap.String("to", MaskEmail(msg.To)),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		return
	}
	d.count(d.dispatchedCounter)
}

func (d *Dispatcher) count(c metric.Int64Counter) {
	if c != nil {
		c.Add(context.Background(), 1)
	}
}

// Submit queues msg for delivery and reports whether it was accepted.
func (d *Dispatcher) Submit(msg Message) bool {
	if d.closed.Load() {
		d.drop(msg, "dispatcher closed")
		return false
	}
	select {
	case d.ch <- msg:
		return true
	case <-d.done:
		d.drop(msg, "dispatcher closed")
		return false
	default:
		d.drop(msg, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(msg Message, reason string) {
	d.dropped.Add(1)
	d.count(d.droppedCounter)
	d.log.Warn("notification dropped",
		zap.String("to", MaskEmail(msg.To)),
		zap.String("reason", reason),
	)
}

// Close stops intake, delivers what is already queued and waits for the workers.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many messages were never handed to the sender.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Failed reports how many messages the sender rejected.
func (d *Dispatcher) Failed() uint64 { return d.failed.Load() }
