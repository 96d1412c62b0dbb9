package notify

import (
	"context"
	"sync"
	"time"

	"github.com/Stewz00/apisecure/internal/metrics"
	"github.com/sirupsen/logrus"
)

// DispatcherConfig tunes a Dispatcher.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

type job struct {
	kind      Kind
	recipient string
	payload   Payload
}

// Dispatcher is a Notifier that renders and sends on background workers.
// A full queue drops the notification.
type Dispatcher struct {
	sender  Sender
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

var _ Notifier = (*Dispatcher)(nil)

// NewDispatcher starts the workers. Call Close to drain and stop them.
func NewDispatcher(sender Sender, cfg DispatcherConfig, logger logrus.FieldLogger, m *metrics.Metrics) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	d := &Dispatcher{
		sender:  sender,
		logger:  logger,
		metrics: m,
		timeout: cfg.SendTimeout,
		jobs:    make(chan job, cfg.QueueSize),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.run()
	}
	return d
}

// Notify queues a notification and returns immediately.
func (d *Dispatcher) Notify(kind Kind, recipient string, payload Payload) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	log := d.logger.WithField("kind", kind)
	if d.closed {
		log.Warn("notification dropped: dispatcher closed")
		d.metrics.Notification(string(kind), "dropped")
		return
	}

	select {
	case d.jobs <- job{kind: kind, recipient: recipient, payload: payload}:
	default:
		log.Warn("notification dropped: queue full")
		d.metrics.Notification(string(kind), "dropped")
	}
}

// Close stops accepting notifications and waits for queued ones to be sent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	log := d.logger.WithField("kind", j.kind)

	msg, err := Render(j.kind, j.recipient, j.payload)
	if err != nil {
		log.WithError(err).Error("notification render failed")
		d.metrics.Notification(string(j.kind), "failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		log.WithError(err).Warn("notification send failed")
		d.metrics.Notification(string(j.kind), "failed")
		return
	}

	log.Debug("notification sent")
	d.metrics.Notification(string(j.kind), "sent")
}
