package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sharemart/sharemart/internal/catalog"
	"github.com/sharemart/sharemart/internal/metrics"
)

// queueSize bounds in-flight notification jobs. Enqueue drops when full.
const queueSize = 256

// sendTimeout bounds each delivery attempt.
const sendTimeout = 30 * time.Second

// Broadcaster pushes events to connected realtime clients.
type Broadcaster interface {
	BroadcastToUser(userID string, event any)
}

// Dispatcher delivers notifications asynchronously: each job persists an
// in-app notification row and best-effort sends an email. Jobs that cannot
// be queued are dropped and logged, never retried against the caller.
type Dispatcher struct {
	store       Store
	users       catalog.Store
	emailer     Emailer     // nil = email disabled
	broadcaster Broadcaster // nil = realtime disabled
	logger      *slog.Logger

	jobs chan *Notification
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewDispatcher creates a dispatcher. Call Start before enqueuing.
func NewDispatcher(store Store, users catalog.Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		users:  users,
		logger: logger,
		jobs:   make(chan *Notification, queueSize),
		stop:   make(chan struct{}),
	}
}

// WithEmailer enables email delivery.
func (d *Dispatcher) WithEmailer(e Emailer) *Dispatcher {
	d.emailer = e
	return d
}

// WithBroadcaster enables realtime pushes.
func (d *Dispatcher) WithBroadcaster(b Broadcaster) *Dispatcher {
	d.broadcaster = b
	return d
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop drains queued jobs and stops the worker.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.stop) })
	d.wg.Wait()
}

// Enqueue queues a notification for delivery. Non-blocking: when the
// queue is full the job is dropped with a log line.
func (d *Dispatcher) Enqueue(n *Notification) {
	select {
	case d.jobs <- n:
		metrics.NotifyQueueDepth.Set(float64(len(d.jobs)))
	default:
		metrics.NotificationsTotal.WithLabelValues("queue", "dropped").Inc()
		d.logger.Warn("notification queue full, dropping",
			"user_id", n.UserID, "subject", n.Subject)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.jobs:
			metrics.NotifyQueueDepth.Set(float64(len(d.jobs)))
			d.deliver(n)
		case <-d.stop:
			// Drain whatever is already queued
			for {
				select {
				case n := <-d.jobs:
					d.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(n *Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := d.store.Create(ctx, n); err != nil {
		metrics.NotificationsTotal.WithLabelValues("inapp", "error").Inc()
		d.logger.Error("failed to persist notification",
			"user_id", n.UserID, "quote_id", n.QuoteID, "error", err)
	} else {
		metrics.NotificationsTotal.WithLabelValues("inapp", "ok").Inc()
	}

	if d.broadcaster != nil {
		d.broadcaster.BroadcastToUser(n.UserID, n)
	}

	if d.emailer == nil {
		return
	}

	user, err := d.users.GetUser(ctx, n.UserID)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("email", "error").Inc()
		d.logger.Warn("cannot resolve notification recipient",
			"user_id", n.UserID, "error", err)
		return
	}

	if err := d.emailer.Send(ctx, user.Email, user.Name, n.Subject, n.Message); err != nil {
		metrics.NotificationsTotal.WithLabelValues("email", "error").Inc()
		d.logger.Warn("email delivery failed",
			"user_id", n.UserID, "quote_id", n.QuoteID, "error", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues("email", "ok").Inc()
}
