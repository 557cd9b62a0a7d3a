package mailer

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/storefront/internal/logging"
)

// FailureHook observes failed deliveries.
type FailureHook func(ctx context.Context, msg Message, err error)

// Dispatcher sends mail on background goroutines with a context detached
// from the caller, so a finished HTTP request does not cancel delivery.
type Dispatcher struct {
	sender    Sender
	timeout   time.Duration
	log       logging.Logger
	onFailure FailureHook
	onSuccess func(msg Message)
	wg        sync.WaitGroup
}

type Option func(*Dispatcher)

func WithFailureHook(h FailureHook) Option {
	return func(d *Dispatcher) { d.onFailure = h }
}

func WithSuccessHook(h func(msg Message)) Option {
	return func(d *Dispatcher) { d.onSuccess = h }
}

func NewDispatcher(sender Sender, timeout time.Duration, log logging.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		timeout: timeout,
		log:     log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch starts delivering msg and returns at once. The returned channel
// yields the delivery result exactly once and is then closed; callers are
// free to ignore it.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) <-chan error {
	result := make(chan error, 1)
	sendCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(result)

		if d.timeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(sendCtx, d.timeout)
			defer cancel()
		}

		err := d.sender.Send(sendCtx, msg)
		if err != nil {
			d.log.Error(sendCtx, "mail delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
			if d.onFailure != nil {
				d.onFailure(sendCtx, msg, err)
			}
		} else {
			d.log.Debug(sendCtx, "mail delivered", "to", msg.To, "subject", msg.Subject)
			if d.onSuccess != nil {
				d.onSuccess(msg)
			}
		}
		result <- err
	}()

	return result
}

// Wait blocks until every dispatched message has settled or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
