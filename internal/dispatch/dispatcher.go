// Package dispatch serializes event processing per pull request.
//
// Events carrying the same ordering key always land on the same partition
// and are processed one at a time in the order they were submitted. Events
// for different keys may run in parallel on different partitions.
package dispatch

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/pulljoy/internal/event"
)

// ErrDispatcherStopped is returned for events submitted after Stop.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

const (
	// DefaultPartitions is the number of partitions used when none is
	// configured.
	DefaultPartitions = 8

	// DefaultMailboxSize is the per-partition queue length used when
	// none is configured.
	DefaultMailboxSize = 64
)

// Handler processes one event.
type Handler interface {
	Process(ctx context.Context, ev event.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev event.Event) error

// Process implements Handler.
func (f HandlerFunc) Process(ctx context.Context, ev event.Event) error {
	return f(ctx, ev)
}

// Config configures a Dispatcher.
type Config struct {
	// Partitions is the number of serial workers.
	Partitions int

	// MailboxSize is the number of events each worker queues before
	// submitters block.
	MailboxSize int
}

// Receipt describes a processed event.
type Receipt struct {
	// Partition is the worker that processed the event.
	Partition int

	// Elapsed is the processing time, excluding time spent queued.
	Elapsed time.Duration
}

// envelope wraps an event with the context it was submitted under. A nil
// reply channel marks a Tell.
type envelope struct {
	ctx   context.Context
	ev    event.Event
	reply chan fn.Result[Receipt]
}

// Dispatcher routes events to partitions by ordering key.
type Dispatcher struct {
	handler Handler

	mailboxes []chan envelope

	// rr spreads keyless events across partitions.
	rr atomic.Uint64

	// mu guards stopped and the closing of mailboxes. Senders hold the
	// read lock while enqueueing.
	mu      sync.RWMutex
	stopped bool

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New returns a dispatcher that feeds handler. Call Start before
// submitting events.
func New(handler Handler, cfg Config) *Dispatcher {
	if cfg.Partitions <= 0 {
		cfg.Partitions = DefaultPartitions
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = DefaultMailboxSize
	}

	mailboxes := make([]chan envelope, cfg.Partitions)
	for i := range mailboxes {
		mailboxes[i] = make(chan envelope, cfg.MailboxSize)
	}

	return &Dispatcher{
		handler:   handler,
		mailboxes: mailboxes,
	}
}

// Start launches one worker per partition.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		log.InfoS(context.Background(), "Starting dispatcher",
			"partitions", len(d.mailboxes))

		for i, mailbox := range d.mailboxes {
			d.wg.Add(1)
			go d.worker(i, mailbox)
		}
	})
}

// Stop refuses new events and waits until every queued event has been
// processed.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		for _, mailbox := range d.mailboxes {
			close(mailbox)
		}
		d.mu.Unlock()

		d.wg.Wait()

		log.InfoS(context.Background(), "Dispatcher stopped")
	})
}

// Partition returns the partition an event is routed to. Keyless events
// take the next partition in round-robin order.
func (d *Dispatcher) Partition(ev event.Event) int {
	n := uint64(len(d.mailboxes))

	key := ev.OrderingKey()
	if key.IsNone() {
		return int(d.rr.Add(1) % n)
	}

	return int(uint64(partitionHash(key.UnwrapOr(""))) % n)
}

// partitionHash is the FNV-1a hash of an ordering key.
func partitionHash(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))

	return h.Sum32()
}

// Tell queues ev without waiting for it to be processed. Processing errors
// are only logged.
func (d *Dispatcher) Tell(ctx context.Context, ev event.Event) error {
	return d.enqueue(ctx, envelope{ctx: ctx, ev: ev})
}

// Ask queues ev and waits for it to be processed. If ctx ends first, Ask
// returns ctx's error while the event is still processed to completion.
func (d *Dispatcher) Ask(ctx context.Context,
	ev event.Event) fn.Result[Receipt] {

	reply := make(chan fn.Result[Receipt], 1)
	if err := d.enqueue(ctx, envelope{
		ctx: ctx, ev: ev, reply: reply,
	}); err != nil {
		return fn.Err[Receipt](err)
	}

	select {
	case result := <-reply:
		return result

	case <-ctx.Done():
		return fn.Err[Receipt](ctx.Err())
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, env envelope) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	partition := d.Partition(env.ev)

	log.TraceS(ctx, "Queueing event", "kind", env.ev.Kind(),
		"partition", partition, "is_ask", env.reply != nil)

	select {
	case d.mailboxes[partition] <- env:
		return nil

	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker processes one partition's events in order until its mailbox is
// closed and drained.
func (d *Dispatcher) worker(partition int, mailbox <-chan envelope) {
	defer d.wg.Done()

	for env := range mailbox {
		// Once started, an event runs to completion even if the
		// submitter goes away, so no side effect is cut short.
		ctx := context.WithoutCancel(env.ctx)

		start := time.Now()
		err := d.handler.Process(ctx, env.ev)
		receipt := Receipt{
			Partition: partition,
			Elapsed:   time.Since(start),
		}

		if err != nil && env.reply == nil {
			log.WarnS(ctx, "Event processing failed", err,
				"kind", env.ev.Kind(), "partition", partition)
		}

		if env.reply == nil {
			continue
		}
		if err != nil {
			env.reply <- fn.Err[Receipt](err)
		} else {
			env.reply <- fn.Ok(receipt)
		}
	}

	log.DebugS(context.Background(), "Partition drained",
		"partition", partition)
}
