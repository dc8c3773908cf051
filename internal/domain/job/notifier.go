package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/danavision/discovery-go/internal/domain/model"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until a new-job notification arrives for the given type.
// The Postgres LISTEN bridge in the data layer is the production waiter.
type Waiter interface {
	WaitForNotification(ctx context.Context, jobType model.JobType) error
}

// Notifier fans job availability notifications out to worker subscribers.
type Notifier interface {
	Subscribe(jobType model.JobType) (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure the default notifier. WaitWindow bounds each
// LISTEN round so a silent channel still re-polls; Backoff spaces retries
// after a failed wait.
type NotifierOptions struct {
	Waiter     Waiter
	WaitWindow time.Duration
	Backoff    time.Duration
}

// typeListener is the per-job-type fan-out state: one listen loop feeding
// every subscriber channel for that type.
type typeListener struct {
	cancel context.CancelFunc
	subs   map[chan struct{}]struct{}
}

// DefaultNotifier runs one listen loop per job type with at least one
// subscriber. The loop starts with the first Subscribe for a type and stops
// with the last unsubscribe, so idle processes hold no LISTEN connections.
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu        sync.Mutex
	listeners map[model.JobType]*typeListener
}

var _ Notifier = (*DefaultNotifier)(nil)

// NewNotifier constructs the default notifier implementation.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}

	waitWindow := opts.WaitWindow
	if waitWindow <= 0 {
		waitWindow = time.Minute
	}

	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	return &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: waitWindow,
		backoff:    backoff,
		listeners:  make(map[model.JobType]*typeListener),
	}, nil
}

// Subscribe registers interest in a job type. The returned channel carries a
// signal per notification burst (capacity one, extra signals coalesce). The
// returned func unsubscribes; calling it more than once is safe.
func (n *DefaultNotifier) Subscribe(jobType model.JobType) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	listener, ok := n.listeners[jobType]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		listener = &typeListener{
			cancel: cancel,
			subs:   make(map[chan struct{}]struct{}),
		}
		n.listeners[jobType] = listener
		go n.listenLoop(ctx, jobType)
	}

	ch := make(chan struct{}, 1)
	listener.subs[ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()

		l, ok := n.listeners[jobType]
		if !ok {
			return
		}
		if _, ok := l.subs[ch]; !ok {
			return
		}
		delete(l.subs, ch)
		drainAndClose(ch)
		if len(l.subs) == 0 {
			l.cancel()
			delete(n.listeners, jobType)
		}
	}

	return unsub, ch
}

// StopAll cancels every listen loop and closes every subscriber channel.
// Used at shutdown; subscribers observe the close and stop waiting.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for jobType, listener := range n.listeners {
		listener.cancel()
		for ch := range listener.subs {
			drainAndClose(ch)
		}
		delete(n.listeners, jobType)
	}
}

func (n *DefaultNotifier) listenLoop(ctx context.Context, jobType model.JobType) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx, jobType)
		cancel()

		// Broadcast even when the wait errored or timed out: a spurious
		// wakeup costs one empty reservation attempt, a missed one could
		// strand a job until the next poll.
		n.broadcast(jobType)

		if err != nil && ctx.Err() == nil {
			timer := time.NewTimer(n.backoff)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return
			case <-timer.C:
			}
		}
	}
}

func (n *DefaultNotifier) broadcast(jobType model.JobType) {
	n.mu.Lock()
	defer n.mu.Unlock()

	listener, ok := n.listeners[jobType]
	if !ok {
		return
	}
	for ch := range listener.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose empties buffered signals before closing so receivers observe
// the close immediately instead of one stale signal first.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}
