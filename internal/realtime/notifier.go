package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/interteks/loomtrack/internal/platform/logger"
)

const (
	relayQueueSize        = 256
	defaultPublishTimeout = 2 * time.Second
)

// Notifier accepts events from the write paths. Publish never fails or
// blocks the caller.
type Notifier interface {
	Publish(ctx context.Context, ev Event)
}

// Relay carries events between instances.
type Relay interface {
	Publish(ctx context.Context, ev Event) error
	StartForwarder(ctx context.Context, onEvent func(ev Event)) error
	Close() error
}

type Fanout struct {
	hub   *Hub
	relay Relay
	log   *logger.Logger

	queue          chan Event
	publishTimeout time.Duration
	// localOnly is set once the relay subscription is known to be down.
	localOnly atomic.Bool

	stop     context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewNotifier delivers to hub directly, or through relay when one is set.
// Relay publishes happen on a single background goroutine; events received
// from the relay reach hub once Start is called.
func NewNotifier(hub *Hub, relay Relay, log *logger.Logger) *Fanout {
	f := &Fanout{
		hub:            hub,
		relay:          relay,
		log:            log.With("component", "Notifier"),
		publishTimeout: defaultPublishTimeout,
		done:           make(chan struct{}),
	}
	if relay == nil {
		close(f.done)
		return f
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.stop = cancel
	f.queue = make(chan Event, relayQueueSize)
	go f.drain(ctx)
	return f
}

// Start subscribes to the relay. A failed subscription is logged and the
// notifier keeps delivering locally.
func (f *Fanout) Start(ctx context.Context) error {
	if f.relay == nil {
		return nil
	}
	if err := f.relay.StartForwarder(ctx, f.hub.Broadcast); err != nil {
		f.localOnly.Store(true)
		f.log.Error("Relay subscription failed, live events stay on this instance", "error", err)
	}
	return nil
}

func (f *Fanout) Publish(_ context.Context, ev Event) {
	if f.relay == nil || f.localOnly.Load() {
		f.hub.Broadcast(ev)
		return
	}
	select {
	case f.queue <- ev:
	default:
		f.log.Warn("Relay queue full, delivering locally", "type", ev.Type, "loom_id", ev.LoomID)
		f.hub.Broadcast(ev)
	}
}

func (f *Fanout) drain(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-f.queue:
			pctx, cancel := context.WithTimeout(ctx, f.publishTimeout)
			err := f.relay.Publish(pctx, ev)
			cancel()
			if err != nil {
				f.log.Warn("Relay publish failed, delivering locally", "type", ev.Type, "error", err)
				f.hub.Broadcast(ev)
			}
		}
	}
}

func (f *Fanout) Close() error {
	if f.relay == nil {
		return nil
	}
	f.stopOnce.Do(f.stop)
	<-f.done
	return f.relay.Close()
}
