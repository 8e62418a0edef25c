package bus

import (
	"context"

	"github.com/interteks/loomtrack/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, ev realtime.Event) error
	StartForwarder(ctx context.Context, onEvent func(ev realtime.Event)) error
	Close() error
}

var _ realtime.Relay = Bus(nil)
