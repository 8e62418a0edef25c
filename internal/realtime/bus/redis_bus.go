package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/realtime"
)

const DefaultChannel = "loomtrack:events"

// envelope is the wire format on the channel. Source lets log lines tell
// instances apart.
type envelope struct {
	Source string         `json:"source"`
	Event  realtime.Event `json:"event"`
}

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	source  string
}

// NewRedisBus connects to addr, which is either host:port or a redis:// URL
// carrying credentials and a database number.
func NewRedisBus(ctx context.Context, addr, channel string, log *logger.Logger) (Bus, error) {
	opts, err := redisOptions(addr)
	if err != nil {
		return nil, err
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	b := &redisBus{
		rdb:     rdb,
		channel: channel,
		source:  instanceName(),
	}
	b.log = log.With("service", "RedisEventBus", "channel", channel, "source", b.source)
	return b, nil
}

func redisOptions(addr string) (*goredis.Options, error) {
	addr = strings.TrimSpace(addr)
	switch {
	case addr == "":
		return nil, fmt.Errorf("missing redis address")
	case strings.Contains(addr, "://"):
		opts, err := goredis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	default:
		return &goredis.Options{Addr: addr, DialTimeout: 5 * time.Second}, nil
	}
}

func (b *redisBus) Publish(ctx context.Context, ev realtime.Event) error {
	raw, err := json.Marshal(envelope{Source: b.source, Event: ev})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes and hands every received event to onEvent until
// ctx is done. It returns once the subscription is confirmed.
func (b *redisBus) StartForwarder(ctx context.Context, onEvent func(ev realtime.Event)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.log.Info("Forwarding relay events")

	go func() {
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-messages:
				if !ok {
					return
				}
				ev, err := decode(m.Payload)
				if err != nil {
					b.log.Warn("Skipping malformed relay message", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

func decode(payload string) (realtime.Event, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return realtime.Event{}, err
	}
	if env.Event.Type == "" {
		return realtime.Event{}, fmt.Errorf("event without type")
	}
	return env.Event, nil
}

func (b *redisBus) Close() error {
	return b.rdb.Close()
}
