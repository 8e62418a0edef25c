// Package mqtt feeds loom reports published on an MQTT broker into the
// same ingest path as POST /ingest.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/interteks/loomtrack/internal/accounting"
	"github.com/interteks/loomtrack/internal/observability"
	"github.com/interteks/loomtrack/internal/platform/apierr"
	"github.com/interteks/loomtrack/internal/platform/ctxutil"
	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/services"
)

const DefaultTopic = "looms/+/snapshot"

type Config struct {
	BrokerURL string
	Topic     string
	ClientID  string
	QoS       byte
}

type Subscriber struct {
	cfg     Config
	ingest  services.IngestService
	metrics *observability.Metrics
	log     *logger.Logger
}

func NewSubscriber(cfg Config, ingest services.IngestService, metrics *observability.Metrics, log *logger.Logger) *Subscriber {
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = DefaultTopic
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		cfg.ClientID = "loomtrack"
	}
	return &Subscriber{
		cfg:     cfg,
		ingest:  ingest,
		metrics: metrics,
		log:     log.With("service", "MQTTSubscriber", "topic", cfg.Topic),
	}
}

// Run connects, subscribes and blocks until ctx is done. The subscription
// is restored by the client after a reconnect.
func (s *Subscriber) Run(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(true)
	opts.SetOnConnectHandler(func(c paho.Client) {
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ paho.Client, m paho.Message) {
			s.Handle(ctx, m.Topic(), m.Payload())
		})
		token.Wait()
		if err := token.Error(); err != nil {
			s.log.Error("MQTT subscribe failed", "error", err)
			return
		}
		s.log.Info("MQTT subscribed", "broker", s.cfg.BrokerURL)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.log.Warn("MQTT connection lost", "error", err)
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
	case <-ctx.Done():
		client.Disconnect(250)
		return nil
	}

	<-ctx.Done()
	client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
	client.Disconnect(250)
	s.log.Info("MQTT subscriber stopped")
	return nil
}

// Handle ingests one message. A report without loomId takes it from the
// topic segment matched by the single-level wildcard.
func (s *Subscriber) Handle(ctx context.Context, topic string, payload []byte) {
	var r accounting.Report
	if err := json.Unmarshal(payload, &r); err != nil {
		s.metrics.IncMQTTMessage("decode_error")
		s.log.Warn("Dropping undecodable MQTT payload", "mqtt_topic", topic, "error", err)
		return
	}
	if strings.TrimSpace(r.LoomID) == "" {
		r.LoomID = loomIDFromTopic(s.cfg.Topic, topic)
	}
	ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{RequestID: uuid.NewString(), Origin: "mqtt"})
	if _, err := s.ingest.Ingest(ctx, services.SourceMQTT, r); err != nil {
		var ae *apierr.Error
		if errors.As(err, &ae) && ae.Status == http.StatusBadRequest {
			s.metrics.IncMQTTMessage("invalid")
			s.log.Warn("Rejected MQTT report", "mqtt_topic", topic, "error", err)
			return
		}
		s.metrics.IncMQTTMessage("error")
		s.log.Error("MQTT ingest failed", "mqtt_topic", topic, "error", err)
		return
	}
	s.metrics.IncMQTTMessage("ok")
}

func loomIDFromTopic(filter, topic string) string {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, part := range fp {
		if part == "+" && i < len(tp) {
			return tp[i]
		}
	}
	return ""
}
