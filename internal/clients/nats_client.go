package clients

import (
	"encoding/json"
	"fmt"
	"time"

	"bridge-backend/internal/config"
	"bridge-backend/internal/metrics"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSClient wraps the NATS connection for the event pipeline: inbound
// chain events and bridge completions, outbound bridge actions.
type NATSClient struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	cfg  config.NATSConfig
}

// NewNATSClient connects to the NATS server.
func NewNATSClient(cfg config.NATSConfig) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 5 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}
	maxReconnects := -1
	if cfg.MaxReconnects > 0 {
		maxReconnects = cfg.MaxReconnects
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logrus.WithError(err).Warn("nats disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.Info("nats reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	metrics.NATSConnectionStatus.Set(1)
	return &NATSClient{conn: conn, js: js, cfg: cfg}, nil
}

// SubscribeChainEvents subscribes to the per-chain event subjects
// (<events_subject>.<blockchain>). The chain name is the final subject token.
func (c *NATSClient) SubscribeChainEvents(handler nats.MsgHandler) error {
	return c.subscribe(c.cfg.EventsSubject+".*", handler)
}

// SubscribeBridgeCompletions subscribes to bridge worker completion reports.
func (c *NATSClient) SubscribeBridgeCompletions(handler nats.MsgHandler) error {
	return c.subscribe(c.cfg.CompletionsSubject, handler)
}

// PublishBridgeAction publishes an "act next" message to the bridge worker
// queue, one subject per destination blockchain.
func (c *NATSClient) PublishBridgeAction(blockchain string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode bridge action: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", c.cfg.BridgeSubject, blockchain)

	if c.cfg.EnableJetStream {
		if _, err := c.js.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish bridge action to %s: %w", subject, err)
		}
	} else if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish bridge action to %s: %w", subject, err)
	}

	metrics.BridgeActionsPublished.WithLabelValues(blockchain).Inc()
	logrus.WithField("subject", subject).Debug("published bridge action")
	return nil
}

// subscribe uses a queue subscription so multiple backend instances share
// the work, preferring JetStream with manual acks when enabled.
func (c *NATSClient) subscribe(subject string, handler nats.MsgHandler) error {
	const queueGroup = "bridge-backend"

	if c.cfg.EnableJetStream {
		_, err := c.js.QueueSubscribe(subject, queueGroup, handler,
			nats.ManualAck(), nats.AckWait(30*time.Second))
		if err == nil {
			logrus.WithField("subject", subject).Info("jetstream subscription established")
			return nil
		}
		logrus.WithError(err).WithField("subject", subject).
			Warn("jetstream subscription failed, falling back to core nats")
	}

	if _, err := c.conn.QueueSubscribe(subject, queueGroup, handler); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	logrus.WithField("subject", subject).Info("nats subscription established")
	return nil
}

// Close closes the connection.
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// GetConnection returns the underlying NATS connection.
func (c *NATSClient) GetConnection() *nats.Conn {
	return c.conn
}
