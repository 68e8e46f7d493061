package events

import (
	"context"
	"strings"
	"time"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/clients"
	"bridge-backend/internal/metrics"
	"bridge-backend/internal/models"
	"bridge-backend/internal/services"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Consumer wires the NATS subscriptions to the reconciler and applies the
// boundary classification: bad requests and conflicts are acknowledged so
// they never poison the queue, retryables are redelivered, internals are
// alerted and left unacknowledged.
type Consumer struct {
	client     *clients.NATSClient
	reconciler *services.EventReconciler
	timeout    time.Duration
}

func NewConsumer(client *clients.NATSClient, reconciler *services.EventReconciler) *Consumer {
	return &Consumer{client: client, reconciler: reconciler, timeout: 2 * time.Minute}
}

// Start establishes the subscriptions.
func (c *Consumer) Start() error {
	if err := c.client.SubscribeChainEvents(c.handleChainEvent); err != nil {
		return err
	}
	return c.client.SubscribeBridgeCompletions(c.handleBridgeCompletion)
}

func (c *Consumer) handleChainEvent(msg *nats.Msg) {
	chain := chainFromSubject(msg.Subject)
	metrics.EventsReceived.WithLabelValues(string(chain), "chain_event").Inc()
	started := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var events []*services.ChainEvent
	var err error
	if chain == models.BlockchainCardano {
		events, err = ParseCardanoEvents(msg.Data)
	} else {
		var event *services.ChainEvent
		event, err = ParseEVMEvent(chain, msg.Data)
		if event != nil {
			events = []*services.ChainEvent{event}
		}
	}
	if err == nil {
		for _, event := range events {
			if err = c.reconciler.ProcessChainEvent(ctx, event); err != nil {
				break
			}
		}
	}

	metrics.ReconcileDuration.WithLabelValues("chain_event").Observe(time.Since(started).Seconds())
	c.settle(msg, string(chain), "chain_event", err)
}

func (c *Consumer) handleBridgeCompletion(msg *nats.Msg) {
	metrics.EventsReceived.WithLabelValues("bridge", "completion").Inc()
	started := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	completed, err := ParseBridgeCompletion(msg.Data)
	if err == nil {
		err = c.reconciler.ProcessBridgeEvent(ctx, completed)
	}

	metrics.ReconcileDuration.WithLabelValues("bridge_completion").Observe(time.Since(started).Seconds())
	c.settle(msg, "bridge", "completion", err)
}

// settle acknowledges or redelivers based on the error classification.
func (c *Consumer) settle(msg *nats.Msg, blockchain, kind string, err error) {
	fields := logrus.Fields{"subject": msg.Subject, "kind": kind}

	if err == nil {
		metrics.EventsProcessed.WithLabelValues(blockchain, kind, "success").Inc()
		msg.Ack()
		return
	}

	switch apperrors.KindOf(err) {
	case apperrors.KindBadRequest:
		metrics.EventsProcessed.WithLabelValues(blockchain, kind, "bad_request").Inc()
		logrus.WithError(err).WithFields(fields).Warn("dropping invalid event")
		msg.Ack()
	case apperrors.KindConflict:
		metrics.EventsProcessed.WithLabelValues(blockchain, kind, "conflict").Inc()
		logrus.WithError(err).WithFields(fields).Info("event already applied")
		msg.Ack()
	case apperrors.KindRetryable:
		metrics.EventsProcessed.WithLabelValues(blockchain, kind, "retryable").Inc()
		logrus.WithError(err).WithFields(fields).Info("event not ready, redelivering")
		msg.Nak()
	default:
		// Withhold the ack: the message redelivers after the ack wait,
		// and the alert fires in the meantime.
		metrics.EventsProcessed.WithLabelValues(blockchain, kind, "internal").Inc()
		logrus.WithError(err).WithFields(fields).Error("event processing failed")
	}
}

func chainFromSubject(subject string) models.BlockchainName {
	parts := strings.Split(subject, ".")
	return models.BlockchainName(parts[len(parts)-1])
}

// NATSBridgePublisher adapts the NATS client to the reconciler's publisher
// interface.
type NATSBridgePublisher struct {
	client *clients.NATSClient
}

func NewNATSBridgePublisher(client *clients.NATSClient) *NATSBridgePublisher {
	return &NATSBridgePublisher{client: client}
}

func (p *NATSBridgePublisher) PublishBridgeAction(ctx context.Context, event *services.ActivityEvent) error {
	return p.client.PublishBridgeAction(string(event.BlockchainName), bridgeActionFromActivityEvent(event))
}
