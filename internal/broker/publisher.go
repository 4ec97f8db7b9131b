package broker

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
)

// NewGoChannel returns the in-process pub/sub used as both publisher and
// subscriber.
func NewGoChannel(cfg config.BrokerConfig) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.Buffer,
	}, logging.NewWatermillAdapter())
}

// Publisher wraps a watermill publisher with a circuit breaker so a failing
// transport is skipped quickly instead of slowing every request.
type Publisher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[interface{}]
}

// NewPublisher wraps pub. The breaker opens after cfg.FailureThreshold
// consecutive failures and half-opens after cfg.OpenTimeout.
func NewPublisher(pub message.Publisher, cfg config.BrokerConfig) *Publisher {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	settings := gobreaker.Settings{
		Name:        "broker-publisher",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	return &Publisher{
		publisher: pub,
		breaker:   gobreaker.NewCircuitBreaker[interface{}](settings),
	}
}

// Publish encodes payload as JSON and publishes it on topic. The request's
// correlation ID travels in the message metadata.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set(metadataCorrelationID, id)
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.publisher.Publish(topic, msg)
	})
	metrics.RecordPublish(topic, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// State reports the breaker state ("closed", "half-open", "open").
func (p *Publisher) State() string {
	return p.breaker.State().String()
}

// Close closes the underlying publisher.
func (p *Publisher) Close() error {
	return p.publisher.Close()
}

const metadataCorrelationID = "correlation_id"
