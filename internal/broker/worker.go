package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
)

// Notifier delivers holder-facing notices. Implementations must be safe for
// concurrent use.
type Notifier interface {
	RegistrationConfirmed(ctx context.Context, ev RegistrationConfirmed) error
	TicketCheckedIn(ctx context.Context, ev TicketCheckedIn) error
}

// LogNotifier records notices in the structured log. It stands in for a
// mail or push transport.
type LogNotifier struct{}

// RegistrationConfirmed logs the confirmation that would be emailed.
func (LogNotifier) RegistrationConfirmed(ctx context.Context, ev RegistrationConfirmed) error {
	logging.Ctx(ctx).Info().
		Str("user_id", ev.UserID).
		Str("event_id", ev.EventID).
		Str("event_title", ev.EventTitle).
		Str("ticket_id", ev.TicketID).
		Msg("registration confirmation sent")
	return nil
}

// TicketCheckedIn logs the admission.
func (LogNotifier) TicketCheckedIn(ctx context.Context, ev TicketCheckedIn) error {
	logging.Ctx(ctx).Info().
		Str("user_id", ev.UserID).
		Str("event_id", ev.EventID).
		Str("ticket_id", ev.TicketID).
		Msg("check-in receipt sent")
	return nil
}

// Worker consumes domain events and hands them to a Notifier.
type Worker struct {
	sub      message.Subscriber
	notifier Notifier

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs a Worker reading from sub.
func NewWorker(sub message.Subscriber, notifier Notifier) *Worker {
	return &Worker{sub: sub, notifier: notifier}
}

// Start subscribes to every topic and returns once the subscriptions are
// in place. Consumption continues until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	cctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	handlers := map[string]func(context.Context, []byte) error{
		TopicRegistrationConfirmed: w.handleRegistrationConfirmed,
		TopicTicketCheckedIn:       w.handleTicketCheckedIn,
	}
	for topic, handle := range handlers {
		msgs, err := w.sub.Subscribe(cctx, topic)
		if err != nil {
			cancel()
			w.wg.Wait()
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		w.wg.Add(1)
		go w.consume(cctx, topic, msgs, handle)
	}

	logging.Info().Msg("notification worker started")
	return nil
}

func (w *Worker) consume(ctx context.Context, topic string, msgs <-chan *message.Message, handle func(context.Context, []byte) error) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			mctx := ctx
			if id := msg.Metadata.Get(metadataCorrelationID); id != "" {
				mctx = logging.ContextWithCorrelationID(ctx, id)
			}
			if err := handle(mctx, msg.Payload); err != nil {
				// Notices are best effort; a poison message must not be
				// redelivered forever.
				logging.Ctx(mctx).Warn().
					Err(err).
					Str("topic", topic).
					Str("message_id", msg.UUID).
					Msg("failed to handle domain event")
			} else {
				metrics.RecordNotification(topic)
			}
			msg.Ack()
		}
	}
}

func (w *Worker) handleRegistrationConfirmed(ctx context.Context, payload []byte) error {
	var ev RegistrationConfirmed
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode %s: %w", TopicRegistrationConfirmed, err)
	}
	return w.notifier.RegistrationConfirmed(ctx, ev)
}

func (w *Worker) handleTicketCheckedIn(ctx context.Context, payload []byte) error {
	var ev TicketCheckedIn
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode %s: %w", TopicTicketCheckedIn, err)
	}
	return w.notifier.TicketCheckedIn(ctx, ev)
}

// Stop cancels consumption and waits for in-flight messages to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
		w.wg.Wait()
		logging.Info().Msg("notification worker stopped")
	}
}

// Serve runs the worker until ctx is done, so a supervisor can restart it if
// subscribing fails.
func (w *Worker) Serve(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return ctx.Err()
}

// String names the worker in supervisor events.
func (w *Worker) String() string {
	return "notification-worker"
}
