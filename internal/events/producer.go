package events

import (
	"context"
	"encoding/json"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/archivekit/conversion-assistant/internal/router"
)

// Writer is the interface to be implemented by the underlying writer.
type Writer interface {
	Write(ctx context.Context, topic string, e cloudevents.Event) error
	Close(ctx context.Context) error
}

// EventProducer drains a pending-event queue into a Writer on its own
// goroutine, so a slow writer never blocks the dispatch that produced the
// event.
type EventProducer struct {
	queue            *queue
	startConsumingCh chan any
	doneCh           chan any
	writer           Writer
	topic            string
}

type ProducerOption func(e *EventProducer)

func WithOutputTopic(topic string) ProducerOption {
	return func(e *EventProducer) {
		e.topic = topic
	}
}

func NewEventProducer(w Writer, opts ...ProducerOption) *EventProducer {
	ep := &EventProducer{
		queue:            newQueue(),
		startConsumingCh: make(chan any, 1),
		doneCh:           make(chan any),
		writer:           w,
		topic:            "archivekit.conversion.events",
	}

	for _, o := range opts {
		o(ep)
	}

	go ep.run()
	return ep
}

// Write enqueues one event payload under the given kind.
func (ep *EventProducer) Write(kind string, data []byte) {
	ep.queue.PushBack(&message{Kind: kind, Data: data})

	// Wake the consumer if it is parked. The channel is buffered so a
	// pending wakeup is never lost and Write never blocks on a slow writer.
	select {
	case ep.startConsumingCh <- struct{}{}:
	default:
	}
}

// Subscriber returns a router callback that forwards every broadcast event
// to the stream.
func (ep *EventProducer) Subscriber() router.EventCallback {
	return func(event router.Event) {
		payload, err := json.Marshal(map[string]any{
			"eventType": event.Type,
			"data":      event.Data,
		})
		if err != nil {
			zap.S().Named("event_producer").Warnw("failed to marshal event", "type", event.Type, "error", err)
			return
		}
		ep.Write(kindFor(event.Type), payload)
	}
}

func kindFor(eventType string) string {
	switch eventType {
	case "progress_updated":
		return ProgressMessageKind
	case "log_appended":
		return JournalMessageKind
	default:
		return SessionMessageKind
	}
}

func (ep *EventProducer) Close() error {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(closeCtx)
	g.Go(func() error {
		ep.doneCh <- struct{}{}
		return ep.writer.Close(ctx)
	})
	if err := g.Wait(); err != nil {
		zap.S().Named("event_producer").Errorf("event producer closed with error: %s", err)
		return err
	}

	zap.S().Named("event_producer").Info("event producer closed")
	return nil
}

func (ep *EventProducer) run() {
	for {
		select {
		case <-ep.doneCh:
			return
		default:
		}

		if ep.queue.Size() == 0 {
			select {
			case <-ep.startConsumingCh:
			case <-ep.doneCh:
				return
			}
		}

		msg := ep.queue.Pop()
		if msg == nil {
			continue
		}

		e := cloudevents.NewEvent()
		e.SetID(uuid.NewString())
		e.SetSource(defaultSource)
		e.SetType(msg.Kind)
		_ = e.SetData(*cloudevents.StringOfApplicationJSON(), msg.Data)

		if err := ep.writer.Write(context.TODO(), ep.topic, e); err != nil {
			zap.S().Named("event_producer").Errorw("failed to send event", "error", err, "event", e)
		}
	}
}
