package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type envelope struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emitted_at"`
}

// KafkaDispatcher publishes events to a single topic, keyed by event type so
// consumers see per-type ordering. The writer is asynchronous: Emit hands the
// message to the writer's buffer and returns, so a slow or unreachable broker
// never stalls the caller. Delivery failures surface in the completion
// callback.
type KafkaDispatcher struct {
	writer *kafka.Writer
}

func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error().Err(err).Int("messages", len(messages)).Msg("dispatcher: failed to publish events")
			}
		},
	}
	return &KafkaDispatcher{writer: writer}
}

func (d *KafkaDispatcher) Emit(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("dispatcher: failed to marshal event payload")
		return
	}

	value, err := json.Marshal(envelope{EventType: eventType, Payload: data, EmittedAt: time.Now().UTC()})
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("dispatcher: failed to marshal event envelope")
		return
	}

	msg := kafka.Message{
		Key:   []byte(eventType),
		Value: value,
		Time:  time.Now(),
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("dispatcher: failed to publish event")
	}
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
