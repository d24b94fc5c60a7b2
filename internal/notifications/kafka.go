package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"helpmatch/internal/observability"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// KafkaSink produces every envelope to one topic, keyed by request id so the
// events of a request stay ordered within a partition.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
	done     chan struct{}
}

// NewKafkaSink connects a producer to brokers (comma separated).
func NewKafkaSink(brokers, topic string) (*KafkaSink, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"client.id":         "helpmatch-api",
		"acks":              "1",
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create kafka producer: %w", err)
	}

	s := &KafkaSink{producer: producer, topic: topic, done: make(chan struct{})}
	go s.reportDeliveries()
	return s, nil
}

func (s *KafkaSink) reportDeliveries() {
	defer close(s.done)
	for e := range s.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				observability.FanOutEvents.WithLabelValues(s.Name(), "undelivered").Inc()
				observability.GlobalLogger.Warn("kafka delivery failed",
					slog.String("topic", s.topic),
					slog.String("error", ev.TopicPartition.Error.Error()),
				)
			}
		case kafka.Error:
			observability.GlobalLogger.Warn("kafka producer error", slog.String("error", ev.Error()))
		}
	}
}

// Name identifies the sink in metrics.
func (s *KafkaSink) Name() string { return "kafka" }

// Deliver enqueues env on the producer. Broker acknowledgement is reported asynchronously.
func (s *KafkaSink) Deliver(_ context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Key:            []byte(strconv.FormatUint(uint64(env.RequestID), 10)),
		Value:          payload,
		Headers:        []kafka.Header{{Key: "kind", Value: []byte(env.Kind)}},
	}, nil)
}

// Close flushes outstanding messages for up to timeoutMs and closes the producer.
func (s *KafkaSink) Close(timeoutMs int) int {
	remaining := s.producer.Flush(timeoutMs)
	s.producer.Close()
	<-s.done
	return remaining
}
