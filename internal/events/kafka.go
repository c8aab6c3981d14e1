package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrSinkFull is returned when the sink's buffer cannot take another event.
var ErrSinkFull = errors.New("event sink buffer full")

// ErrSinkClosed is returned by Send after Close.
var ErrSinkClosed = errors.New("event sink closed")

const defaultBufferSize = 256

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes activity events to a Kafka topic. Send only enqueues;
// a background goroutine writes, so store operations never wait on the broker.
type KafkaSink struct {
	writer  messageWriter
	queue   chan kafka.Message
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration
}

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(writer, defaultBufferSize)
}

func newKafkaSink(w messageWriter, buffer int) *KafkaSink {
	s := &KafkaSink{
		writer:  w,
		queue:   make(chan kafka.Message, buffer),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
	go s.run()
	return s
}

// Send enqueues e.
func (s *KafkaSink) Send(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(e.Key()),
		Value: data,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
		},
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- msg:
		return nil
	default:
		return ErrSinkFull
	}
}

func (s *KafkaSink) run() {
	defer close(s.done)
	for msg := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.writer.WriteMessages(ctx, msg); err != nil {
			log.Printf("[Events] Kafka write failed: %v", err)
		}
		cancel()
	}
}

// Close drains queued events and closes the writer.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	return s.writer.Close()
}
