package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWriter records written messages.
type mockWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	block    chan struct{}
	closed   bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockWriter) written() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kafka.Message(nil), m.messages...)
}

// mockSink records events sent through the bus.
type mockSink struct {
	events []Event
	err    error
	closed bool
}

func (m *mockSink) Send(_ context.Context, e Event) error {
	m.events = append(m.events, e)
	return m.err
}

func (m *mockSink) Close() error {
	m.closed = true
	return nil
}

// ============================================
// Bus
// ============================================

func TestBus_DeliversByType(t *testing.T) {
	bus := NewBus()
	var all, carts []string
	bus.Subscribe("", func(_ context.Context, e Event) { all = append(all, e.Type) })
	bus.Subscribe(CartUpdated, func(_ context.Context, e Event) { carts = append(carts, e.Action) })

	ctx := context.Background()
	bus.Publish(ctx, New(CartUpdated, "u1", "add", nil))
	bus.Publish(ctx, New(WishlistUpdated, "u1", "add", nil))

	assert.Equal(t, []string{CartUpdated, WishlistUpdated}, all)
	assert.Equal(t, []string{"add"}, carts)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	unsubscribe := bus.Subscribe("", func(context.Context, Event) { calls++ })

	bus.Publish(context.Background(), New(CartReset, "", "", nil))
	unsubscribe()
	bus.Publish(context.Background(), New(CartReset, "", "", nil))

	assert.Equal(t, 1, calls)
}

func TestBus_SinkFailureIsSwallowed(t *testing.T) {
	sink := &mockSink{err: errors.New("broker down")}
	bus := NewBus(sink)

	bus.Publish(context.Background(), New(OrderPlaced, "u1", "", nil))

	require.Len(t, sink.events, 1)
	require.NoError(t, bus.Close())
	assert.True(t, sink.closed)
}

func TestEvent_Key(t *testing.T) {
	assert.Equal(t, "u1", New(CartUpdated, "u1", "", nil).Key())
	assert.Equal(t, "guest", New(CartUpdated, "", "", nil).Key())
}

// ============================================
// Kafka sink
// ============================================

func TestKafkaSink_WritesAndDrainsOnClose(t *testing.T) {
	writer := &mockWriter{}
	sink := newKafkaSink(writer, 8)

	for i := 0; i < 3; i++ {
		require.NoError(t, sink.Send(context.Background(), New(CartUpdated, "u1", "add", map[string]int{"n": i})))
	}
	require.NoError(t, sink.Close())

	msgs := writer.written()
	require.Len(t, msgs, 3)
	assert.True(t, writer.closed)
	assert.Equal(t, "u1", string(msgs[0].Key))
	assert.Equal(t, CartUpdated, string(msgs[0].Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msgs[2].Value, &decoded))
	assert.Equal(t, "add", decoded.Action)
}

func TestKafkaSink_FullBuffer(t *testing.T) {
	writer := &mockWriter{block: make(chan struct{})}
	sink := newKafkaSink(writer, 1)

	// the first message is taken by the writer goroutine, the second fills the buffer
	require.NoError(t, sink.Send(context.Background(), New(CartUpdated, "", "", nil)))
	require.Eventually(t, func() bool { return len(sink.queue) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, sink.Send(context.Background(), New(CartUpdated, "", "", nil)))

	err := sink.Send(context.Background(), New(CartUpdated, "", "", nil))
	assert.ErrorIs(t, err, ErrSinkFull)

	close(writer.block)
	require.NoError(t, sink.Close())
	assert.Len(t, writer.written(), 2)
}

func TestKafkaSink_SendAfterClose(t *testing.T) {
	sink := newKafkaSink(&mockWriter{}, 1)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	err := sink.Send(context.Background(), New(CartUpdated, "", "", nil))
	assert.ErrorIs(t, err, ErrSinkClosed)
}

func TestKafkaSink_WriteErrorsAreLogged(t *testing.T) {
	writer := &mockWriter{err: errors.New("no leader")}
	sink := newKafkaSink(writer, 2)
	require.NoError(t, sink.Send(context.Background(), New(CartUpdated, "", "", nil)))
	require.NoError(t, sink.Close())
	assert.Empty(t, writer.written())
}
