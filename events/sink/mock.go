package sink

import (
	"sync"

	"github.com/maxpert/mirrordb/events"
)

var _ events.Sink = (*MockSink)(nil)

// MockSink records published messages for tests
type MockSink struct {
	mu         sync.Mutex
	messages   []MockMessage
	publishErr error
	failures   int
	closed     bool
}

// MockMessage is one recorded Publish call
type MockMessage struct {
	Topic string
	Key   string
	Value []byte
}

// FailNext makes the next n Publish calls return err
func (m *MockSink) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.publishErr = err
}

func (m *MockSink) Publish(topic, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failures > 0 {
		m.failures--
		return m.publishErr
	}

	m.messages = append(m.messages, MockMessage{Topic: topic, Key: key, Value: value})
	return nil
}

func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockSink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Messages returns a copy of the recorded messages
func (m *MockSink) Messages() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockMessage(nil), m.messages...)
}

func (m *MockSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}
