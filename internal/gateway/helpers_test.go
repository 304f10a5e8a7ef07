package gateway

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/mqtt"
)

// fakeSocket records enqueued messages up to capacity.
type fakeSocket struct {
	mu       sync.Mutex
	capacity int
	msgs     [][]byte
	closed   int
}

func newFakeSocket() *fakeSocket { return &fakeSocket{capacity: 64} }

func (s *fakeSocket) Enqueue(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) >= s.capacity {
		return false
	}
	s.msgs = append(s.msgs, data)
	return true
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

// messages decodes everything received so far.
func (s *fakeSocket) messages(t *testing.T) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.msgs))
	for _, raw := range s.msgs {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("client received invalid JSON %q: %v", raw, err)
		}
		out = append(out, m)
	}
	return out
}

// last returns the most recent message.
func (s *fakeSocket) last(t *testing.T) map[string]any {
	t.Helper()
	msgs := s.messages(t)
	if len(msgs) == 0 {
		t.Fatal("client received no messages")
	}
	return msgs[len(msgs)-1]
}

// types lists message types in order.
func (s *fakeSocket) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, m := range s.messages(t) {
		out = append(out, m["type"].(string))
	}
	return out
}

func (s *fakeSocket) reset() {
	s.mu.Lock()
	s.msgs = nil
	s.mu.Unlock()
}

type published struct {
	topic   string
	payload []byte
}

type fakeBroker struct {
	mu          sync.Mutex
	subscribed  []string
	handlers    map[string]mqtt.MessageHandler
	published   []published
	publishErr  error
	isConnected bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler), isConnected: true}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = append(b.subscribed, topic)
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, published{topic, payload})
	return nil
}

func (b *fakeBroker) IsConnected() bool { return b.isConnected }

var errBrokerDown = errors.New("broker down")
