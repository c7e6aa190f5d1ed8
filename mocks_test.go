package actionsync

import (
	"context"
	"sync"

	"github.com/ngrok/actionsync/internal/proto"
)

type sentMessage struct {
	topic   string
	payload []byte
}

// mockTransport records what the engine publishes and lets tests hand it
// samples as if they arrived from the network. Nothing published is looped
// back.
type mockTransport struct {
	mu         sync.Mutex
	sent       []sentMessage
	subs       map[string][]func([]byte)
	publishErr error
}

func newMockTransport() *mockTransport {
	return &mockTransport{subs: make(map[string][]func([]byte))}
}

func (m *mockTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.sent = append(m.sent, sentMessage{topic, append([]byte(nil), payload...)})
	return nil
}

func (m *mockTransport) Subscribe(topic string, fn func([]byte)) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[topic] = append(m.subs[topic], fn)
	return mockSubscription{}, nil
}

// inject delivers payload to every subscriber of topic.
func (m *mockTransport) inject(topic string, payload []byte) {
	m.mu.Lock()
	fns := append(([]func([]byte))(nil), m.subs[topic]...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(payload)
	}
}

func (m *mockTransport) injectMsg(topic string, msg interface{}) {
	data, err := proto.Marshal(msg, proto.FormatJSON)
	if err != nil {
		panic(err)
	}
	m.inject(topic, data)
}

func (m *mockTransport) published(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, s := range m.sent {
		if s.topic == topic {
			out = append(out, s.payload)
		}
	}
	return out
}

func (m *mockTransport) handshakes() []proto.Handshake {
	var out []proto.Handshake
	for _, data := range m.published(proto.TopicHandshake) {
		var h proto.Handshake
		if _, err := proto.Unmarshal(data, &h); err != nil {
			panic(err)
		}
		out = append(out, h)
	}
	return out
}

type mockSubscription struct{}

func (mockSubscription) Close() error {
	return nil
}
