package publisher

import "sync"

// Reading is a value flowing through the broker, e.g. a consumption
// reading in kWh from an external meter.
type Reading struct {
	Topic string
	Value float64
}

// Broker is a minimal subscribe/publish hub for readings that arrive
// from outside the coordinator, so subscribers hold an explicit,
// cancellable handle instead of ambient callbacks.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[int]chan Reading
	next int
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int]chan Reading)}
}

// Subscribe returns a channel of readings on topic and a cancel func
// that closes it. The channel is buffered so a slow subscriber drops
// readings instead of blocking the publisher.
func (b *Broker) Subscribe(topic string) (<-chan Reading, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Reading)
	}
	id := b.next
	b.next++
	ch := make(chan Reading, 16)
	b.subs[topic][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[topic][id]; ok {
			delete(b.subs[topic], id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers value to every subscriber of topic, dropping it for
// subscribers whose buffer is full.
func (b *Broker) Publish(topic string, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- Reading{Topic: topic, Value: value}:
		default:
		}
	}
}
