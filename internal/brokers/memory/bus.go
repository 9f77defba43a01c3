package memory

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus is closed")

const deliveryAttempts = 3

type event struct {
	topic string
	key   string
	data  []byte
}

// Bus is an in-process event channel mirroring the JetStream bus: events are
// hashed by key onto a fixed set of workers, so all events for one key are
// handled by the same worker in publish order while distinct keys run in
// parallel. Redelivery is bounded: a handler that fails deliveryAttempts
// times in a row forfeits the event, where the JetStream bus would keep
// redelivering. Meant for tests and single-node development.
type Bus struct {
	log    *slog.Logger
	shards []chan event

	// mu guards closed and the shard sends; hmu guards handlers. Separate
	// locks so a pending Close cannot stall the workers that a blocked
	// publisher is waiting on.
	mu     sync.RWMutex
	closed bool

	hmu      sync.RWMutex
	handlers map[string][]func(key string, data []byte) error

	wg sync.WaitGroup
}

func New(workers int, log *slog.Logger) *Bus {
	if workers <= 0 {
		workers = 8
	}

	b := &Bus{
		log:      log,
		shards:   make([]chan event, workers),
		handlers: make(map[string][]func(key string, data []byte) error),
	}

	for i := range b.shards {
		ch := make(chan event, 1024)
		b.shards[i] = ch
		b.wg.Add(1)
		go b.run(ch)
	}

	return b
}

func (b *Bus) run(ch chan event) {
	defer b.wg.Done()
	for evt := range ch {
		b.dispatch(evt)
	}
}

func (b *Bus) dispatch(evt event) {
	b.hmu.RLock()
	handlers := b.handlers[evt.topic]
	b.hmu.RUnlock()

	for _, h := range handlers {
		var err error
		for attempt := 0; attempt < deliveryAttempts; attempt++ {
			if err = h(evt.key, evt.data); err == nil {
				break
			}
		}
		if err != nil {
			b.log.Error("event handler failed after retries, dropping",
				"topic", evt.topic, "key", evt.key, "err", err)
		}
	}
}

func (b *Bus) Publish(_ context.Context, topic, key string, data []byte) error {
	// The lock is held across the send: Close takes the write lock before
	// closing the shard channels, so no send can land on a closed channel.
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	b.shards[shardFor(key, len(b.shards))] <- event{topic: topic, key: key, data: data}
	return nil
}

func (b *Bus) Subscribe(topic string, handler func(key string, data []byte) error) error {
	b.hmu.Lock()
	defer b.hmu.Unlock()

	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

// Close stops accepting events and waits for the workers to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.shards {
		close(ch)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

func shardFor(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32()) % n
}
