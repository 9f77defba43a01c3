package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBusDeliversInPublishOrderPerKey(t *testing.T) {
	bus := New(4, discardLogger())

	var mu sync.Mutex
	received := make(map[string][]string)

	bus.Subscribe("orders.created", func(key string, data []byte) error {
		mu.Lock()
		received[key] = append(received[key], string(data))
		mu.Unlock()
		return nil
	})

	ctx := context.Background()
	keys := []string{"a", "b", "c", "d", "e"}
	const perKey = 50

	for i := 0; i < perKey; i++ {
		for _, key := range keys {
			if err := bus.Publish(ctx, "orders.created", key, []byte(fmt.Sprintf("%d", i))); err != nil {
				t.Fatal(err)
			}
		}
	}
	bus.Close()

	for _, key := range keys {
		events := received[key]
		if len(events) != perKey {
			t.Fatalf("key %s: got %d events, want %d", key, len(events), perKey)
		}
		for i, data := range events {
			if data != fmt.Sprintf("%d", i) {
				t.Fatalf("key %s: event %d out of order: %s", key, i, data)
			}
		}
	}
}

func TestBusRetriesFailedHandler(t *testing.T) {
	bus := New(1, discardLogger())

	var mu sync.Mutex
	calls := 0

	bus.Subscribe("orders.created", func(string, []byte) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err := bus.Publish(context.Background(), "orders.created", "k", []byte("x")); err != nil {
		t.Fatal(err)
	}
	bus.Close()

	if calls != 3 {
		t.Errorf("handler called %d times, want 3", calls)
	}
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := New(1, discardLogger())
	bus.Close()

	err := bus.Publish(context.Background(), "orders.created", "k", nil)
	if !errors.Is(err, ErrBusClosed) {
		t.Errorf("err = %v, want ErrBusClosed", err)
	}
}

func TestBusPublishRacingCloseDoesNotPanic(t *testing.T) {
	for i := 0; i < 200; i++ {
		bus := New(2, discardLogger())

		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					err := bus.Publish(context.Background(), "orders.created", "k", nil)
					if err != nil {
						if !errors.Is(err, ErrBusClosed) {
							t.Errorf("publish error = %v, want nil or ErrBusClosed", err)
						}
						return
					}
				}
			}()
		}

		bus.Close()
		wg.Wait()
	}
}

func TestBusFansOutToAllSubscribers(t *testing.T) {
	bus := New(2, discardLogger())

	var mu sync.Mutex
	got := make([]string, 0, 2)

	for _, name := range []string{"first", "second"} {
		name := name
		bus.Subscribe("orders.execution", func(string, []byte) error {
			mu.Lock()
			got = append(got, name)
			mu.Unlock()
			return nil
		})
	}

	bus.Publish(context.Background(), "orders.execution", "k", []byte("x"))
	bus.Close()

	if len(got) != 2 {
		t.Errorf("delivered to %d subscribers, want 2", len(got))
	}
}
