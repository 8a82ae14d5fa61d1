package bus

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestFireDeliversInSubscriptionOrder(t *testing.T) {
	p := NewPublisher()
	var got []string
	for _, tag := range []string{"a", "b", "c"} {
		p.Subscribe("engine.rpm", func(ts float64, v any) error {
			got = append(got, fmt.Sprintf("%s:%v@%v", tag, v, ts))
			return nil
		})
	}

	if err := p.Fire("engine.rpm", 1.5, 1000); err != nil {
		t.Fatalf("Fire returned error: %v", err)
	}
	want := []string{"a:1000@1.5", "b:1000@1.5", "c:1000@1.5"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("delivery order = %v, want %v", got, want)
	}
}

func TestFireWithoutSubscribers(t *testing.T) {
	p := NewPublisher()
	if err := p.Fire("nobody.listens", 0, 1.0); err != nil {
		t.Fatalf("Fire returned error: %v", err)
	}
}

func TestFireIsDepthFirst(t *testing.T) {
	p := NewPublisher()
	var trace []string

	p.Subscribe("engine.rpm", func(ts float64, v any) error {
		trace = append(trace, "rpm-1")
		return p.Fire("speedcalc.kph", ts, v.(int)/25)
	})
	p.Subscribe("engine.rpm", func(ts float64, v any) error {
		trace = append(trace, "rpm-2")
		return nil
	})
	p.Subscribe("speedcalc.kph", func(ts float64, v any) error {
		trace = append(trace, fmt.Sprintf("kph=%v", v))
		return nil
	})

	if err := p.Fire("engine.rpm", 0, 1000); err != nil {
		t.Fatalf("Fire returned error: %v", err)
	}
	want := "[rpm-1 kph=40 rpm-2]"
	if fmt.Sprint(trace) != want {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestHandlerErrorStopsDelivery(t *testing.T) {
	p := NewPublisher()
	boom := errors.New("boom")
	called := false

	p.Subscribe("x.y", func(float64, any) error { return boom })
	p.Subscribe("x.y", func(float64, any) error {
		called = true
		return nil
	})

	err := p.Fire("x.y", 0, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("Fire error = %v, want %v", err, boom)
	}
	if called {
		t.Error("second handler ran after the first failed")
	}
	if n := p.Subscribers("x.y"); n != 2 {
		t.Errorf("Subscribers = %d after failure, want 2", n)
	}
}

func TestUnsubscribe(t *testing.T) {
	p := NewPublisher()
	var calls []string
	h := func(tag string) Handler {
		return func(float64, any) error {
			calls = append(calls, tag)
			return nil
		}
	}

	first := p.Subscribe("a.b", h("first"))
	second := p.Subscribe("a.b", h("second"))
	if first.Name() != "a.b" {
		t.Errorf("Name() = %q", first.Name())
	}

	if err := p.Unsubscribe(first); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := p.Unsubscribe(first); !errors.Is(err, ErrNotSubscribed) {
		t.Fatalf("second Unsubscribe error = %v, want ErrNotSubscribed", err)
	}

	if err := p.Fire("a.b", 0, nil); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(calls) != "[second]" {
		t.Errorf("calls = %v, want [second]", calls)
	}

	if err := p.Unsubscribe(second); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if n := p.Subscribers("a.b"); n != 0 {
		t.Errorf("Subscribers = %d, want 0", n)
	}
	if err := p.Unsubscribe(Subscription{name: "never.seen", id: 99}); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("Unsubscribe unknown = %v, want ErrNotSubscribed", err)
	}
}

func TestSubscribeDuringFireUsesSnapshot(t *testing.T) {
	p := NewPublisher()
	late := 0
	p.Subscribe("a.b", func(float64, any) error {
		p.Subscribe("a.b", func(float64, any) error {
			late++
			return nil
		})
		return nil
	})

	if err := p.Fire("a.b", 0, nil); err != nil {
		t.Fatal(err)
	}
	if late != 0 {
		t.Errorf("handler added during Fire was called %d times", late)
	}
	if n := p.Subscribers("a.b"); n != 2 {
		t.Errorf("Subscribers = %d, want 2", n)
	}
}

func TestConcurrentFire(t *testing.T) {
	p := NewPublisher()
	var mu sync.Mutex
	count := 0
	p.Subscribe("radar.speed", func(float64, any) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := p.Fire("radar.speed", float64(j), 1.0); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	if count != 800 {
		t.Errorf("count = %d, want 800", count)
	}
}
