package device

import (
	"sync"
	"time"
)

// Timer measures stream time between Start and Stop markers, like a pair of
// device events. Totals are complete once the stream is synchronized.
type Timer struct {
	dev *Device

	mu    sync.Mutex
	start time.Time
	total time.Duration
	count int
}

func (t *Timer) Init(dev *Device) {
	t.dev = dev
	t.Zero()
}

func (t *Timer) Start() error {
	if t.dev == nil {
		return nil
	}
	return t.dev.stream.enqueue(func() error {
		t.mu.Lock()
		t.start = time.Now()
		t.mu.Unlock()
		return nil
	})
}

func (t *Timer) Stop() error {
	if t.dev == nil {
		return nil
	}
	return t.dev.stream.enqueue(func() error {
		t.mu.Lock()
		t.total += time.Since(t.start)
		t.count++
		t.mu.Unlock()
		return nil
	})
}

// Time is the accumulated elapsed time of completed Start/Stop pairs.
func (t *Timer) Time() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

func (t *Timer) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *Timer) Zero() {
	t.mu.Lock()
	t.total = 0
	t.count = 0
	t.mu.Unlock()
}

func (t *Timer) Clear() {
	t.dev = nil
}
