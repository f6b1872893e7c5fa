package device

import "sync"

// Stream executes queued tasks in order on a single worker goroutine.
type Stream struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func() error
	pending int
	err     error
	closed  bool
	done    chan struct{}
}

func newStream() *Stream {
	s := &Stream{done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.worker()
	return s
}

func (s *Stream) worker() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		err := task()

		s.mu.Lock()
		if err != nil && s.err == nil {
			s.err = err
		}
		s.pending--
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

func (s *Stream) enqueue(task func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.queue = append(s.queue, task)
	s.pending++
	s.cond.Broadcast()
	return nil
}

// drain waits for queued work without consuming the recorded error.
func (s *Stream) drain() {
	s.mu.Lock()
	for s.pending > 0 {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// Pending reports queued plus in-flight tasks.
func (s *Stream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Stream) Synchronize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.cond.Wait()
	}
	err := s.err
	s.err = nil
	return err
}

// Close drains the queue, stops the worker and returns any unreported error.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	<-s.done
	return s.Synchronize()
}
