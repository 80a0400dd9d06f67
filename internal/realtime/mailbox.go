package realtime

import "sync"

// mailbox is an unbounded per-subscriber queue. Producers never block, so the
// session can emit while a consumer is calling back into it.
type mailbox struct {
	mu     sync.Mutex
	queue  []Event
	closed bool

	signal chan struct{}
	done   chan struct{}
	out    chan Event

	dropOnce sync.Once
}

func newMailbox() *mailbox {
	m := &mailbox{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan Event),
	}
	go m.run()
	return m
}

func (m *mailbox) push(ev Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, ev)
	m.mu.Unlock()
	m.wake()
}

func (m *mailbox) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// close stops accepting events; queued events are still delivered.
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()
}

// drop discards queued events and closes the output.
func (m *mailbox) drop() {
	m.dropOnce.Do(func() {
		m.close()
		close(m.done)
	})
}

func (m *mailbox) run() {
	defer close(m.out)

	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-m.signal:
				continue
			case <-m.done:
				return
			}
		}
		ev := m.queue[0]
		m.queue[0] = Event{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.out <- ev:
		case <-m.done:
			return
		}
	}
}
