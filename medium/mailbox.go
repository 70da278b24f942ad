package medium

import (
	"errors"
	"sync"

	"github.com/romshark/hwsim-medium/hwsim"
	"github.com/romshark/hwsim-medium/topology"
)

const DefaultQueueSize = 1024

var ErrMailboxClosed = errors.New("mailbox closed")

// Transmission is a frame handed from the transmitting radio's engine to a
// peer's engine.
type Transmission struct {
	From topology.RadioID
	Tx   *hwsim.FrameTx
}

// Mailbox is a radio's inbound queue of transmissions from its peers.
// Many engines push, only the owner drains. Once full, pushing evicts the
// oldest transmission.
type Mailbox struct {
	mu     sync.Mutex
	items  []Transmission
	head   int
	n      int
	closed bool
	ready  chan struct{}
}

// NewMailbox creates a mailbox holding at most size transmissions.
// size <= 0 means DefaultQueueSize.
func NewMailbox(size int) *Mailbox {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Mailbox{
		items: make([]Transmission, size),
		ready: make(chan struct{}, 1),
	}
}

// Push enqueues t and reports whether the oldest queued transmission was
// evicted to make room.
func (m *Mailbox) Push(t Transmission) (dropped bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrMailboxClosed
	}
	if m.n == len(m.items) {
		m.items[m.head] = Transmission{}
		m.head = (m.head + 1) % len(m.items)
		m.n--
		dropped = true
	}
	m.items[(m.head+m.n)%len(m.items)] = t
	m.n++
	select {
	case m.ready <- struct{}{}:
	default:
	}
	return dropped, nil
}

// Ready receives a value whenever transmissions may be waiting.
func (m *Mailbox) Ready() <-chan struct{} { return m.ready }

// Drain removes and returns every queued transmission, oldest first.
func (m *Mailbox) Drain() []Transmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.n == 0 {
		return nil
	}
	out := make([]Transmission, m.n)
	for i := range out {
		j := (m.head + i) % len(m.items)
		out[i], m.items[j] = m.items[j], Transmission{}
	}
	m.head, m.n = 0, 0
	return out
}

// Len returns the number of queued transmissions.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

// Close discards queued transmissions and rejects further pushes.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	clear(m.items)
	m.head, m.n = 0, 0
}
