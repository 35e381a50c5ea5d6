package kernel

import "sync/atomic"

// EventKind identifies a firmware event.
type EventKind uint8

const (
	EventNone EventKind = iota
	EventMode
	EventPower
	EventPersist
	EventPersistError
	EventWake
)

func (k EventKind) String() string {
	switch k {
	case EventMode:
		return "mode"
	case EventPower:
		return "power"
	case EventPersist:
		return "persist"
	case EventPersistError:
		return "persist-error"
	case EventWake:
		return "wake"
	default:
		return "none"
	}
}

// Event is a fixed-size record of something the firmware did. A and B carry
// kind-specific values.
type Event struct {
	Kind EventKind
	A    uint16
	B    uint16
	At   uint16
}

const mailboxSlots = 16

// Mailbox is a fixed-size single-producer, single-consumer event queue. It
// never blocks and never allocates: a full mailbox drops the event and counts
// it.
type Mailbox struct {
	_       [0]func() // prevent accidental copying.
	head    atomic.Uint32
	tail    atomic.Uint32
	dropped atomic.Uint32
	slots   [mailboxSlots]Event
}

// TrySend enqueues an event, returning false if the mailbox is full.
func (mb *Mailbox) TrySend(ev Event) bool {
	head := mb.head.Load()
	tail := mb.tail.Load()
	if head-tail >= mailboxSlots {
		mb.dropped.Add(1)
		return false
	}
	mb.slots[head%mailboxSlots] = ev
	mb.head.Store(head + 1)
	return true
}

// TryRecv dequeues one event, returning false if empty.
func (mb *Mailbox) TryRecv() (Event, bool) {
	tail := mb.tail.Load()
	head := mb.head.Load()
	if tail == head {
		return Event{}, false
	}
	ev := mb.slots[tail%mailboxSlots]
	mb.tail.Store(tail + 1)
	return ev, true
}

// Len returns the number of queued events.
func (mb *Mailbox) Len() int {
	return int(mb.head.Load() - mb.tail.Load())
}

// Dropped returns the number of events lost to a full mailbox.
func (mb *Mailbox) Dropped() uint32 { return mb.dropped.Load() }
