package events

// ring is a fixed-size buffer of the most recent events. When full, the
// oldest event is overwritten. Callers provide locking.
type ring struct {
	buf  []Event
	head int // next write position
	full bool
}

func newRing(size int) *ring {
	if size <= 0 {
		size = DefaultReplay
	}
	return &ring{buf: make([]Event, size)}
}

func (r *ring) push(e Event) {
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
	if r.head == 0 {
		r.full = true
	}
}

// snapshot returns the buffered events oldest first.
func (r *ring) snapshot() []Event {
	if !r.full {
		out := make([]Event, r.head)
		copy(out, r.buf[:r.head])
		return out
	}
	out := make([]Event, 0, len(r.buf))
	out = append(out, r.buf[r.head:]...)
	out = append(out, r.buf[:r.head]...)
	return out
}

func (r *ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.head
}
