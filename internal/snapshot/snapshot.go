// Package snapshot publishes immutable values from a single writer to
// any number of readers without locks. Each Publish installs a fresh
// copy behind an atomic pointer, so readers always observe a complete
// value and never block the writer.
package snapshot

import "sync/atomic"

type versioned[T any] struct {
	seq   uint64
	value T
}

// Publisher hands complete values of T from one writer goroutine to
// concurrent readers. The zero value is ready to use and reports no
// value until the first Publish.
type Publisher[T any] struct {
	cur atomic.Pointer[versioned[T]]
	seq uint64
}

// Publish installs v as the current snapshot. Only one goroutine may
// call Publish.
func (p *Publisher[T]) Publish(v T) {
	p.seq++
	p.cur.Store(&versioned[T]{seq: p.seq, value: v})
}

// Read returns the current snapshot and its sequence number. ok is
// false before the first Publish. Sequence numbers are strictly
// increasing, so a reader can cheaply detect missed or repeated
// snapshots.
func (p *Publisher[T]) Read() (v T, seq uint64, ok bool) {
	cur := p.cur.Load()
	if cur == nil {
		return v, 0, false
	}
	return cur.value, cur.seq, true
}

// Reset discards the current snapshot. Sequence numbering continues
// from where it was so readers never see it move backwards.
func (p *Publisher[T]) Reset() {
	p.cur.Store(nil)
}
