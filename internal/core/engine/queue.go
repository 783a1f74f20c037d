package engine

import "math/big"

// rateChange records a historical rate value: rate applies to epochs up
// to and including UntilEpoch that are not yet settled.
type rateChange struct {
	UntilEpoch uint64
	Rate       *big.Int
}

// rateQueue is the per-rail FIFO of pending rate changes. It is a
// bounded ring over a growable slice: head advances as settlement
// consumes entries, entries append at the tail on rate modification.
type rateQueue struct {
	buf  []rateChange
	head int
	max  int
}

func newRateQueue(max int) rateQueue {
	return rateQueue{max: max}
}

func (q *rateQueue) len() int {
	return len(q.buf) - q.head
}

func (q *rateQueue) empty() bool {
	return q.len() == 0
}

// peek returns the head entry without consuming it.
func (q *rateQueue) peek() (rateChange, bool) {
	if q.empty() {
		return rateChange{}, false
	}
	return q.buf[q.head], true
}

// pop consumes the head entry.
func (q *rateQueue) pop() (rateChange, bool) {
	if q.empty() {
		return rateChange{}, false
	}
	rc := q.buf[q.head]
	q.buf[q.head] = rateChange{} // release the big.Int
	q.head++
	if q.head == len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
	}
	return rc, true
}

// push appends an entry; fails when the bound is reached. Entries must
// arrive with strictly increasing UntilEpoch.
func (q *rateQueue) push(rc rateChange) error {
	if q.max > 0 && q.len() >= q.max {
		return ErrRateChangeQueueFull
	}
	// Compact once consumed space dominates.
	if q.head > 64 && q.head*2 >= len(q.buf) {
		q.buf = append(q.buf[:0], q.buf[q.head:]...)
		q.head = 0
	}
	q.buf = append(q.buf, rc)
	return nil
}

// tail returns the most recently pushed entry.
func (q *rateQueue) tail() (rateChange, bool) {
	if q.empty() {
		return rateChange{}, false
	}
	return q.buf[len(q.buf)-1], true
}

// entries copies out the pending entries in FIFO order (read side).
func (q *rateQueue) entries() []rateChange {
	out := make([]rateChange, 0, q.len())
	for i := q.head; i < len(q.buf); i++ {
		out = append(out, rateChange{
			UntilEpoch: q.buf[i].UntilEpoch,
			Rate:       new(big.Int).Set(q.buf[i].Rate),
		})
	}
	return out
}
