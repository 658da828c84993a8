package guard

import "errors"

// ErrReentrantCall is returned when an entry point is re-entered while a
// previous invocation is still in flight.
var ErrReentrantCall = errors.New("reentrant call")

// Guard is the held/released latch applied to every state-mutating entry
// point. Execution is serialized by the host, so the only way to trip it is a
// callback (flash-loan borrower, token hook) re-entering the same engine
// within one transaction.
type Guard struct {
	held bool
}

// Enter acquires the latch. Callers must pair it with Leave on success.
func (g *Guard) Enter() error {
	if g.held {
		return ErrReentrantCall
	}
	g.held = true
	return nil
}

// Leave releases the latch.
func (g *Guard) Leave() {
	g.held = false
}
