package speech

import (
	"strconv"
	"sync"
)

// Acks matches client acknowledgements to the requests waiting on them.
type Acks struct {
	mu      sync.Mutex
	next    uint64
	waiting map[string]chan error
}

func NewAcks() *Acks {
	return &Acks{waiting: make(map[string]chan error)}
}

// Register returns a fresh id, the channel its acknowledgement arrives on,
// and a func that forgets the id.
func (a *Acks) Register() (string, <-chan error, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.next++
	id := "r" + strconv.FormatUint(a.next, 10)
	ch := make(chan error, 1)
	a.waiting[id] = ch
	return id, ch, func() {
		a.mu.Lock()
		delete(a.waiting, id)
		a.mu.Unlock()
	}
}

// Resolve delivers err to the waiter for id. Unknown or stale ids report
// false.
func (a *Acks) Resolve(id string, err error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch, ok := a.waiting[id]
	if !ok {
		return false
	}
	delete(a.waiting, id)
	ch <- err
	return true
}

func (a *Acks) FailAll(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, ch := range a.waiting {
		delete(a.waiting, id)
		ch <- err
	}
}

func (a *Acks) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.waiting)
}
