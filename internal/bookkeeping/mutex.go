package bookkeeping

import (
	"runtime"
	"sync"
)

// recursiveMutex is a process-wide lock that a single OS thread may
// acquire an unbounded number of nested times (so a tracer-internal
// allocation triggered from inside stack capture, symbol resolution,
// or compressor spawn never deadlocks against the outer allocation
// that triggered it) while strictly serializing distinct OS threads
// against each other. The standard library has no recursive mutex;
// this hand-rolled one follows the same "small synchronization
// primitive built directly rather than pulled from a generic library"
// idiom the rest of this codebase's ancestry uses for its locking (a
// plain sync.RWMutex guarding a map, generalized here to recursive
// same-owner semantics).
type recursiveMutex struct {
	mu    sync.Mutex
	owner int32
	held  bool
	depth int
}

// Lock acquires the lock, or increments the depth if the calling
// thread already holds it. It spins with runtime.Gosched between
// polls rather than blocking on a condition variable, since condition
// variable wakeups are not guaranteed allocation-free across every Go
// runtime version and this path must never allocate.
func (m *recursiveMutex) Lock() {
	tid := currentThread()
	for {
		m.mu.Lock()
		if !m.held || m.owner == tid {
			m.owner = tid
			m.held = true
			m.depth++
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		runtime.Gosched()
	}
}

// Unlock decrements the depth, releasing full ownership once it
// reaches zero.
func (m *recursiveMutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth--
	if m.depth == 0 {
		m.held = false
		m.owner = 0
	}
}

// Depth reports the calling thread's current nesting depth, or 0 if it
// does not hold the lock.
func (m *recursiveMutex) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held || m.owner != currentThread() {
		return 0
	}
	return m.depth
}
