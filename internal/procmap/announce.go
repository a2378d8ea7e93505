package procmap

import "sync"

// Announcer tracks which module ordinals have already been written to
// the event stream, so the pipeline emits a module's name at most once
// per ordinal. It is separate from ModuleTable/SymbolCache because
// "announced" is a property of one output stream, not of the process's
// view of its own loaded objects.
type Announcer struct {
	mu       sync.Mutex
	byOrdinal map[uint8]bool
}

// NewAnnouncer returns an empty Announcer.
func NewAnnouncer() *Announcer {
	return &Announcer{byOrdinal: make(map[uint8]bool)}
}

// ShouldAnnounce reports whether ordinal has not yet been announced,
// and marks it announced as a side effect if so.
func (a *Announcer) ShouldAnnounce(ordinal uint8) bool {
	if ordinal == ModuleUnknown {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.byOrdinal[ordinal] {
		return false
	}
	a.byOrdinal[ordinal] = true
	return true
}
