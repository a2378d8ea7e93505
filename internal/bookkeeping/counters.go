package bookkeeping

// Counters holds the process-global accounting state. Every field is
// protected by the tracer's single recursive lock; Counters itself
// takes no lock, matching Registry's convention.
type Counters struct {
	totalSize        int64 // current live bytes
	maxSize          int64 // peak observed totalSize
	limitSize        int64 // upper bound that aborts the run; <=0 means unbounded
	lastSnapshotSize int64
	snapshotNo       uint64
}

// TotalSize returns the current live byte count.
func (c *Counters) TotalSize() int64 { return c.totalSize }

// MaxSize returns the peak observed live byte count.
func (c *Counters) MaxSize() int64 { return c.maxSize }

// SetLimit configures the ceiling that triggers _exit(1) when exceeded.
// A value <= 0 disables the limit.
func (c *Counters) SetLimit(limit int64) { c.limitSize = limit }

// add applies a signed size delta and maintains the peak. It returns
// false if applying the delta would overflow the signed counter or
// exceed the configured limit, in which case the caller must flush and
// terminate per the design's limit-exceeded handling.
func (c *Counters) add(delta int64) bool {
	next := c.totalSize + delta
	if delta > 0 && next < c.totalSize {
		return false // overflow
	}
	c.totalSize = next
	if c.totalSize > c.maxSize {
		c.maxSize = c.totalSize
	}
	if c.limitSize > 0 && c.totalSize > c.limitSize {
		return false
	}
	return true
}

// snapshot advances the snapshot counter and returns (current, delta)
// relative to the previous snapshot, matching the diagnostic line
// printed at every snapshot.
func (c *Counters) snapshot() (current, delta int64, no uint64) {
	delta = c.totalSize - c.lastSnapshotSize
	c.lastSnapshotSize = c.totalSize
	c.snapshotNo++
	return c.totalSize, delta, c.snapshotNo
}
