// Package lifecycle wires the tracer's components together and
// implements the process-lifetime hooks: the constructor that opens
// the event pipeline and computes the memory limit, the destructor
// that flushes leaks and prints the final report, and the snapshot
// control entry point callable from the traced program.
package lifecycle

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/fjose/memtrail-go/internal/bookkeeping"
	"github.com/fjose/memtrail-go/internal/hostalloc"
	"github.com/fjose/memtrail-go/internal/pipeline"
	"github.com/fjose/memtrail-go/internal/procmap"
	"github.com/fjose/memtrail-go/internal/traceconfig"
)

// pointerWidth is this process's native pointer width in bytes, written
// once as the stream's preamble byte.
const pointerWidth = int(unsafe.Sizeof(uintptr(0)))

// resolvedCacheSize bounds how many distinct addresses the leak
// report's module+offset cache holds. Leak reports are printed once,
// at process exit, over whatever pending set the run accumulated; this
// just keeps a pathological run with millions of distinct call sites
// from growing the cache unbounded.
const resolvedCacheSize = 4096

// Lifecycle owns every process-global tracer collaborator and the
// output sink's lifetime.
type Lifecycle struct {
	Tracer   *bookkeeping.Tracer
	Resolver *procmap.Resolver

	sink    io.WriteCloser
	symbols *procmap.ResolvedCache
}

// Init opens the event pipeline at outputPath, builds the tracer over
// the given host allocator, computes and installs the memory
// limit, and refreshes the module resolver's view of loaded objects.
// It matches the early constructor's responsibilities from the design,
// minus the standard-stream/dynamic-loader priming that only makes
// sense inside the cgo constructor trampoline (see hooks_cgo.go).
func Init(host hostalloc.Allocator, outputPath string) (*Lifecycle, error) {
	sink, err := pipeline.StartCompressor(outputPath)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: start compressor: %w", err)
	}

	writer := pipeline.NewWriter(sink, pointerWidth)
	resolver := procmap.NewResolver()
	if err := resolver.Refresh(); err != nil {
		fmt.Fprintf(os.Stderr, "memtrail: warning: could not read /proc/self/maps: %v\n", err)
	}

	tracer := bookkeeping.New(host, writer, resolver)
	limit := ComputeLimit()
	tracer.SetLimit(limit)
	tracer.SetLimitHandler(func(current, max int64) {
		tracer.Flush()
		fmt.Fprintf(os.Stderr, "memtrail: error: live size %d exceeds limit %d, terminating\n", current, limit)
		os.Exit(1)
	})

	fmt.Fprintf(os.Stderr, "memtrail: limit %d bytes\n", limit)

	symbols, err := procmap.NewResolvedCache(resolvedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: new resolved cache: %w", err)
	}

	return &Lifecycle{Tracer: tracer, Resolver: resolver, sink: sink, symbols: symbols}, nil
}

// Snapshot flushes pending headers, writes a sentinel record, and
// prints the current/delta diagnostic line, matching the design's
// snapshot control entry point.
func (l *Lifecycle) Snapshot() {
	current, delta, _ := l.Tracer.Snapshot()
	sign := "+"
	d := delta
	if d < 0 {
		sign = "-"
		d = -d
	}
	fmt.Fprintf(os.Stderr, "memtrail: %d bytes (%s%d bytes)\n", current, sign, d)
}

// Shutdown flushes the live-allocation list (so every still-pending
// header is attributed as a leak), prints the final maximum/leaked
// report plus one human-readable line per header that was still pending
// (a live allocation already flushed by an earlier snapshot counts in
// the leaked total but gets no line of its own), and
// intentionally does not close the underlying sink: the compressor
// child is allowed to outlive this process so a late destructor that
// still allocates after Shutdown runs does not race a closed pipe.
func (l *Lifecycle) Shutdown() {
	leaked := l.Tracer.TotalSize()
	l.Tracer.FlushReport(func(payload uint64, size int64, addrs []uintptr) {
		if len(addrs) == 0 {
			fmt.Fprintf(os.Stderr, "memtrail: leaked %d bytes at 0x%x\n", size, payload)
			return
		}
		fmt.Fprintf(os.Stderr, "memtrail: leaked %d bytes at 0x%x, called from %s\n",
			size, payload, l.symbols.Format(l.Resolver, addrs[0]))
	})
	fmt.Fprintf(os.Stderr, "memtrail: maximum %d bytes, leaked %d bytes\n", l.Tracer.MaxSize(), leaked)
}

// ComputeLimit computes the byte ceiling that aborts the run:
// min(half of physical RAM, MaxInt64 byte-count) expressed in whole
// pages, converted back to bytes. A test override via MEMTRAIL_LIMIT
// takes precedence, so integration tests can exercise the
// limit-exceeded path without allocating half of physical RAM.
func ComputeLimit() int64 {
	if v, ok := traceconfig.LimitOverride(); ok {
		return v
	}
	pagesize := int64(unix.Getpagesize())
	var totalRAM int64 = 1 << 40 // 1 TiB fallback if Sysinfo is unavailable
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		totalRAM = int64(info.Totalram) * int64(info.Unit)
	}
	return computeLimitPages(pagesize, totalRAM)
}

func computeLimitPages(pagesize, totalRAMBytes int64) int64 {
	if pagesize <= 0 {
		pagesize = 4096
	}
	ramPages := (totalRAMBytes / 2) / pagesize
	const maxSignedByteCount = 1<<63 - 1
	maxPages := maxSignedByteCount / pagesize
	limitPages := ramPages
	if maxPages < limitPages {
		limitPages = maxPages
	}
	return limitPages * pagesize
}
