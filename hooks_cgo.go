//go:build cgo

package main

/*
#include <stdlib.h>

extern void goMemtrailCtor(void);
extern void goMemtrailDtor(void);

__attribute__((constructor(101)))
static void memtrail_ctor(void) {
    goMemtrailCtor();
}

__attribute__((destructor(101)))
static void memtrail_dtor(void) {
    goMemtrailDtor();
}
*/
import "C"

import (
	"fmt"
	"io"
	"os"

	"github.com/fjose/memtrail-go/internal/hostalloc"
	"github.com/fjose/memtrail-go/internal/lifecycle"
	"github.com/fjose/memtrail-go/internal/stackcap"
	"github.com/fjose/memtrail-go/internal/traceconfig"
)

// global is the process-wide Lifecycle installed by the constructor.
// The design forbids more than one tracer instance per process (the
// live-allocation registry and the output file are both singular), so
// a package-level variable is the correct shape here, not a smell.
var global *lifecycle.Lifecycle

// primeAllocatingSubsystems forces every allocation that the tracer's
// own machinery would otherwise trigger lazily and re-entrantly to
// happen once, up front, before the tracer starts observing calls:
// dlsym's internal calloc use during hostalloc's bootstrap, execinfo's
// first-call unwind-table allocation (on the cgo build, backtrace(3)
// is not guaranteed allocation-free the first time it runs on a given
// thread), and fmt's own one-time internal allocation on its first
// call (the diagnostic snapshot printer's fmt.Fprintf calls would
// otherwise pay for it on the first snapshot instead of here). Doing
// this before Init installs the tracer means
// the very first traced allocation in the target program never has to
// pay, or race, any of these bootstrap costs while the tracer's own
// re-entrancy guard is what would otherwise have to absorb them.
func primeAllocatingSubsystems() {
	p := hostalloc.Default.Malloc(1)
	hostalloc.Default.Free(p)

	var ctx stackcap.Context
	stackcap.Capture(&ctx, 0)

	fmt.Fprint(io.Discard, "")
}

//export goMemtrailCtor
func goMemtrailCtor() {
	traceconfig.UnsetPreload()
	primeAllocatingSubsystems()

	l, err := lifecycle.Init(hostalloc.Default, traceconfig.OutputPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "memtrail: fatal: %v\n", err)
		os.Exit(1)
	}
	global = l
}

//export goMemtrailDtor
func goMemtrailDtor() {
	if global == nil {
		return
	}
	global.Shutdown()
}

//export memtrail_snapshot
func memtrail_snapshot() {
	if global == nil {
		return
	}
	global.Snapshot()
}
