// Command memtrail-go is a heap-allocation profiler for native Unix
// processes. Built with -buildmode=c-shared and injected via
// LD_PRELOAD, it interposes on the C/C++ allocation entry points,
// records every allocation and deallocation with a captured call
// stack, and streams the events through a forked gzip child to
// memtrail.data for offline analysis.
//
// The binary has no standalone entry point of its own: main is never
// invoked when the shared object is preloaded into a host process.
// It exists only because -buildmode=c-shared requires a package main
// with a func main to link.
package main

func main() {}
