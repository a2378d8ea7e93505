package main

import (
	"sync"

	"github.com/fjose/memtrail-go/internal/memformat"
)

// recordingSink is the harness's in-memory EventSink, used when a test
// only needs to assert on emitted events rather than exercise the real
// framed pipeline (internal/pipeline is covered directly by its own
// package tests).
type recordingSink struct {
	mu        sync.Mutex
	allocs    int
	frees     int
	snapshots int
}

func (s *recordingSink) EmitAlloc(payload uint64, size int64, frames []memformat.Frame) error {
	s.mu.Lock()
	s.allocs++
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) EmitFree(payload uint64, size int64) error {
	s.mu.Lock()
	s.frees++
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) EmitSnapshot(current, delta int64, no uint64) error {
	s.mu.Lock()
	s.snapshots++
	s.mu.Unlock()
	return nil
}
