package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fjose/memtrail-go/internal/bookkeeping"
	"github.com/fjose/memtrail-go/internal/procmap"
)

func runFixture(t *testing.T, name string) (*bookkeeping.Tracer, *Workload, Result) {
	t.Helper()
	wl, err := LoadWorkload(filepath.Join("testdata", name))
	require.NoError(t, err)

	host := newFakeHost()
	sink := &recordingSink{}
	tr := bookkeeping.New(host, sink, procmap.NewResolver())

	res, err := RunWorkload(tr, wl)
	require.NoError(t, err)

	return tr, wl, res
}

func requireExpectations(t *testing.T, tr *bookkeeping.Tracer, wl *Workload) {
	t.Helper()
	tr.Flush()
	require.Equal(t, wl.Expect.MaxSize, tr.MaxSize(), "%s: maximum", wl.Name)
	require.Equal(t, wl.Expect.LeakedSize, tr.TotalSize(), "%s: leaked", wl.Name)
}

func TestS1AllocFreeBeforeExit(t *testing.T) {
	tr, wl, _ := runFixture(t, "s1_alloc_free.yaml")
	requireExpectations(t, tr, wl)
}

func TestS2OneAllocationSurvives(t *testing.T) {
	tr, wl, _ := runFixture(t, "s2_one_survives.yaml")
	requireExpectations(t, tr, wl)
}

func TestS3AlignedAllocation(t *testing.T) {
	tr, wl, res := runFixture(t, "s3_aligned.yaml")
	require.Zero(t, res.EverAllocated["p"]%4096, "S3: payload must be aligned to 4096")
	requireExpectations(t, tr, wl)
}

func TestS4FreeNullProducesNoRecord(t *testing.T) {
	wl, err := LoadWorkload(filepath.Join("testdata", "s4_free_null.yaml"))
	require.NoError(t, err)
	sink := &recordingSink{}
	tr := bookkeeping.New(newFakeHost(), sink, procmap.NewResolver())
	_, err = RunWorkload(tr, wl)
	require.NoError(t, err)

	requireExpectations(t, tr, wl)
	require.Zero(t, sink.frees, "S4: free(null) must not emit a free record")
	require.Equal(t, 1, sink.allocs, "S4: only the live allocation is flushed")
}

func TestS5ReallocChain(t *testing.T) {
	tr, wl, _ := runFixture(t, "s5_realloc_chain.yaml")
	requireExpectations(t, tr, wl)
}
