package main

import (
	"fmt"

	"github.com/fjose/memtrail-go/internal/bookkeeping"
	"github.com/fjose/memtrail-go/internal/stackcap"
)

// Result is what RunWorkload hands back: live is the map of named
// pointers still outstanding at the end of the run (used to resolve
// further steps or assert on leaks by name); everAllocated additionally
// records the pointer a ref was bound to at the moment of allocation,
// even if a later step in the same run freed it, so scenarios like S3
// can assert on an address's alignment independent of whether the
// fixture's own steps went on to free it.
type Result struct {
	Live          map[string]uintptr
	EverAllocated map[string]uintptr
}

// RunWorkload executes every step of wl against tr in order, resolving
// Ref/Target names against the pointers produced by earlier steps.
func RunWorkload(tr *bookkeeping.Tracer, wl *Workload) (Result, error) {
	res := Result{Live: make(map[string]uintptr), EverAllocated: make(map[string]uintptr)}
	var ctx stackcap.Context

	bind := func(ref string, p uintptr) {
		if ref == "" {
			return
		}
		res.Live[ref] = p
		res.EverAllocated[ref] = p
	}

	for i, step := range wl.Steps {
		switch step.Op {
		case "alloc":
			p := tr.Alloc(uintptr(step.Alignment), uintptr(step.Size), &ctx)
			bind(step.Ref, p)

		case "free":
			p, err := resolve(res.Live, step.Target, i)
			if err != nil {
				return res, err
			}
			tr.Free(p)
			delete(res.Live, step.Target)

		case "freenull":
			tr.Free(0)

		case "realloc":
			var p uintptr
			if step.Target != "" {
				var err error
				p, err = resolve(res.Live, step.Target, i)
				if err != nil {
					return res, err
				}
				delete(res.Live, step.Target)
			}
			bind(step.Ref, tr.Realloc(p, uintptr(step.Size), &ctx))

		case "reallocarray":
			var p uintptr
			if step.Target != "" {
				var err error
				p, err = resolve(res.Live, step.Target, i)
				if err != nil {
					return res, err
				}
				delete(res.Live, step.Target)
			}
			bind(step.Ref, tr.Reallocarray(p, uintptr(step.Nmemb), uintptr(step.Size), &ctx))

		case "snapshot":
			tr.Snapshot()

		default:
			return res, fmt.Errorf("memtrail-preloadtest: step %d: unknown op %q", i, step.Op)
		}
	}

	return res, nil
}

func resolve(named map[string]uintptr, ref string, step int) (uintptr, error) {
	p, ok := named[ref]
	if !ok {
		return 0, fmt.Errorf("memtrail-preloadtest: step %d: undefined ref %q", step, ref)
	}
	return p, nil
}

func main() {
	fmt.Println("memtrail-preloadtest: use `go test ./...` to run the workload fixtures under testdata/")
}
