// Package interpose is the pure-Go manifest of every C/C++ symbol the
// cgo build (the root-level shims_*.go files) exports from the shared
// object. It exists so the completeness of the interposition surface
// can be asserted by an ordinary go test run, without a c-shared
// build: the manifest is the single source of truth that both the
// design notes and a test can check against.
package interpose

// Kind classifies an interposed symbol by the calling convention its
// shim must honor.
type Kind int

const (
	// KindAlloc is a plain C allocation entry point.
	KindAlloc Kind = iota
	// KindString is a string-duplication entry point that allocates
	// internally via the same libc bypass as KindAlloc.
	KindString
	// KindCppNew is a C++ operator new/new[] overload, throwing or nothrow.
	KindCppNew
	// KindCppDelete is a C++ operator delete/delete[] overload.
	KindCppDelete
)

// Symbol names one interposed entry point by its C-visible name (the
// mangled name for C++ overloads) and its Kind.
type Symbol struct {
	Name string
	Kind Kind
}

// Symbols lists every entry point the shared object interposes. malloc,
// free, calloc, realloc, and reallocarray are the entry points the
// design calls out explicitly; the aligned-allocation family, strdup
// and strndup, and the C++ operator overloads round out the surface a
// real mixed C/C++ binary exercises.
var Symbols = []Symbol{
	{Name: "malloc", Kind: KindAlloc},
	{Name: "free", Kind: KindAlloc},
	{Name: "calloc", Kind: KindAlloc},
	{Name: "realloc", Kind: KindAlloc},
	{Name: "reallocarray", Kind: KindAlloc},
	{Name: "posix_memalign", Kind: KindAlloc},
	{Name: "memalign", Kind: KindAlloc},
	{Name: "aligned_alloc", Kind: KindAlloc},
	{Name: "valloc", Kind: KindAlloc},
	{Name: "pvalloc", Kind: KindAlloc},

	{Name: "strdup", Kind: KindString},
	{Name: "strndup", Kind: KindString},

	{Name: "_Znwm", Kind: KindCppNew},
	{Name: "_ZnwmSt11align_val_t", Kind: KindCppNew},
	{Name: "_ZnwmRKSt9nothrow_t", Kind: KindCppNew},
	{Name: "_ZnwmSt11align_val_tRKSt9nothrow_t", Kind: KindCppNew},
	{Name: "_Znam", Kind: KindCppNew},
	{Name: "_ZnamSt11align_val_t", Kind: KindCppNew},
	{Name: "_ZnamRKSt9nothrow_t", Kind: KindCppNew},
	{Name: "_ZnamSt11align_val_tRKSt9nothrow_t", Kind: KindCppNew},

	{Name: "_ZdlPv", Kind: KindCppDelete},
	{Name: "_ZdlPvSt11align_val_t", Kind: KindCppDelete},
	{Name: "_ZdlPvRKSt9nothrow_t", Kind: KindCppDelete},
	{Name: "_ZdlPvSt11align_val_tRKSt9nothrow_t", Kind: KindCppDelete},
	{Name: "_ZdaPv", Kind: KindCppDelete},
	{Name: "_ZdaPvSt11align_val_t", Kind: KindCppDelete},
	{Name: "_ZdaPvRKSt9nothrow_t", Kind: KindCppDelete},
	{Name: "_ZdaPvSt11align_val_tRKSt9nothrow_t", Kind: KindCppDelete},
}
