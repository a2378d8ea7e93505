package interpose

import "testing"

func TestSymbolsAreUnique(t *testing.T) {
	seen := make(map[string]bool, len(Symbols))
	for _, s := range Symbols {
		if seen[s.Name] {
			t.Fatalf("duplicate interposed symbol %q", s.Name)
		}
		seen[s.Name] = true
	}
}

func TestCppOverloadsComeInThrowingAndNothrowPairs(t *testing.T) {
	// Every std::nothrow_t overload's mangled name is its throwing
	// counterpart's name with "RKSt9nothrow_t" appended; assert the
	// throwing counterpart is also present, since a nothrow overload
	// with no throwing sibling would be a mistranscribed mangled name.
	byName := make(map[string]bool, len(Symbols))
	for _, s := range Symbols {
		byName[s.Name] = true
	}
	for _, s := range Symbols {
		if s.Kind != KindCppNew && s.Kind != KindCppDelete {
			continue
		}
		const suffix = "RKSt9nothrow_t"
		if len(s.Name) <= len(suffix) || s.Name[len(s.Name)-len(suffix):] != suffix {
			continue
		}
		throwing := s.Name[:len(s.Name)-len(suffix)]
		if !byName[throwing] {
			t.Errorf("nothrow overload %q has no throwing counterpart %q", s.Name, throwing)
		}
	}
}
