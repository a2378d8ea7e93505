// Package traceconfig centralizes the tracer's small, environment-only
// configuration surface. The design deliberately reads no
// configuration file and exposes no flags: the only inputs are the
// preload environment variable (read once and unset) and two
// overrides: the output path, read by the cgo constructor, and the
// byte limit, which cmd/memtrail-preloadtest's tests use to exercise
// the lifecycle without a real c-shared LD_PRELOAD injection.
package traceconfig

import (
	"os"
	"strconv"
)

const (
	// PreloadEnvVar is unset on start so subsequently spawned children
	// (including the compressor) are not themselves traced.
	PreloadEnvVar = "LD_PRELOAD"

	// OutputPathEnvVar overrides the fixed memtrail.data output path.
	// The cgo constructor (hooks_cgo.go) reads it through OutputPath and
	// writes memtrail.data in the current directory unless it is set;
	// cmd/memtrail-preloadtest passes its path to lifecycle.Init directly.
	OutputPathEnvVar = "MEMTRAIL_OUTPUT"

	// LimitEnvVar overrides the computed byte ceiling, used only by
	// tests that need to exercise the limit-exceeded path without
	// actually allocating half of physical RAM.
	LimitEnvVar = "MEMTRAIL_LIMIT"

	// DefaultOutputPath is the fixed relative path the design mandates.
	DefaultOutputPath = "memtrail.data"
)

// OutputPath returns the configured output path: the override if set,
// otherwise the fixed default.
func OutputPath() string {
	if v := os.Getenv(OutputPathEnvVar); v != "" {
		return v
	}
	return DefaultOutputPath
}

// LimitOverride returns a test-configured limit override in bytes, and
// whether one was set at all.
func LimitOverride() (int64, bool) {
	v := os.Getenv(LimitEnvVar)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// UnsetPreload removes the preload variable from this process's
// environment, matching the design's "reads and unsets ... on start"
// contract, and returns whether it had been set.
func UnsetPreload() bool {
	_, had := os.LookupEnv(PreloadEnvVar)
	os.Unsetenv(PreloadEnvVar)
	return had
}
