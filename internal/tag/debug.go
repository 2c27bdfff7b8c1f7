//go:build debug

// Package tag exposes build-tag driven flags that gate expensive runtime
// invariant checks. Built with -tags debug to turn them on.
package tag

const Debug = true
