//go:build race

package tag

const Race = true
