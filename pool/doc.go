// Package pool implements a worker pool that grows between a low and high
// watermark of goroutines and shrinks back toward the low watermark when
// idle. It is a direct translation of the Afina::Concurrency::Executor
// design (see original_source/include/afina/concurrency/Executor.h): one
// mutex, one condition variable for new work, one for shutdown completion.
package pool
