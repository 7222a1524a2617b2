//go:build !deadlock

// Package syncutil picks the mutex implementation at build time. Default
// builds use the standard library with no overhead; the deadlock build tag
// swaps in sasha-s/go-deadlock so lock-order problems between the transport
// and the detection caches surface during development runs.
package syncutil

import "sync"

// Mutex is sync.Mutex in default builds.
type Mutex struct {
	sync.Mutex
}

// RWMutex is sync.RWMutex in default builds.
type RWMutex struct {
	sync.RWMutex
}
