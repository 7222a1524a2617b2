//go:build deadlock

// Deadlock-detecting variants, selected with -tags=deadlock.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex is deadlock.Mutex when the deadlock tag is set.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is deadlock.RWMutex when the deadlock tag is set.
type RWMutex struct {
	deadlock.RWMutex
}
