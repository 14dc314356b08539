// Package lock provides the mutex types used across the project.
// Mutexes are backed by go-deadlock so lock-order inversions and
// long-held locks surface in tests and debug builds.
package lock

import (
	"os"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// RWMutex is a drop-in replacement for sync.RWMutex with deadlock detection.
type RWMutex = deadlock.RWMutex

// Mutex is a drop-in replacement for sync.Mutex with deadlock detection.
type Mutex = deadlock.Mutex

func init() {
	// detection adds overhead on every lock acquisition so it is opt-in
	if os.Getenv("INDEX_MIRROR_DEADLOCK_DETECTION") == "" {
		deadlock.Opts.Disable = true
		return
	}
	deadlock.Opts.DeadlockTimeout = 30 * time.Second
}
