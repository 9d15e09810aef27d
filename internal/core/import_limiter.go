package core

// import_limiter.go implements concurrency control for import runs.
//
// Two limits apply. A global semaphore restricts parallel imports to a
// configurable maximum so the store is not flooded. A per-user slot
// serializes imports for the same user, which keeps tag slug probing for
// that user free of races. Waiting for either slot is bounded by maxWait.
//
// WaitForDrain blocks until all active imports complete, for graceful
// shutdown.

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTooManyImports is returned when all import slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

// ErrImportInProgress is returned when the user's previous import is still
// running after the wait timeout.
var ErrImportInProgress = errors.New("an import is already running for this user")

// DefaultMaxConcurrentImports is the default limit for parallel imports.
const DefaultMaxConcurrentImports = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// ImportLimiter controls concurrent import processing.
type ImportLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.Mutex
	active int
	users  map[uuid.UUID]*userSlot
}

// userSlot is a one-element semaphore shared by everyone waiting on a user.
type userSlot struct {
	ch   chan struct{}
	refs int
}

// NewImportLimiter creates a limiter that allows at most maxConcurrent
// simultaneous imports and one import per user.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &ImportLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
		users:     make(map[uuid.UUID]*userSlot),
	}
}

// Acquire takes the user's slot, then a global slot.
// Returns ErrImportInProgress or ErrTooManyImports if maxWait expires first.
// The caller MUST call Release(userID) when the import completes.
func (l *ImportLimiter) Acquire(ctx context.Context, userID uuid.UUID) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	slot := l.userSlot(userID)
	select {
	case slot.ch <- struct{}{}:
	case <-waitCtx.Done():
		l.dropUser(userID)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrImportInProgress
	}

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		<-slot.ch
		l.dropUser(userID)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyImports
	}
}

// Release releases the slots taken by a successful Acquire.
func (l *ImportLimiter) Release(userID uuid.UUID) {
	l.mu.Lock()
	l.active--
	slot := l.users[userID]
	l.mu.Unlock()

	<-l.semaphore
	if slot != nil {
		<-slot.ch
		l.dropUser(userID)
	}
}

func (l *ImportLimiter) userSlot(userID uuid.UUID) *userSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.users[userID]
	if !ok {
		slot = &userSlot{ch: make(chan struct{}, 1)}
		l.users[userID] = slot
	}
	slot.refs++
	return slot
}

func (l *ImportLimiter) dropUser(userID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.users[userID]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs <= 0 {
		delete(l.users, userID)
	}
}

// ActiveCount returns the number of currently active imports.
func (l *ImportLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// MaxConcurrent returns the maximum allowed concurrent imports.
func (l *ImportLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of available global slots.
func (l *ImportLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all active imports complete or ctx is done.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ImportLimiterStatus is a snapshot of the limiter's state.
type ImportLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
	Users         int `json:"users"`
}

// Status returns the current limiter state for monitoring.
func (l *ImportLimiter) Status() ImportLimiterStatus {
	l.mu.Lock()
	active, users := l.active, len(l.users)
	l.mu.Unlock()

	return ImportLimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
		Users:         users,
	}
}
