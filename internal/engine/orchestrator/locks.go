package orchestrator

import (
	"context"
	"sync"
)

// userLocks hands out one mutual-exclusion slot per user. Slots are created on
// demand and dropped once nobody holds or waits for them.
type userLocks struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{slots: make(map[string]*slot)}
}

// acquire blocks until the user's slot is free or ctx is done
func (l *userLocks) acquire(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[userID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[userID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.release(userID, s)
			})
		}, nil
	case <-ctx.Done():
		l.release(userID, s)
		return nil, ctx.Err()
	}
}

func (l *userLocks) release(userID string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, userID)
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
