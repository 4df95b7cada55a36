package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var errWaitInterrupted = errors.New("wait interrupted by cancellation")

// waiters tracks the AwaitCode calls in flight so Cancel can stop them
type waiters struct {
	mu   sync.Mutex
	next uint64
	byTx map[uuid.UUID]map[uint64]context.CancelCauseFunc
}

func newWaiters() *waiters {
	return &waiters{byTx: make(map[uuid.UUID]map[uint64]context.CancelCauseFunc)}
}

func (w *waiters) register(id uuid.UUID, cancel context.CancelCauseFunc) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next++
	key := w.next
	if w.byTx[id] == nil {
		w.byTx[id] = make(map[uint64]context.CancelCauseFunc)
	}
	w.byTx[id][key] = cancel

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.byTx[id], key)
		if len(w.byTx[id]) == 0 {
			delete(w.byTx, id)
		}
	}
}

// interrupt wakes every waiter of id and reports how many there were
func (w *waiters) interrupt(id uuid.UUID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, cancel := range w.byTx[id] {
		cancel(errWaitInterrupted)
	}
	return len(w.byTx[id])
}
