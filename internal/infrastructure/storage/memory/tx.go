package memory

import (
	"context"
	"fmt"
	"sync"

	"storecount/internal/core/tx"
)

var (
	_ tx.Manager         = (*TxManager)(nil)
	_ tx.ReadOnlyManager = (*TxManager)(nil)
)

// TxManager emulates database transactions: writes made inside fn are undone
// if fn fails, and row locks taken inside fn are held until it returns.
type TxManager struct{}

// NewTxManager creates a memory transaction manager.
func NewTxManager() *TxManager {
	return &TxManager{}
}

type txKey struct{}

type lockMode int

const (
	lockShared lockMode = iota + 1
	lockExclusive
)

// txState is the bookkeeping of one running transaction. fn runs on a
// single goroutine, so the state is not synchronized.
type txState struct {
	undo    []func()
	unlocks []func()
	held    map[string]lockMode
}

// RunInTransaction implements tx.Manager. Nested calls join the outer transaction.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if current(ctx) != nil {
		return fn(ctx)
	}

	state := &txState{held: make(map[string]lockMode)}
	defer func() {
		for i := len(state.unlocks) - 1; i >= 0; i-- {
			state.unlocks[i]()
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, state)); err != nil {
		for i := len(state.undo) - 1; i >= 0; i-- {
			state.undo[i]()
		}
		return err
	}
	return nil
}

// ReadOnly implements tx.ReadOnlyManager.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransaction(ctx, fn)
}

func current(ctx context.Context) *txState {
	state, _ := ctx.Value(txKey{}).(*txState)
	return state
}

// onRollback registers undo to run if the surrounding transaction fails.
// Outside a transaction writes are final.
func onRollback(ctx context.Context, undo func()) {
	if state := current(ctx); state != nil {
		state.undo = append(state.undo, undo)
	}
}

// rowLocks is a table of per-row reader/writer locks.
type rowLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newRowLocks() *rowLocks {
	return &rowLocks{locks: make(map[string]*sync.RWMutex)}
}

func (r *rowLocks) get(key string) *sync.RWMutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		r.locks[key] = l
	}
	return l
}

// acquire takes the row lock in mode for the rest of the transaction in ctx.
// Outside a transaction there is nothing to hold the lock for, so it is a no-op.
func (r *rowLocks) acquire(ctx context.Context, key string, mode lockMode) error {
	state := current(ctx)
	if state == nil {
		return nil
	}
	if held, ok := state.held[key]; ok {
		if held >= mode {
			return nil
		}
		return fmt.Errorf("lock upgrade on %s is not supported", key)
	}

	l := r.get(key)
	if mode == lockExclusive {
		l.Lock()
		state.unlocks = append(state.unlocks, l.Unlock)
	} else {
		l.RLock()
		state.unlocks = append(state.unlocks, l.RUnlock)
	}
	state.held[key] = mode
	return nil
}
