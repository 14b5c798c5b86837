package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecount/internal/core/apperror"
	"storecount/internal/core/id"
	"storecount/internal/domain/counting"
)

func TestTxManager_RollbackUndoesWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	session := &counting.Session{ID: id.New(), StoreID: id.New(), Name: "x", CreatedAt: time.Now()}
	item := counting.NewItem(session.ID, id.New(), 0, 0, time.Now(), "op")

	err := s.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Sessions.Create(ctx, session))
		require.NoError(t, s.Items.CreateBatch(ctx, []counting.Item{item}))
		return errors.New("abort")
	})
	require.Error(t, err)

	_, err = s.Sessions.GetByID(ctx, session.ID)
	assert.True(t, apperror.IsNotFound(err))
	items, err := s.Items.ListBySession(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestItemRepo_UpsertIncrementsRevision(t *testing.T) {
	r := NewItemRepo()
	ctx := context.Background()
	sid, pid := id.New(), id.New()

	first, err := r.Upsert(ctx, counting.NewItem(sid, pid, 4, 5, time.Now(), "a"))
	require.NoError(t, err)
	second, err := r.Upsert(ctx, counting.NewItem(sid, pid, 7, 5, time.Now(), "b"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Revision)
	assert.Equal(t, int64(2), second.Difference)
	assert.Equal(t, "b", second.UpdatedBy)
}

func TestItemRepo_RollbackKeepsSiblingWrite(t *testing.T) {
	for _, preexisting := range []bool{false, true} {
		s := New()
		ctx := context.Background()
		sid, pid := id.New(), id.New()
		if preexisting {
			_, err := s.Items.Upsert(ctx, counting.NewItem(sid, pid, 1, 5, time.Now(), "seed"))
			require.NoError(t, err)
		}

		var sibling counting.Item
		err := s.Tx.RunInTransaction(ctx, func(txCtx context.Context) error {
			_, err := s.Items.Upsert(txCtx, counting.NewItem(sid, pid, 4, 5, time.Now(), "aborted"))
			require.NoError(t, err)
			// Committed by another caller before this transaction fails.
			sibling, err = s.Items.Upsert(ctx, counting.NewItem(sid, pid, 9, 5, time.Now(), "sibling"))
			require.NoError(t, err)
			return errors.New("abort")
		})
		require.Error(t, err)

		items, err := s.Items.ListBySession(ctx, sid)
		require.NoError(t, err)
		require.Len(t, items, 1, "preexisting=%v", preexisting)
		assert.Equal(t, sibling, items[0], "preexisting=%v", preexisting)
		assert.Equal(t, int64(9), items[0].PhysicalStock)
	}
}

func TestSessionRepo_ExclusiveLockBlocksShared(t *testing.T) {
	s := New()
	ctx := context.Background()
	session := &counting.Session{ID: id.New(), StoreID: id.New(), Name: "x"}
	require.NoError(t, s.Sessions.Create(ctx, session))

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
			_, err := s.Sessions.GetForUpdate(ctx, session.ID)
			close(locked)
			<-release
			return err
		})
	}()
	<-locked

	shared := make(chan struct{})
	go func() {
		_ = s.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
			_, err := s.Sessions.GetForShare(ctx, session.ID)
			close(shared)
			return err
		})
	}()

	select {
	case <-shared:
		t.Fatal("shared lock acquired while exclusive lock is held")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-shared:
	case <-time.After(time.Second):
		t.Fatal("shared lock not acquired after release")
	}
}

func TestSessionRepo_FinalizeOnce(t *testing.T) {
	r := NewSessionRepo()
	ctx := context.Background()
	session := &counting.Session{ID: id.New(), StoreID: id.New(), Name: "x"}
	require.NoError(t, r.Create(ctx, session))

	require.NoError(t, session.Finalize(time.Now(), "op", false))
	require.NoError(t, r.Finalize(ctx, session))
	assert.True(t, apperror.IsSessionClosed(r.Finalize(ctx, session)))
}
