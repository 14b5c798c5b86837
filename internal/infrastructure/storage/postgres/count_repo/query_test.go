package count_repo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecount/internal/core/id"
	"storecount/internal/domain/counting"
)

func TestSessionRepo_LockSuffix(t *testing.T) {
	r := NewSessionRepo(nil)
	sid := id.New()

	sql, args, err := r.selectByID(sid, "FOR UPDATE").ToSql()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, "WHERE id = $1 FOR UPDATE"), sql)
	assert.Equal(t, []any{sid.String()}, args)

	sql, _, err = r.selectByID(sid, "FOR SHARE").ToSql()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, "FOR SHARE"), sql)

	sql, _, err = r.selectByID(sid, "").ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "FOR ")
}

func TestSessionRepo_FinalizeOnlyOpenRows(t *testing.T) {
	r := NewSessionRepo(nil)
	s := &counting.Session{ID: id.New()}
	require.NoError(t, s.Finalize(time.Now(), "op", true))

	sql, args, err := r.finalizeQuery(s).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "UPDATE count_sessions SET finalized_at = $1, finalized_by = $2, reconciled = $3")
	assert.Contains(t, sql, "WHERE id = $4 AND finalized_at IS NULL")
	assert.Len(t, args, 4)
}

func TestSessionRepo_ListStatusFilter(t *testing.T) {
	r := NewSessionRepo(nil)
	store := id.New()

	sql, _, err := r.builder.Select("id").From(sessionsTable).
		Where(r.listWhere(counting.ListFilter{StoreID: store, Status: counting.StatusFinalized})).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "store_id = $1 AND finalized_at IS NOT NULL")

	sql, _, err = r.builder.Select("id").From(sessionsTable).
		Where(r.listWhere(counting.ListFilter{StoreID: store})).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "finalized_at")
}

func TestItemRepo_UpsertIncrementsRevision(t *testing.T) {
	r := NewItemRepo(nil)
	item := counting.NewItem(id.New(), id.New(), 3, 5, time.Now(), "op")

	sql, args, err := r.upsertQuery(item).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "ON CONFLICT (session_id, store_product_id) DO UPDATE SET")
	assert.Contains(t, sql, "revision = count_items.revision + 1")
	assert.Contains(t, sql, "RETURNING *")
	assert.Len(t, args, len(r.cols))
	assert.Equal(t, int64(-2), args[5])
}
