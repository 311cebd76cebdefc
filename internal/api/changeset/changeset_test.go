package changeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	key     string
	created bool
}

func (r *record) Key() string     { return r.key }
func (r *record) IsCreated() bool { return r.created }

func keys(items []*record) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.key)
	}
	return out
}

func TestChangeSet_AddThenRemoveNewRecordIsNoop(t *testing.T) {
	cs := New[*record]()
	r := &record{key: "a"}

	cs.Add(r)
	require.True(t, cs.Remove(r))

	assert.Empty(t, cs.Current())
	assert.Empty(t, cs.Removed(), "records that never existed remotely must not be deleted")
}

func TestChangeSet_RemoveCreatedRecordIsTracked(t *testing.T) {
	r := &record{key: "a", created: true}
	cs := New(r)

	require.True(t, cs.Remove(r))

	assert.Empty(t, cs.Current())
	assert.Equal(t, []string{"a"}, keys(cs.Removed()))
	assert.True(t, cs.IsRemoved("a"))
}

func TestChangeSet_UndoRemoveRestoresMembership(t *testing.T) {
	r := &record{key: "a", created: true}
	cs := New(r)
	cs.Remove(r)

	cs.Add(&record{key: "a", created: true})

	assert.Equal(t, []string{"a"}, keys(cs.Current()))
	assert.Empty(t, cs.Removed())
}

func TestChangeSet_AddIsIdempotent(t *testing.T) {
	r := &record{key: "a"}
	cs := New(r)
	cs.Add(r)

	assert.Equal(t, 1, cs.Len())
}

func TestChangeSet_RemoveUnknownRecord(t *testing.T) {
	cs := New(&record{key: "a"})
	assert.False(t, cs.Remove(&record{key: "b", created: true}))
	assert.Empty(t, cs.Removed())
}

func TestChangeSet_InsertAndMoveKeepOrder(t *testing.T) {
	cs := New(&record{key: "a"}, &record{key: "c"})
	cs.Insert(1, &record{key: "b"})
	assert.Equal(t, []string{"a", "b", "c"}, keys(cs.Current()))

	cs.Insert(99, &record{key: "d"})
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys(cs.Current()))

	require.True(t, cs.Move(3, 0))
	assert.Equal(t, []string{"d", "a", "b", "c"}, keys(cs.Current()))
	assert.False(t, cs.Move(0, 4))
	assert.Equal(t, 2, cs.IndexOf("b"))
}

func TestChangeSet_GetRemoved(t *testing.T) {
	r := &record{key: "a", created: true}
	cs := New(r)

	_, ok := cs.GetRemoved("a")
	assert.False(t, ok)

	cs.Remove(r)
	got, ok := cs.GetRemoved("a")
	require.True(t, ok)
	assert.Same(t, r, got)

	_, ok = cs.GetRemoved("b")
	assert.False(t, ok)
}

func TestChangeSet_MarkRemoved(t *testing.T) {
	created := &record{key: "a", created: true}
	cs := New(created)

	cs.MarkRemoved(created)
	cs.MarkRemoved(created)
	cs.MarkRemoved(&record{key: "local"})

	assert.Empty(t, cs.Current())
	assert.Equal(t, []string{"a"}, keys(cs.Removed()))
}

func TestChangeSet_CurrentAndRemovedStayDisjoint(t *testing.T) {
	a := &record{key: "a", created: true}
	b := &record{key: "b", created: true}
	cs := New(a, b)

	cs.Remove(a)
	cs.Add(a)
	cs.Remove(b)
	cs.Remove(a)
	cs.Add(b)

	for _, cur := range cs.Current() {
		assert.False(t, cs.IsRemoved(cur.Key()), "key %s is both current and removed", cur.Key())
	}
	assert.Equal(t, []string{"b"}, keys(cs.Current()))
	assert.Equal(t, []string{"a"}, keys(cs.Removed()))

	cs.ClearRemoved()
	assert.Empty(t, cs.Removed())
}

func TestChangeSet_Forget(t *testing.T) {
	a := &record{key: "a", created: true}
	b := &record{key: "b", created: true}
	cs := New(a, b)
	cs.Remove(a)
	cs.Remove(b)

	cs.Forget("a")

	assert.Equal(t, []string{"b"}, keys(cs.Removed()))
}
