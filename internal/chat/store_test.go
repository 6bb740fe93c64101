package chat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
}

func TestNewThreadKey_Is_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"a", "a"},
		{"", "x"},
		{"a-b", "c"},
		{"a", "b-c"},
		{"Zoë", "zoe"},
	}
	for _, p := range pairs {
		t.Run(p[0]+"/"+p[1], func(t *testing.T) {
			require.Equal(t, NewThreadKey(p[0], p[1]), NewThreadKey(p[1], p[0]))
		})
	}
}

func TestNewThreadKey_Distinguishes_Pairs(t *testing.T) {
	req := require.New(t)
	// Names containing the separator of a naive "a-b" join must not collide
	req.NotEqual(NewThreadKey("a-b", "c"), NewThreadKey("a", "b-c"))

	a, b := NewThreadKey("bob", "alice").Participants()
	req.Equal("alice", a)
	req.Equal("bob", b)
}

func TestStore_AppendPublic_Keeps_Arrival_Order(t *testing.T) {
	req := require.New(t)
	store := NewStore(WithIDGenerator(sequentialIDs()))

	for i := range 20 {
		store.AppendPublic("alice", fmt.Sprintf("msg %d", i))
	}

	messages := store.Public()
	req.Len(messages, 20)
	for i, m := range messages {
		req.Equal(fmt.Sprintf("msg %d", i), m.Body)
		req.Equal(fmt.Sprintf("m%d", i+1), m.ID)
		req.Empty(m.To)
		req.NotNil(m.Reactions)
		req.Empty(m.Reactions)
	}
}

func TestStore_AppendPrivate_Creates_Thread_Lazily(t *testing.T) {
	req := require.New(t)
	store := NewStore(WithIDGenerator(sequentialIDs()))
	req.Zero(store.ThreadCount())

	first := store.AppendPrivate("bob", "alice", "hey", "local-1")
	store.AppendPrivate("alice", "bob", "hi bob", "")

	// Both directions land in the same thread
	req.Equal(1, store.ThreadCount())
	thread := store.Thread("alice", "bob")
	req.Len(thread, 2)
	req.Equal("hey", thread[0].Body)
	req.Equal("hi bob", thread[1].Body)
	req.Equal("local-1", first.LocalID)
	req.True(first.IsPrivate())
}

func TestStore_Find_Is_Scoped_To_Its_Store(t *testing.T) {
	req := require.New(t)
	store := NewStore(WithIDGenerator(sequentialIDs()))

	pub := store.AppendPublic("alice", "hi")
	priv := store.AppendPrivate("bob", "alice", "hey", "")

	_, ok := store.FindPublic(pub.ID)
	req.True(ok)

	// A private id is never found in the public log
	_, ok = store.FindPublic(priv.ID)
	req.False(ok)

	// Private lookups need the right pair, in either order
	_, ok = store.FindPrivate("alice", "bob", priv.ID)
	req.True(ok)
	_, ok = store.FindPrivate("bob", "alice", priv.ID)
	req.True(ok)
	_, ok = store.FindPrivate("alice", "carol", priv.ID)
	req.False(ok)
	_, ok = store.FindPrivate("alice", "bob", pub.ID)
	req.False(ok)
}

func TestStore_FindPrivate_By_Local_ID(t *testing.T) {
	req := require.New(t)
	store := NewStore()

	// Given bob sent a message he only knows by his local id
	priv := store.AppendPrivate("bob", "alice", "hey", "local-7")

	// Then both ids resolve to the same stored message
	byLocal, ok := store.FindPrivate("alice", "bob", "local-7")
	req.True(ok)
	req.Equal(priv.ID, byLocal.ID)

	// And a later message reusing the local id does not steal it
	store.AppendPrivate("bob", "alice", "again", "local-7")
	byLocal, ok = store.FindPrivate("bob", "alice", "local-7")
	req.True(ok)
	req.Equal(priv.ID, byLocal.ID)

	_, ok = store.FindPublic("local-7")
	req.False(ok)
}

func TestStore_Returned_Messages_Are_Copies(t *testing.T) {
	req := require.New(t)
	store := NewStore()
	m := store.AppendPublic("alice", "hi")

	m.Reactions.Add("👍", "mallory")
	listed := store.Public()
	listed[0].Reactions.Add("🎉", "mallory")

	stored, ok := store.FindPublic(m.ID)
	req.True(ok)
	req.Empty(stored.Reactions)
}
