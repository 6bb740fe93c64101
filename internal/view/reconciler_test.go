package view

import (
	"fmt"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-presence/internal/protocol"
)

var at = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestReconciler(self string) *Reconciler {
	seq := 0
	return New(self,
		WithNow(func() time.Time { return at }),
		WithLocalIDs(func() string {
			seq++
			return fmt.Sprintf("local-%d", seq)
		}),
	)
}

func wireMessage(id, from, to, body string) protocol.Message {
	return protocol.Message{ID: id, From: from, To: to, Body: body, Timestamp: at, Reactions: map[string][]string{}}
}

func ids(messages []Message) []string {
	return lo.Map(messages, func(m Message, _ int) string { return m.ID })
}

func TestReconciler_Public_Messages_Keep_Arrival_Order_Without_Duplicates(t *testing.T) {
	req := require.New(t)
	r := newTestReconciler("alice")

	r.Apply(protocol.PublicMessage{Message: wireMessage("m2", "bob", "", "second")})
	r.Apply(protocol.PublicMessage{Message: wireMessage("m1", "bob", "", "first")})
	r.Apply(protocol.PublicMessage{Message: wireMessage("m2", "bob", "", "second")})

	req.Equal([]string{"m2", "m1"}, ids(r.Snapshot().Public))
}

func TestReconciler_Private_Messages_Are_Keyed_By_Peer(t *testing.T) {
	req := require.New(t)
	r := newTestReconciler("alice")

	r.Apply(protocol.PrivateMessage{Message: wireMessage("m1", "bob", "alice", "hey")})
	r.Apply(protocol.PrivateMessage{Message: wireMessage("m2", "alice", "bob", "yo")})
	r.Apply(protocol.PrivateMessage{Message: wireMessage("m3", "carol", "alice", "psst")})

	state := r.Snapshot()
	req.Len(state.Threads, 2)
	req.Equal([]string{"m1", "m2"}, ids(state.Threads["bob"].Messages))
	req.Equal([]string{"m3"}, ids(state.Threads["carol"].Messages))
	req.Empty(state.Public)
}

func TestReconciler_Optimistic_Private_Send(t *testing.T) {
	t.Run("without an echo the optimistic entry stays", func(t *testing.T) {
		req := require.New(t)
		r := newTestReconciler("bob")

		sent := r.SendPrivate("alice", "hey")

		req.Equal("local-1", sent.ID)
		thread := r.Snapshot().Threads["alice"]
		req.Len(thread.Messages, 1)
		req.True(thread.Messages[0].Pending)
		req.Equal("bob", thread.Messages[0].From)
		req.Equal("alice", thread.Messages[0].To)
	})

	t.Run("an echo replaces the optimistic entry in place", func(t *testing.T) {
		req := require.New(t)
		r := newTestReconciler("bob")

		// Given bob sends twice before any echo arrives
		r.SendPrivate("alice", "hey")
		r.SendPrivate("alice", "there")

		// When the server echoes the first one, twice
		echo := wireMessage("srv-1", "bob", "alice", "hey")
		echo.LocalID = "local-1"
		r.Apply(protocol.PrivateMessage{Message: echo})
		r.Apply(protocol.PrivateMessage{Message: echo})

		// Then there is still one entry per send, in send order
		messages := r.Snapshot().Threads["alice"].Messages
		req.Equal([]string{"srv-1", "local-2"}, ids(messages))
		req.False(messages[0].Pending)
		req.True(messages[1].Pending)
	})

	t.Run("a local id from somebody else is not adopted", func(t *testing.T) {
		req := require.New(t)
		r := newTestReconciler("bob")
		r.SendPrivate("alice", "hey")

		incoming := wireMessage("srv-9", "alice", "bob", "hi")
		incoming.LocalID = "local-1"
		r.Apply(protocol.PrivateMessage{Message: incoming})

		req.Equal([]string{"local-1", "srv-9"}, ids(r.Snapshot().Threads["alice"].Messages))
	})
}

func TestReconciler_Reactions(t *testing.T) {
	req := require.New(t)
	r := newTestReconciler("alice")
	r.Apply(protocol.PublicMessage{Message: wireMessage("m1", "bob", "", "hi")})
	r.Apply(protocol.PrivateMessage{Message: wireMessage("m2", "bob", "alice", "hey")})

	// Public reactions replace the map of the public entry
	req.True(r.Apply(protocol.MessageReaction{MessageID: "m1", Reactions: map[string][]string{"🎉": {"bob"}}, From: "bob"}))

	// Private reactions find the thread from the actor's point of view
	req.True(r.Apply(protocol.MessageReaction{MessageID: "m2", Reactions: map[string][]string{"👍": {"alice"}}, IsPrivate: true, From: "alice", To: "bob"}))
	req.True(r.Apply(protocol.MessageReaction{MessageID: "m2", Reactions: map[string][]string{"👍": {"alice", "bob"}}, IsPrivate: true, From: "bob", To: "alice"}))

	// Unknown ids, or ids looked up in the wrong store, are dropped
	req.False(r.Apply(protocol.MessageReaction{MessageID: "m2", Reactions: map[string][]string{"x": {"bob"}}, From: "bob"}))
	req.False(r.Apply(protocol.MessageReaction{MessageID: "m1", Reactions: map[string][]string{"x": {"bob"}}, IsPrivate: true, From: "bob", To: "alice"}))
	req.False(r.Apply(protocol.MessageReaction{MessageID: "m9", Reactions: map[string][]string{}, IsPrivate: true, From: "carol", To: "alice"}))

	state := r.Snapshot()
	req.Equal(map[string][]string{"🎉": {"bob"}}, state.Public[0].Reactions)
	req.Equal(map[string][]string{"👍": {"alice", "bob"}}, state.Threads["bob"].Messages[0].Reactions)

	// Removing the last reaction leaves an empty map
	r.Apply(protocol.MessageReaction{MessageID: "m1", Reactions: map[string][]string{}, From: "bob"})
	req.Empty(r.Snapshot().Public[0].Reactions)
}

func TestReconciler_Reaction_Adopts_Server_ID_Of_Optimistic_Entry(t *testing.T) {
	req := require.New(t)
	r := newTestReconciler("bob")
	r.SendPrivate("alice", "hey")

	// When bob's reaction to his own message comes back with the server id
	req.True(r.Apply(protocol.MessageReaction{
		MessageID: "srv-1",
		LocalID:   "local-1",
		Reactions: map[string][]string{"❤️": {"bob"}},
		IsPrivate: true,
		From:      "bob",
		To:        "alice",
	}))

	// Then the entry is updated and known by its server id from now on
	messages := r.Snapshot().Threads["alice"].Messages
	req.Len(messages, 1)
	req.Equal("srv-1", messages[0].ID)
	req.False(messages[0].Pending)
	req.Equal(map[string][]string{"❤️": {"bob"}}, messages[0].Reactions)
}

func TestReconciler_Presence_And_Typing(t *testing.T) {
	req := require.New(t)
	r := newTestReconciler("alice")

	r.Apply(protocol.OnlineUsers{{ConnectionID: "c1", DisplayName: "alice", JoinedAt: at}})
	r.Apply(protocol.UserJoined{DisplayName: "bob", Timestamp: at})
	r.Apply(protocol.UsersUpdated{
		{ConnectionID: "c1", DisplayName: "alice", JoinedAt: at},
		{ConnectionID: "c2", DisplayName: "bob", JoinedAt: at},
	})
	r.Apply(protocol.Typing{Username: "bob", IsTyping: true, TypingUsers: []string{"bob"}})
	r.Apply(protocol.PrivateTyping{From: "bob", IsTyping: true})

	state := r.Snapshot()
	req.Len(state.Online, 2)
	req.Equal([]string{"bob"}, state.Typers)
	req.True(state.Threads["bob"].PeerTyping)
	req.Equal([]Notice{{Kind: protocol.TypeUserJoined, DisplayName: "bob", Timestamp: at}}, state.Notices)
	req.Empty(state.Public, "notices are not part of message history")

	// Snapshots replace, they do not merge
	r.Apply(protocol.UserLeft{DisplayName: "bob", Timestamp: at})
	r.Apply(protocol.UsersUpdated{{ConnectionID: "c1", DisplayName: "alice", JoinedAt: at}})
	r.Apply(protocol.Typing{Username: "bob", TypingUsers: []string{}})
	r.Apply(protocol.PrivateTyping{From: "bob"})

	state = r.Snapshot()
	req.Equal([]string{"alice"}, lo.Map(state.Online, func(u protocol.User, _ int) string { return u.DisplayName }))
	req.Empty(state.Typers)
	req.False(state.Threads["bob"].PeerTyping)
	req.Len(state.Notices, 2)
}

func TestReconciler_Snapshot_Is_A_Copy(t *testing.T) {
	req := require.New(t)
	r := newTestReconciler("alice")
	r.Apply(protocol.PublicMessage{Message: wireMessage("m1", "bob", "", "hi")})

	state := r.Snapshot()
	state.Public[0].Reactions["🙃"] = []string{"mallory"}
	state.Public[0].Body = "changed"

	fresh := r.Snapshot()
	req.Empty(fresh.Public[0].Reactions)
	req.Equal("hi", fresh.Public[0].Body)
}
