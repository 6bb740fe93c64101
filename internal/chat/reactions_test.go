package chat

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReactions_Add_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	reactions := Reactions{}

	req.True(reactions.Add("👍", "alice"))
	req.False(reactions.Add("👍", "alice"))

	req.Equal(Reactions{"👍": {"alice"}}, reactions)
}

func TestReactions_Add_Keeps_Reaction_Order(t *testing.T) {
	reactions := Reactions{}
	reactions.Add("👍", "bob")
	reactions.Add("👍", "alice")
	reactions.Add("🎉", "alice")

	require.Equal(t, Reactions{"👍": {"bob", "alice"}, "🎉": {"alice"}}, reactions)
}

func TestReactions_Remove(t *testing.T) {
	tests := []struct {
		name     string
		start    Reactions
		emoji    string
		actor    string
		changed  bool
		expected Reactions
	}{
		{
			name:     "last actor deletes the emoji",
			start:    Reactions{"👍": {"alice"}},
			emoji:    "👍",
			actor:    "alice",
			changed:  true,
			expected: Reactions{},
		},
		{
			name:     "other actors stay",
			start:    Reactions{"👍": {"alice", "bob"}},
			emoji:    "👍",
			actor:    "alice",
			changed:  true,
			expected: Reactions{"👍": {"bob"}},
		},
		{
			name:     "absent actor is a no-op",
			start:    Reactions{"👍": {"bob"}},
			emoji:    "👍",
			actor:    "alice",
			changed:  false,
			expected: Reactions{"👍": {"bob"}},
		},
		{
			name:     "absent emoji is a no-op",
			start:    Reactions{"👍": {"bob"}},
			emoji:    "🎉",
			actor:    "bob",
			changed:  false,
			expected: Reactions{"👍": {"bob"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			reactions := tt.start.Clone()
			req.Equal(tt.changed, reactions.Remove(tt.emoji, tt.actor))
			req.Equal(tt.expected, reactions)
		})
	}
}

// TestReactions_Never_Hold_Empty_Sets applies random add/remove sequences
// and checks the map invariants after every step.
func TestReactions_Never_Hold_Empty_Sets(t *testing.T) {
	req := require.New(t)
	rng := rand.New(rand.NewPCG(1, 2))
	emojis := []string{"👍", "🎉", "❤️"}
	actors := []string{"alice", "bob", "carol"}
	reactions := Reactions{}

	for range 2000 {
		emoji := emojis[rng.IntN(len(emojis))]
		actor := actors[rng.IntN(len(actors))]
		if rng.IntN(2) == 0 {
			reactions.Add(emoji, actor)
		} else {
			reactions.Remove(emoji, actor)
		}

		for e, names := range reactions {
			req.NotEmpty(names, "emoji %s kept an empty set", e)
			seen := map[string]bool{}
			for _, n := range names {
				req.False(seen[n], "actor %s listed twice under %s", n, e)
				seen[n] = true
			}
		}
	}
}

func TestReactions_Clone(t *testing.T) {
	req := require.New(t)
	var nilReactions Reactions
	req.NotNil(nilReactions.Clone())

	original := Reactions{"👍": {"alice"}}
	clone := original.Clone()
	clone.Add("👍", "bob")
	req.Equal(Reactions{"👍": {"alice"}}, original)
}
