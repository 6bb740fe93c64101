package chat

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// Message is a stored chat message. To is empty for public messages.
type Message struct {
	ID        string
	From      string
	To        string
	Body      string
	CreatedAt time.Time
	Reactions Reactions
	// LocalID is the id the sender used for its optimistic copy, if any.
	LocalID string
}

// IsPrivate reports whether the message belongs to a private thread.
func (m Message) IsPrivate() bool {
	return m.To != ""
}

// Clone returns a copy whose reaction map is not shared.
func (m Message) Clone() Message {
	m.Reactions = m.Reactions.Clone()
	return m
}

// Reactions maps an emoji to the names that reacted with it. Names keep the
// order in which they reacted. An emoji never maps to an empty list.
type Reactions map[string][]string

// Add records actor under emoji. Adding twice has no further effect.
func (r Reactions) Add(emoji, actor string) bool {
	if lo.Contains(r[emoji], actor) {
		return false
	}
	r[emoji] = append(r[emoji], actor)
	return true
}

// Remove drops actor from emoji and deletes the emoji once nobody is left.
func (r Reactions) Remove(emoji, actor string) bool {
	names, ok := r[emoji]
	if !ok || !lo.Contains(names, actor) {
		return false
	}

	names = lo.Without(names, actor)
	if len(names) == 0 {
		delete(r, emoji)
	} else {
		r[emoji] = names
	}
	return true
}

// Clone returns a deep copy. The result is never nil so it encodes as {}.
func (r Reactions) Clone() Reactions {
	out := make(Reactions, len(r))
	for emoji, names := range r {
		out[emoji] = slices.Clone(names)
	}
	return out
}
