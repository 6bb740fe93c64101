package protocol

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeIntent_Valid(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Intent
	}{
		{
			name:     "join trims the display name",
			raw:      `{"type":"join","data":{"displayName":"  alice "}}`,
			expected: Join{DisplayName: "alice"},
		},
		{
			name:     "public message",
			raw:      `{"type":"message","data":{"body":"hi"}}`,
			expected: SendMessage{Body: "hi"},
		},
		{
			name:     "private message with local id",
			raw:      `{"type":"private-message","data":{"to":"alice","body":"hey","localId":"l-1"}}`,
			expected: SendPrivate{To: "alice", Body: "hey", LocalID: "l-1"},
		},
		{
			name:     "typing",
			raw:      `{"type":"typing","data":{"isTyping":true}}`,
			expected: SetTyping{IsTyping: true},
		},
		{
			name:     "private typing",
			raw:      `{"type":"private-typing","data":{"to":"bob","isTyping":false}}`,
			expected: SetPrivateTyping{To: "bob"},
		},
		{
			name: "private reaction",
			raw:  `{"type":"add-reaction","data":{"messageId":"m1","emoji":"👍","isPrivate":true,"chatUser":"bob"}}`,
			expected: AddReaction{ReactionTarget{
				MessageID: "m1", Emoji: "👍", IsPrivate: true, ChatUser: "bob",
			}},
		},
		{
			name: "public reaction drops chat user",
			raw:  `{"type":"remove-reaction","data":{"messageId":"m1","emoji":"👍","isPrivate":false,"chatUser":"bob"}}`,
			expected: RemoveReaction{ReactionTarget{
				MessageID: "m1", Emoji: "👍",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			intent, err := DecodeIntent([]byte(tt.raw))
			req.NoError(err)
			req.Equal(tt.expected, intent)
		})
	}
}

func TestDecodeIntent_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		err  error
	}{
		{"not json", `hello`, ErrMalformed},
		{"unknown type", `{"type":"shout","data":{}}`, ErrUnknownEvent},
		{"fact type sent as intent", `{"type":"user-joined","data":{}}`, ErrUnknownEvent},
		{"missing data", `{"type":"message"}`, ErrMalformed},
		{"unknown envelope field", `{"type":"message","data":{"body":"x"},"extra":1}`, ErrMalformed},
		{"unknown payload field", `{"type":"message","data":{"body":"x","html":true}}`, ErrMalformed},
		{"blank body", `{"type":"message","data":{"body":"   "}}`, ErrMalformed},
		{"blank name", `{"type":"join","data":{"displayName":" "}}`, ErrMalformed},
		{"long name", `{"type":"join","data":{"displayName":"` + strings.Repeat("x", 65) + `"}}`, ErrMalformed},
		{"long body", `{"type":"message","data":{"body":"` + strings.Repeat("x", 4097) + `"}}`, ErrMalformed},
		{"private message without recipient", `{"type":"private-message","data":{"body":"x"}}`, ErrMalformed},
		{"private typing without recipient", `{"type":"private-typing","data":{"isTyping":true}}`, ErrMalformed},
		{"private reaction without chat user", `{"type":"add-reaction","data":{"messageId":"m1","emoji":"👍","isPrivate":true}}`, ErrMalformed},
		{"reaction without emoji", `{"type":"add-reaction","data":{"messageId":"m1","emoji":""}}`, ErrMalformed},
		{"wrong field type", `{"type":"typing","data":{"isTyping":"yes"}}`, ErrMalformed},
		{"trailing data", `{"type":"message","data":{"body":"x"}} {}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			intent, err := DecodeIntent([]byte(tt.raw))
			req.ErrorIs(err, tt.err)
			req.Nil(intent)
		})
	}
}

func TestEncodeIntent_Round_Trips_Through_DecodeIntent(t *testing.T) {
	req := require.New(t)
	intents := []Intent{
		Join{DisplayName: "alice"},
		SendPrivate{To: "bob", Body: "hey", LocalID: "l-1"},
		AddReaction{ReactionTarget{MessageID: "m1", Emoji: "🎉"}},
	}

	for _, in := range intents {
		raw, err := EncodeIntent(in)
		req.NoError(err)
		out, err := DecodeIntent(raw)
		req.NoError(err)
		req.Equal(in, out)
	}
}

func TestEncodeFact_Wire_Format(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		fact     Fact
		expected string
	}{
		{
			name: "public message has no recipient and an empty reaction object",
			fact: PublicMessage{Message{
				ID: "m1", From: "alice", Body: "hi", Timestamp: at,
				Reactions: map[string][]string{},
			}},
			expected: `{"type":"message","data":{"id":"m1","from":"alice","body":"hi","timestamp":"2024-01-01T12:00:00Z","reactions":{}}}`,
		},
		{
			name:     "reaction update",
			fact:     MessageReaction{MessageID: "m1", Reactions: map[string][]string{"👍": {"alice"}}, IsPrivate: true, From: "alice", To: "bob"},
			expected: `{"type":"message-reaction","data":{"messageId":"m1","reactions":{"👍":["alice"]},"isPrivate":true,"from":"alice","to":"bob"}}`,
		},
		{
			name:     "online snapshot is an array",
			fact:     OnlineUsers{{ConnectionID: "c1", DisplayName: "alice", JoinedAt: at}},
			expected: `{"type":"online-users","data":[{"connectionId":"c1","displayName":"alice","joinedAt":"2024-01-01T12:00:00Z"}]}`,
		},
		{
			name:     "typing",
			fact:     Typing{Username: "bob", IsTyping: true, TypingUsers: []string{"bob"}},
			expected: `{"type":"typing","data":{"username":"bob","isTyping":true,"typingUsers":["bob"]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			raw, err := EncodeFact(tt.fact)
			req.NoError(err)
			req.JSONEq(tt.expected, string(raw))
		})
	}
}

func TestDecodeFact(t *testing.T) {
	req := require.New(t)
	raw := `{"type":"private-message","data":{"id":"m2","from":"bob","to":"alice","body":"hey","timestamp":"2024-01-01T12:00:00Z","reactions":{}}}`

	fact, err := DecodeFact([]byte(raw))
	req.NoError(err)
	pm, ok := fact.(PrivateMessage)
	req.True(ok)
	req.Equal("bob", pm.From)
	req.Equal("alice", pm.To)
	req.Equal(TypePrivateMessage, FactType(fact))

	_, err = DecodeFact([]byte(`{"type":"join","data":{}}`))
	req.ErrorIs(err, ErrUnknownEvent)
}

func TestValidateIntent(t *testing.T) {
	req := require.New(t)

	req.NoError(ValidateIntent(SendMessage{Body: "hi"}))
	req.NoError(ValidateIntent(AddReaction{ReactionTarget{MessageID: "m1", Emoji: "👍"}}))

	req.ErrorIs(ValidateIntent(SendMessage{Body: "   "}), ErrMalformed)
	req.ErrorIs(ValidateIntent(Join{DisplayName: strings.Repeat("a", 65)}), ErrMalformed)
	req.ErrorIs(ValidateIntent(AddReaction{ReactionTarget{MessageID: "m1", Emoji: "👍", IsPrivate: true}}), ErrMalformed)
}
