package server

import (
	"github.com/samber/lo"

	"github.com/Tyrowin/gochat-presence/internal/chat"
	"github.com/Tyrowin/gochat-presence/internal/protocol"
)

func (h *Hub) apply(connectionID string, intent protocol.Intent) {
	if join, ok := intent.(protocol.Join); ok {
		h.join(connectionID, join)
		return
	}

	user, ok := h.registry.Get(connectionID)
	if !ok {
		h.log.Debug().Str("conn", connectionID).Str("type", string(protocol.IntentType(intent))).Msg("dropping intent from connection that has not joined")
		return
	}

	switch in := intent.(type) {
	case protocol.SendMessage:
		h.sendPublic(user, in)
	case protocol.SendPrivate:
		h.sendPrivate(user, in)
	case protocol.SetTyping:
		h.setTyping(user, in)
	case protocol.SetPrivateTyping:
		h.setPrivateTyping(user, in)
	case protocol.AddReaction:
		h.react(user, in.ReactionTarget, true)
	case protocol.RemoveReaction:
		h.react(user, in.ReactionTarget, false)
	}
}

func (h *Hub) join(connectionID string, in protocol.Join) {
	if h.cfg.RejectDuplicateNames {
		if holder, taken := h.registry.LookupByName(in.DisplayName); taken && holder != connectionID {
			h.log.Info().Str("conn", connectionID).Str("user", in.DisplayName).Msg("rejecting join with a name already online")
			return
		}
	}

	previous, renamed := h.registry.Get(connectionID)
	renamed = renamed && previous.DisplayName != in.DisplayName

	now := h.clock.Now()
	h.registry.Register(connectionID, in.DisplayName, now)
	if renamed {
		if _, held := h.registry.LookupByName(previous.DisplayName); !held {
			h.clearTyping(previous.DisplayName)
		}
	}
	users := usersFact(h.registry.Snapshot())

	h.toAll(protocol.UserJoined{DisplayName: in.DisplayName, Timestamp: now}, connectionID)
	h.toOne(connectionID, protocol.OnlineUsers(users))
	h.toAll(protocol.UsersUpdated(users), "")
	h.log.Info().Str("conn", connectionID).Str("user", in.DisplayName).Int("online", len(users)).Msg("user joined")
}

func (h *Hub) sendPublic(user chat.User, in protocol.SendMessage) {
	m := h.store.AppendPublic(user.DisplayName, h.censor.Apply(in.Body))
	h.toAll(protocol.PublicMessage{Message: messageFact(m)}, "")
}

func (h *Hub) sendPrivate(user chat.User, in protocol.SendPrivate) {
	m := h.store.AppendPrivate(user.DisplayName, in.To, h.censor.Apply(in.Body), in.LocalID)
	fact := protocol.PrivateMessage{Message: messageFact(m)}

	recipient, online := h.registry.LookupByName(in.To)
	if online {
		h.toOne(recipient, fact)
	} else {
		h.log.Debug().Str("from", user.DisplayName).Str("to", in.To).Msg("private message stored for offline recipient")
	}
	if h.cfg.EchoPrivateToSender && recipient != user.ConnectionID {
		h.toOne(user.ConnectionID, fact)
	}
}

func (h *Hub) setTyping(user chat.User, in protocol.SetTyping) {
	typers := h.typing.SetPublic(user.DisplayName, user.ConnectionID, in.IsTyping)
	h.toAll(typingFact(user.DisplayName, in.IsTyping, typers), user.ConnectionID)
}

func (h *Hub) setPrivateTyping(user chat.User, in protocol.SetPrivateTyping) {
	h.typing.SetPrivate(user.DisplayName, in.To, in.IsTyping)
	if listener, ok := h.registry.LookupByName(in.To); ok {
		h.toOne(listener, protocol.PrivateTyping{From: user.DisplayName, IsTyping: in.IsTyping})
	}
}

// react adds or removes the actor's reaction. Adding always reports the
// current map once the message is found; removing reports only when the
// emoji was present.
func (h *Hub) react(user chat.User, target protocol.ReactionTarget, add bool) {
	var (
		m  *chat.Message
		ok bool
	)
	if target.IsPrivate {
		m, ok = h.store.FindPrivate(user.DisplayName, target.ChatUser, target.MessageID)
	} else {
		m, ok = h.store.FindPublic(target.MessageID)
	}
	if !ok {
		h.log.Debug().Str("user", user.DisplayName).Str("message", target.MessageID).Bool("private", target.IsPrivate).Msg("reaction to unknown message")
		return
	}

	if add {
		m.Reactions.Add(target.Emoji, user.DisplayName)
	} else {
		if _, present := m.Reactions[target.Emoji]; !present {
			return
		}
		m.Reactions.Remove(target.Emoji, user.DisplayName)
	}

	if !target.IsPrivate {
		h.toAll(protocol.MessageReaction{
			MessageID: m.ID,
			Reactions: m.Reactions.Clone(),
			From:      m.From,
			To:        m.To,
		}, "")
		return
	}

	fact := protocol.MessageReaction{
		MessageID: m.ID,
		Reactions: m.Reactions.Clone(),
		IsPrivate: true,
		From:      user.DisplayName,
		To:        target.ChatUser,
		LocalID:   m.LocalID,
	}
	h.toOne(user.ConnectionID, fact)
	if peer, online := h.registry.LookupByName(target.ChatUser); online && peer != user.ConnectionID {
		h.toOne(peer, fact)
	}
}

func messageFact(m chat.Message) protocol.Message {
	return protocol.Message{
		ID:        m.ID,
		From:      m.From,
		To:        m.To,
		Body:      m.Body,
		Timestamp: m.CreatedAt,
		Reactions: m.Reactions.Clone(),
		LocalID:   m.LocalID,
	}
}

func usersFact(users []chat.User) []protocol.User {
	return lo.Map(users, func(u chat.User, _ int) protocol.User {
		return protocol.User{
			ConnectionID: u.ConnectionID,
			DisplayName:  u.DisplayName,
			JoinedAt:     u.JoinedAt,
		}
	})
}

func typingFact(name string, typing bool, typers []string) protocol.Typing {
	if typers == nil {
		typers = []string{}
	}
	return protocol.Typing{Username: name, IsTyping: typing, TypingUsers: typers}
}
