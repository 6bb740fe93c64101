// Package protocol defines the events exchanged between the chat coordinator
// and its clients. Client requests are intents; server notifications are
// facts. Both travel in a {"type", "data"} envelope.
package protocol

import "time"

// EventType is the envelope discriminator.
type EventType string

// Client to server.
const (
	TypeJoin           EventType = "join"
	TypeMessage        EventType = "message"
	TypePrivateMessage EventType = "private-message"
	TypeTyping         EventType = "typing"
	TypePrivateTyping  EventType = "private-typing"
	TypeAddReaction    EventType = "add-reaction"
	TypeRemoveReaction EventType = "remove-reaction"
)

// Server to client. message, private-message, typing and private-typing
// reuse the intent names above.
const (
	TypeUserJoined      EventType = "user-joined"
	TypeUserLeft        EventType = "user-left"
	TypeOnlineUsers     EventType = "online-users"
	TypeUsersUpdated    EventType = "users-updated"
	TypeMessageReaction EventType = "message-reaction"
)

// Intent is a client request. The set of implementations is closed.
type Intent interface {
	intentType() EventType
}

// Fact is a server notification. The set of implementations is closed.
type Fact interface {
	factType() EventType
}

// Join claims a display name for the connection.
type Join struct {
	DisplayName string `json:"displayName" validate:"notblank,max=64"`
}

// SendMessage posts to the public room.
type SendMessage struct {
	Body string `json:"body" validate:"notblank,max=4096"`
}

// SendPrivate posts to the thread shared with To. LocalID is the id of the
// sender's optimistic copy and is echoed back on the stored message.
type SendPrivate struct {
	To      string `json:"to" validate:"notblank,max=64"`
	Body    string `json:"body" validate:"notblank,max=4096"`
	LocalID string `json:"localId,omitempty" validate:"max=64"`
}

// SetTyping toggles the sender's public typing indicator.
type SetTyping struct {
	IsTyping bool `json:"isTyping"`
}

// SetPrivateTyping toggles the sender's typing indicator towards To.
type SetPrivateTyping struct {
	To       string `json:"to" validate:"notblank,max=64"`
	IsTyping bool   `json:"isTyping"`
}

// ReactionTarget names a message and an emoji. Private messages are found
// through the thread shared with ChatUser.
type ReactionTarget struct {
	MessageID string `json:"messageId" validate:"notblank,max=64"`
	Emoji     string `json:"emoji" validate:"notblank,max=32"`
	IsPrivate bool   `json:"isPrivate"`
	ChatUser  string `json:"chatUser,omitempty" validate:"required_if=IsPrivate true,max=64"`
}

// AddReaction adds the sender's reaction.
type AddReaction struct {
	ReactionTarget
}

// RemoveReaction removes the sender's reaction.
type RemoveReaction struct {
	ReactionTarget
}

func (Join) intentType() EventType             { return TypeJoin }
func (SendMessage) intentType() EventType      { return TypeMessage }
func (SendPrivate) intentType() EventType      { return TypePrivateMessage }
func (SetTyping) intentType() EventType        { return TypeTyping }
func (SetPrivateTyping) intentType() EventType { return TypePrivateTyping }
func (AddReaction) intentType() EventType      { return TypeAddReaction }
func (RemoveReaction) intentType() EventType   { return TypeRemoveReaction }

// User is an entry of the online list.
type User struct {
	ConnectionID string    `json:"connectionId"`
	DisplayName  string    `json:"displayName"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Message is a stored chat message as seen by clients.
type Message struct {
	ID        string              `json:"id"`
	From      string              `json:"from"`
	To        string              `json:"to,omitempty"`
	Body      string              `json:"body"`
	Timestamp time.Time           `json:"timestamp"`
	Reactions map[string][]string `json:"reactions"`
	LocalID   string              `json:"localId,omitempty"`
}

// UserJoined announces a new user to everybody else.
type UserJoined struct {
	DisplayName string    `json:"displayName"`
	Timestamp   time.Time `json:"timestamp"`
}

// UserLeft announces a departure.
type UserLeft struct {
	DisplayName string    `json:"displayName"`
	Timestamp   time.Time `json:"timestamp"`
}

// OnlineUsers is the snapshot sent to a user right after joining.
type OnlineUsers []User

// UsersUpdated is the snapshot broadcast after every join and leave.
type UsersUpdated []User

// PublicMessage carries a message posted to the room.
type PublicMessage struct {
	Message
}

// PrivateMessage carries a message from a private thread.
type PrivateMessage struct {
	Message
}

// MessageReaction carries the complete reaction map of one message. LocalID
// is set for private messages whose sender attached one, so the sender can
// find its optimistic copy.
type MessageReaction struct {
	MessageID string              `json:"messageId"`
	Reactions map[string][]string `json:"reactions"`
	IsPrivate bool                `json:"isPrivate"`
	From      string              `json:"from"`
	To        string              `json:"to,omitempty"`
	LocalID   string              `json:"localId,omitempty"`
}

// Typing carries the public typer set after Username changed state.
type Typing struct {
	Username    string   `json:"username"`
	IsTyping    bool     `json:"isTyping"`
	TypingUsers []string `json:"typingUsers"`
}

// PrivateTyping tells the listener whether From is typing to them.
type PrivateTyping struct {
	From     string `json:"from"`
	IsTyping bool   `json:"isTyping"`
}

func (UserJoined) factType() EventType      { return TypeUserJoined }
func (UserLeft) factType() EventType        { return TypeUserLeft }
func (OnlineUsers) factType() EventType     { return TypeOnlineUsers }
func (UsersUpdated) factType() EventType    { return TypeUsersUpdated }
func (PublicMessage) factType() EventType   { return TypeMessage }
func (PrivateMessage) factType() EventType  { return TypePrivateMessage }
func (MessageReaction) factType() EventType { return TypeMessageReaction }
func (Typing) factType() EventType          { return TypeTyping }
func (PrivateTyping) factType() EventType   { return TypePrivateTyping }

// IntentType returns the envelope type of an intent.
func IntentType(i Intent) EventType { return i.intentType() }

// FactType returns the envelope type of a fact.
func FactType(f Fact) EventType { return f.factType() }
