// Package chatclient connects to the chat server over WebSocket and keeps a
// reconciled view of the room and the user's private threads.
package chatclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/gochat-presence/internal/chat"
	"github.com/Tyrowin/gochat-presence/internal/protocol"
	"github.com/Tyrowin/gochat-presence/internal/view"
)

const (
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	updatesBuffer    = 64
)

// ErrNotJoined is returned by senders that need a display name first.
var ErrNotJoined = errors.New("join before sending")

type options struct {
	origin  string
	clock   chat.Clock
	idle    time.Duration
	log     zerolog.Logger
	viewOpt []view.Option
}

// Option customizes Dial.
type Option func(*options)

// WithOrigin sets the Origin header sent with the handshake.
func WithOrigin(origin string) Option {
	return func(o *options) { o.origin = origin }
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithClock replaces the clock driving the typing debouncer.
func WithClock(clock chat.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithTypingIdle sets how long a typing session survives without a keystroke.
func WithTypingIdle(d time.Duration) Option {
	return func(o *options) { o.idle = d }
}

// WithViewOptions passes options to the reconciler.
func WithViewOptions(opts ...view.Option) Option {
	return func(o *options) { o.viewOpt = append(o.viewOpt, opts...) }
}

// Client is one chat connection. Senders may be called from any goroutine
// while Run reads facts into the view.
type Client struct {
	conn    *websocket.Conn
	view    *view.Reconciler
	typist  *Typist
	updates chan protocol.Fact
	log     zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial opens a connection to the server's WebSocket endpoint.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := options{
		clock: chat.RealClock{},
		idle:  DefaultTypingIdle,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	header := http.Header{}
	if o.origin != "" {
		header.Set("Origin", o.origin)
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:    conn,
		view:    view.New("", o.viewOpt...),
		updates: make(chan protocol.Fact, updatesBuffer),
		log:     o.log,
	}
	c.typist = NewTypist(o.clock, o.idle, c.notifyTyping)
	return c, nil
}

// View returns the reconciler holding the client's state.
func (c *Client) View() *view.Reconciler { return c.view }

// Updates delivers each fact after it has been applied to the view. Facts
// are dropped from this channel when the reader falls behind; the view
// itself is always complete. The channel is closed when Run returns.
func (c *Client) Updates() <-chan protocol.Fact { return c.updates }

// Run reads facts until the connection closes or ctx is done. A close
// caused by ctx or by Close is not an error.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.updates)

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		c.consume(data)
	}
}

func (c *Client) consume(data []byte) {
	for _, frame := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(frame)) == 0 {
			continue
		}
		fact, err := protocol.DecodeFact(frame)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping undecodable frame")
			continue
		}
		if !c.view.Apply(fact) {
			c.log.Debug().Str("type", string(protocol.FactType(fact))).Msg("fact did not change the view")
			continue
		}
		select {
		case c.updates <- fact:
		default:
		}
	}
}

// Join claims a display name.
func (c *Client) Join(name string) error {
	intent := protocol.Join{DisplayName: strings.TrimSpace(name)}
	if err := protocol.ValidateIntent(intent); err != nil {
		return err
	}
	c.view.SetSelf(intent.DisplayName)
	return c.send(intent)
}

// Send posts body to the public room and ends the public typing session.
func (c *Client) Send(body string) error {
	if err := c.joined(); err != nil {
		return err
	}
	c.typist.Stop(PublicScope)
	return c.send(protocol.SendMessage{Body: body})
}

// SendPrivate posts body to the thread with peer. The message shows up in
// the view immediately and is replaced once the server's copy arrives.
func (c *Client) SendPrivate(peer, body string) (view.Message, error) {
	if err := c.joined(); err != nil {
		return view.Message{}, err
	}
	peer = strings.TrimSpace(peer)
	intent := protocol.SendPrivate{To: peer, Body: body}
	if err := protocol.ValidateIntent(intent); err != nil {
		return view.Message{}, err
	}

	c.typist.Stop(peer)
	m := c.view.SendPrivate(peer, body)
	intent.LocalID = m.LocalID
	return m, c.send(intent)
}

// StartTyping reports a keystroke in scope: PublicScope or a peer name.
// Calls extend the session; the indicator is re-sent every half idle period
// while they keep coming.
func (c *Client) StartTyping(scope string) error {
	if err := c.joined(); err != nil {
		return err
	}
	c.typist.Keystroke(strings.TrimSpace(scope))
	return nil
}

// StopTyping ends the typing session in scope, if one is running.
func (c *Client) StopTyping(scope string) {
	c.typist.Stop(strings.TrimSpace(scope))
}

// AddReaction reacts to a message. chatUser is empty for public messages
// and names the peer of the thread otherwise.
func (c *Client) AddReaction(messageID, emoji, chatUser string) error {
	return c.send(protocol.AddReaction{ReactionTarget: target(messageID, emoji, chatUser)})
}

// RemoveReaction withdraws a reaction added with AddReaction.
func (c *Client) RemoveReaction(messageID, emoji, chatUser string) error {
	return c.send(protocol.RemoveReaction{ReactionTarget: target(messageID, emoji, chatUser)})
}

// Close stops typing timers and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.typist.Close()

		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

func (c *Client) notifyTyping(scope string, typing bool) {
	var intent protocol.Intent = protocol.SetTyping{IsTyping: typing}
	if scope != PublicScope {
		intent = protocol.SetPrivateTyping{To: scope, IsTyping: typing}
	}
	if err := c.send(intent); err != nil {
		c.log.Warn().Err(err).Str("scope", scope).Bool("typing", typing).Msg("failed to send typing state")
	}
}

func (c *Client) joined() error {
	if c.view.Self() == "" {
		return ErrNotJoined
	}
	return nil
}

func (c *Client) send(intent protocol.Intent) error {
	if err := protocol.ValidateIntent(intent); err != nil {
		return err
	}
	frame, err := protocol.EncodeIntent(intent)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write %s: %w", protocol.IntentType(intent), err)
	}
	return nil
}

func target(messageID, emoji, chatUser string) protocol.ReactionTarget {
	chatUser = strings.TrimSpace(chatUser)
	return protocol.ReactionTarget{
		MessageID: messageID,
		Emoji:     emoji,
		IsPrivate: chatUser != "",
		ChatUser:  chatUser,
	}
}
