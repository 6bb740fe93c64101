package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/gochat-presence/internal/chat"
	"github.com/Tyrowin/gochat-presence/internal/moderation"
	"github.com/Tyrowin/gochat-presence/internal/protocol"
)

const expiredBuffer = 64

type inbound struct {
	connectionID string
	intent       protocol.Intent
}

// Hub owns every piece of chat state. All mutations happen on the goroutine
// running Run, one event at a time, so the stores need no locks.
type Hub struct {
	cfg      Config
	clock    chat.Clock
	registry *chat.Registry
	store    *chat.Store
	typing   *chat.TypingTracker
	dispatch *Dispatcher
	censor   *moderation.Censor
	log      zerolog.Logger

	clients map[string]*Client
	// failed collects connections whose sink refused a frame while the
	// current event was handled.
	failed []string

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	expired    chan chat.Expiry

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// HubOption customizes a Hub.
type HubOption func(*hubOptions)

type hubOptions struct {
	clock chat.Clock
	newID func() string
}

// WithClock replaces the wall clock used for timestamps and typing timers.
func WithClock(c chat.Clock) HubOption {
	return func(o *hubOptions) { o.clock = c }
}

// WithIDGenerator replaces the message id generator.
func WithIDGenerator(f func() string) HubOption {
	return func(o *hubOptions) { o.newID = f }
}

// NewHub builds a hub for cfg. It fails only when the censor word list
// cannot be compiled.
func NewHub(cfg Config, log zerolog.Logger, opts ...HubOption) (*Hub, error) {
	o := hubOptions{clock: chat.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	var censor *moderation.Censor
	if len(cfg.CensoredWords) > 0 {
		c, err := moderation.NewCensor(cfg.CensoredWords, cfg.CensorRune())
		if err != nil {
			return nil, err
		}
		censor = c
	}

	storeOpts := []chat.StoreOption{chat.WithClock(o.clock)}
	if o.newID != nil {
		storeOpts = append(storeOpts, chat.WithIDGenerator(o.newID))
	}

	ctx, cancel := context.WithCancel(context.Background())
	registry := chat.NewRegistry()
	h := &Hub{
		cfg:        cfg,
		clock:      o.clock,
		registry:   registry,
		store:      chat.NewStore(storeOpts...),
		dispatch:   NewDispatcher(registry, log.With().Str("component", "dispatcher").Logger()),
		censor:     censor,
		log:        log,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		expired:    make(chan chat.Expiry, expiredBuffer),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.typing = chat.NewTypingTracker(cfg.TypingTimeout, o.clock, h.postExpiry)
	return h, nil
}

// Registry exposes the online list for lock-free snapshot reads.
func (h *Hub) Registry() *chat.Registry {
	return h.registry
}

// Run starts the hub's main event loop. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.typing.Stop()
			h.shutdownClients()
			return

		case client := <-h.register:
			h.clients[client.id] = client
			h.attach(client.id, client)
			h.log.Info().Str("conn", client.id).Str("addr", client.addr).Int("clients", len(h.clients)).Msg("client registered")

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			if h.clients[client.id] != client {
				continue
			}
			h.detach(client.id)
			h.log.Info().Str("conn", client.id).Str("addr", client.addr).Int("clients", len(h.clients)).Msg("client unregistered")

		case in := <-h.inbound:
			h.handle(in.connectionID, in.intent)

		case e := <-h.expired:
			h.expire(e)
		}
	}
}

// submit hands an intent to the hub. It returns false once the hub stopped.
func (h *Hub) submit(connectionID string, intent protocol.Intent) bool {
	select {
	case h.inbound <- inbound{connectionID: connectionID, intent: intent}:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) enter(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// postExpiry runs on a timer goroutine.
func (h *Hub) postExpiry(e chat.Expiry) {
	select {
	case h.expired <- e:
	case <-h.ctx.Done():
	}
}

// attach makes a connection reachable. It is not online until it joins.
func (h *Hub) attach(connectionID string, sink Sink) {
	h.dispatch.Attach(connectionID, sink)
}

// handle applies one intent and evicts connections that could not keep up.
func (h *Hub) handle(connectionID string, intent protocol.Intent) {
	h.apply(connectionID, intent)
	h.settle()
}

// detach removes a connection and tells everybody it left.
func (h *Hub) detach(connectionID string) {
	h.disconnect(connectionID)
	h.settle()
}

// expire applies a fired typing timer.
func (h *Hub) expire(e chat.Expiry) {
	h.applyExpiry(e)
	h.settle()
}

func (h *Hub) settle() {
	for len(h.failed) > 0 {
		id := h.failed[0]
		h.failed = h.failed[1:]
		if _, ok := h.dispatch.Sink(id); !ok {
			continue
		}
		h.log.Warn().Str("conn", id).Msg("client removed due to full send buffer")
		h.disconnect(id)
	}
}

func (h *Hub) disconnect(connectionID string) {
	h.dispatch.Detach(connectionID)
	if c, ok := h.clients[connectionID]; ok {
		delete(h.clients, connectionID)
		c.closeSend()
	}

	user, ok := h.registry.Unregister(connectionID)
	if !ok {
		return
	}

	if _, stillOnline := h.registry.LookupByName(user.DisplayName); !stillOnline {
		h.clearTyping(user.DisplayName)
	}

	h.toAll(protocol.UserLeft{DisplayName: user.DisplayName, Timestamp: h.clock.Now()}, "")
	h.toAll(protocol.UsersUpdated(usersFact(h.registry.Snapshot())), "")
	h.log.Info().Str("conn", connectionID).Str("user", user.DisplayName).Msg("user left")
}

// clearTyping drops every indicator name holds and tells the observers.
func (h *Hub) clearTyping(name string) {
	cleared := h.typing.ClearUser(name)
	if cleared.Public {
		h.toAll(typingFact(name, false, h.typing.Typers()), "")
	}
	for _, listener := range cleared.Listeners {
		if conn, ok := h.registry.LookupByName(listener); ok {
			h.toOne(conn, protocol.PrivateTyping{From: name, IsTyping: false})
		}
	}
}

func (h *Hub) applyExpiry(e chat.Expiry) {
	speaker := e.Key.Speaker
	exclude := h.typing.PublicConnection(speaker)
	if !h.typing.Expire(e) {
		return
	}

	h.log.Debug().Str("user", speaker).Str("listener", e.Key.Listener).Msg("typing expired")
	if e.Key.IsPublic() {
		h.toAll(typingFact(speaker, false, h.typing.Typers()), exclude)
		return
	}
	if conn, ok := h.registry.LookupByName(e.Key.Listener); ok {
		h.toOne(conn, protocol.PrivateTyping{From: speaker, IsTyping: false})
	}
}

func (h *Hub) toAll(fact protocol.Fact, exclude string) {
	h.failed = append(h.failed, h.dispatch.ToAll(fact, exclude)...)
}

func (h *Hub) toOne(connectionID string, fact protocol.Fact) {
	if h.dispatch.ToOne(connectionID, fact) {
		return
	}
	if _, ok := h.registry.Get(connectionID); ok {
		h.failed = append(h.failed, connectionID)
	}
}

// shutdownClients closes every live connection; their pumps then exit.
func (h *Hub) shutdownClients() {
	h.log.Info().Int("clients", len(h.clients)).Msg("shutting down client connections")

	for id, client := range h.clients {
		delete(h.clients, id)
		client.closeSend()
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Error().Err(err).Str("addr", client.addr).Msg("close client connection")
		}
	}
}

// Shutdown stops the hub and waits for all client goroutines to complete,
// or until timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
