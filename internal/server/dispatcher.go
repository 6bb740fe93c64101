package server

import (
	"github.com/rs/zerolog"

	"github.com/Tyrowin/gochat-presence/internal/chat"
	"github.com/Tyrowin/gochat-presence/internal/protocol"
)

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks . Sink

// Sink accepts encoded frames for one connection. Enqueue must not block; it
// returns false when the frame could not be queued.
type Sink interface {
	Enqueue(frame []byte) bool
}

// Dispatcher fans facts out to the sinks of registered users. It is owned by
// the hub goroutine and is not safe for concurrent use.
type Dispatcher struct {
	registry *chat.Registry
	sinks    map[string]Sink
	log      zerolog.Logger
}

// NewDispatcher resolves targets through registry.
func NewDispatcher(registry *chat.Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		sinks:    make(map[string]Sink),
		log:      log,
	}
}

// Attach binds a connection to its sink.
func (d *Dispatcher) Attach(connectionID string, sink Sink) {
	d.sinks[connectionID] = sink
}

// Detach forgets a connection's sink.
func (d *Dispatcher) Detach(connectionID string) {
	delete(d.sinks, connectionID)
}

// Sink returns the sink attached to connectionID.
func (d *Dispatcher) Sink(connectionID string) (Sink, bool) {
	s, ok := d.sinks[connectionID]
	return s, ok
}

// ToAll delivers fact to every registered user except exclude and returns
// the connections whose sink refused it.
func (d *Dispatcher) ToAll(fact protocol.Fact, exclude string) []string {
	frame, ok := d.encode(fact)
	if !ok {
		return nil
	}

	var failed []string
	for _, user := range d.registry.Snapshot() {
		if user.ConnectionID == exclude {
			continue
		}
		if !d.deliver(user.ConnectionID, frame) {
			failed = append(failed, user.ConnectionID)
		}
	}

	d.log.Debug().
		Str("type", string(protocol.FactType(fact))).
		Str("exclude", exclude).
		Int("failed", len(failed)).
		Msg("broadcast")
	return failed
}

// ToOne delivers fact to a single registered user. It returns false when the
// connection is unknown or its sink refused the frame.
func (d *Dispatcher) ToOne(connectionID string, fact protocol.Fact) bool {
	if _, ok := d.registry.Get(connectionID); !ok {
		return false
	}
	frame, ok := d.encode(fact)
	if !ok {
		return false
	}
	return d.deliver(connectionID, frame)
}

func (d *Dispatcher) deliver(connectionID string, frame []byte) bool {
	sink, ok := d.sinks[connectionID]
	if !ok {
		return false
	}
	return sink.Enqueue(frame)
}

func (d *Dispatcher) encode(fact protocol.Fact) ([]byte, bool) {
	frame, err := protocol.EncodeFact(fact)
	if err != nil {
		d.log.Error().Err(err).Str("type", string(protocol.FactType(fact))).Msg("encode fact")
		return nil, false
	}
	return frame, true
}
