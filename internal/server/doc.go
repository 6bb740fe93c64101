// Package server implements the chat coordinator and its WebSocket transport.
//
// The Hub owns the registry, message store and typing tracker and mutates
// them from a single goroutine. Clients run a read pump that decodes intents
// and a write pump that drains their send channel. The Dispatcher encodes
// facts once and queues them on every target without blocking; connections
// that fall behind are evicted.
package server
