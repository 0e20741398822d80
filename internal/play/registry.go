// Package play bridges the browser presentation layer to the game
// engine over WebSocket: phase transitions, round data, and score/level
// flow out; discrete input events flow in.
package play

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/mgoretti/cogniplay/internal/engine"
)

// Live is one active gameplay connection: the socket plus the engine
// instance that exclusively owns its session record. The engine pointer
// is guarded: the owning handler goroutine assigns it on a start frame
// while a replacing connection's goroutine may read it.
type Live struct {
	Conn *websocket.Conn

	mu     sync.Mutex
	engine *engine.Engine
}

// Engine returns the engine driving this connection, nil before a
// start frame arrives.
func (l *Live) Engine() *engine.Engine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine
}

// SetEngine installs the engine for this connection.
func (l *Live) SetEngine(e *engine.Engine) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.engine = e
}

// Registry tracks the active gameplay connection per actor and tab.
// Registering a new connection for the same key replaces (and closes)
// the previous one, so a session is never driven from two sockets.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*Live
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]map[string]*Live)}
}

// Get returns the live game for an actor and tab, nil when none.
func (r *Registry) Get(actorID, tabID string) *Live {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tabs, ok := r.active[actorID]; ok {
		return tabs[tabID]
	}
	return nil
}

// Register adds a live game for an actor and tab.
func (r *Registry) Register(actorID, tabID string, live *Live) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[actorID]; !exists {
		r.active[actorID] = make(map[string]*Live)
	}

	if existing, exists := r.active[actorID][tabID]; exists && existing != live {
		// Suspend rather than abandon: the replacing connection may want
		// to resume the same session once the grace period passes.
		if eng := existing.Engine(); eng != nil {
			eng.Suspend(context.Background())
		}
		_ = existing.Conn.Close(websocket.StatusNormalClosure, "connection replaced")
	}

	r.active[actorID][tabID] = live
	slog.Info("Play connection registered", "actor_id", actorID, "tab_id", tabID)
}

// Unregister removes a live game if it is still the registered one.
func (r *Registry) Unregister(actorID, tabID string, live *Live) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tabs, ok := r.active[actorID]; ok {
		if current, exists := tabs[tabID]; exists && current == live {
			delete(tabs, tabID)
			if len(tabs) == 0 {
				delete(r.active, actorID)
			}
			slog.Info("Play connection unregistered", "actor_id", actorID, "tab_id", tabID)
		}
	}
}
