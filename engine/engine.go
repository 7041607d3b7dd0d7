// Package engine holds the process-wide table of pointers resolved while
// the host loads its modules.
//
// The table is filled by one writer, one phase per module, and read by any
// number of host threads. Each phase record is built completely and then
// published by value exactly once. Readers of a phase block until it is
// published; afterwards reads take no locks.
package engine

import (
	"errors"
	"sync"
	"sync/atomic"

	"enginehook/iface"
	"enginehook/nativemem"
)

// MaxPlayers is the capacity of the host's client array.
const MaxPlayers = 32

var ErrAlreadyPublished = errors.New("phase already published")

// State is the lifecycle of the table.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	}
	return "uninitialized"
}

// EngineData is resolved while the engine module loads.
type EngineData struct {
	Base             uintptr
	Server           uintptr
	GameClients      uintptr
	CreateFakeClient uintptr
	Clients          nativemem.ClientArray

	// EngineServer is valid when HasEngineServer is set.
	EngineServer    iface.Handle
	HasEngineServer bool
}

// ServerData is resolved while the server module loads.
type ServerData struct {
	Base                 uintptr
	ClientFullyConnected uintptr
	RunNullCommand       uintptr
	PlayerByIndex        uintptr
}

// ClientData is resolved while the client module loads.
type ClientData struct {
	Base uintptr
}

// MaterialSystemData is resolved while the material system loads.
type MaterialSystemData struct {
	Base        uintptr
	TextureFunc uintptr
}

type phase[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	ok    bool
}

func newPhase[T any]() *phase[T] {
	return &phase[T]{done: make(chan struct{})}
}

func (p *phase[T]) publish(v T, ok bool) error {
	published := false
	p.once.Do(func() {
		p.value = v
		p.ok = ok
		published = true
		close(p.done)
	})
	if !published {
		return ErrAlreadyPublished
	}
	return nil
}

func (p *phase[T]) wait() (T, bool) {
	<-p.done
	return p.value, p.ok
}

func (p *phase[T]) peek() (T, bool) {
	select {
	case <-p.done:
		return p.value, p.ok
	default:
		var zero T
		return zero, false
	}
}

func (p *phase[T]) fired() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Table is the engine data table.
type Table struct {
	state  atomic.Int32
	engine *phase[EngineData]
	server *phase[ServerData]
	client *phase[ClientData]
	matsys *phase[MaterialSystemData]
}

// New returns an empty, uninitialized Table
func New() *Table {
	return &Table{
		engine: newPhase[EngineData](),
		server: newPhase[ServerData](),
		client: newPhase[ClientData](),
		matsys: newPhase[MaterialSystemData](),
	}
}

// State reports the table lifecycle.
func (t *Table) State() State {
	return State(t.state.Load())
}

// BeginInit moves an uninitialized table to Initializing.
func (t *Table) BeginInit() {
	t.state.CompareAndSwap(int32(Uninitialized), int32(Initializing))
}

func (t *Table) settle() {
	t.BeginInit()
	if t.engine.fired() && t.server.fired() && t.client.fired() && t.matsys.fired() {
		t.state.Store(int32(Ready))
	}
}

// PublishEngine publishes the engine phase. ok=false marks it unavailable.
func (t *Table) PublishEngine(d EngineData, ok bool) error {
	defer t.settle()
	return t.engine.publish(d, ok)
}

// PublishServer publishes the server phase. ok=false marks it unavailable.
func (t *Table) PublishServer(d ServerData, ok bool) error {
	defer t.settle()
	return t.server.publish(d, ok)
}

// PublishClient publishes the client phase. ok=false marks it unavailable.
func (t *Table) PublishClient(d ClientData, ok bool) error {
	defer t.settle()
	return t.client.publish(d, ok)
}

// PublishMaterialSystem publishes the material system phase. ok=false
// marks it unavailable.
func (t *Table) PublishMaterialSystem(d MaterialSystemData, ok bool) error {
	defer t.settle()
	return t.matsys.publish(d, ok)
}

// Abandon publishes every phase not yet published as unavailable, so
// blocked readers return.
func (t *Table) Abandon() {
	defer t.settle()
	_ = t.engine.publish(EngineData{}, false)
	_ = t.server.publish(ServerData{}, false)
	_ = t.client.publish(ClientData{}, false)
	_ = t.matsys.publish(MaterialSystemData{}, false)
}

// Engine blocks until the engine phase is published.
func (t *Table) Engine() (EngineData, bool) { return t.engine.wait() }

// Server blocks until the server phase is published.
func (t *Table) Server() (ServerData, bool) { return t.server.wait() }

// Client blocks until the client phase is published.
func (t *Table) Client() (ClientData, bool) { return t.client.wait() }

// MaterialSystem blocks until the material system phase is published.
func (t *Table) MaterialSystem() (MaterialSystemData, bool) { return t.matsys.wait() }

// EngineIfReady returns the engine phase without blocking.
func (t *Table) EngineIfReady() (EngineData, bool) { return t.engine.peek() }

// ServerIfReady returns the server phase without blocking.
func (t *Table) ServerIfReady() (ServerData, bool) { return t.server.peek() }

// ClientIfReady returns the client phase without blocking. A dedicated
// server never loads the client, so its phase may never be published.
func (t *Table) ClientIfReady() (ClientData, bool) { return t.client.peek() }

// MaterialSystemIfReady returns the material system phase without blocking.
func (t *Table) MaterialSystemIfReady() (MaterialSystemData, bool) { return t.matsys.peek() }

// ClientByIndex returns the client object for a 1-based player index,
// blocking until the engine phase is published. The pointer must not be
// kept past the current host call.
func (t *Table) ClientByIndex(index int) (uintptr, bool) {
	d, ok := t.Engine()
	if !ok {
		return 0, false
	}
	return d.Clients.At(index)
}
