// Package plugin runs the load sequence: as the host maps each module the
// plugin resolves its base, publishes the module's phase of the engine
// table and installs the module's hooks.
package plugin

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"enginehook/coloransi"
	"enginehook/config"
	"enginehook/detour"
	"enginehook/engine"
	"enginehook/hexdump"
	"enginehook/iface"
	"enginehook/module"
	"enginehook/nativemem"
	"enginehook/offsets"

	"github.com/Moonlight-Companies/gologger/logger"
)

// EngineServerInterface is resolved from the engine during its phase.
const EngineServerInterface = "VEngineServer022"

// engineServerSlots covers every slot the plugin calls.
const engineServerSlots = 24

var (
	ErrOutOfOrder    = errors.New("module loaded out of order")
	ErrFatal         = errors.New("initialization aborted")
	ErrMissingOffset = errors.New("missing offset")
)

// State is the plugin lifecycle.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "uninitialized"
}

// Loader resolves module bases.
type Loader interface {
	Load(spec module.Spec) (*module.Module, error)
}

// Registry installs hooks.
type Registry interface {
	Register(d detour.Descriptor) (*detour.Hook, error)
	Enable(name string) error
	Disable(name string) error
	Hooks() []*detour.Hook
}

// Resolver resolves named interfaces.
type Resolver interface {
	Resolve(spec iface.Spec) (iface.Handle, error)
}

// HookProvider declares the hooks of a module and receives them back once
// installed.
type HookProvider interface {
	Descriptors(module string, base uintptr, mo offsets.ModuleOffsets) ([]detour.Descriptor, error)
	Bind(h *detour.Hook)
}

// Deps are the plugin's collaborators. Table is created when nil.
type Deps struct {
	Loader    Loader
	Registry  Registry
	Resolver  Resolver
	Providers []HookProvider
	Table     *engine.Table
}

// Plugin is driven by the host: OnModuleLoad once per module, engine
// first, then RunFrame once per simulation frame.
type Plugin struct {
	cfg     config.Config
	offsets offsets.Table
	deps    Deps
	log     *logger.Logger

	mu     sync.Mutex
	loaded map[string]bool
	fatal  error
	state  atomic.Int32

	frameMu sync.Mutex
	frame   atomic.Pointer[[]func()]
}

// New creates a plugin from validated offsets
func New(cfg config.Config, table offsets.Table, deps Deps) (*Plugin, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if deps.Loader == nil || deps.Registry == nil || deps.Resolver == nil {
		return nil, errors.New("plugin: loader, registry and resolver are required")
	}
	if deps.Table == nil {
		deps.Table = engine.New()
	}

	return &Plugin{
		cfg:     cfg,
		offsets: table,
		deps:    deps,
		log:     logger.NewLogger(coloransi.Color(coloransi.Black, coloransi.ColorOrange, "plugin")),
		loaded:  make(map[string]bool),
	}, nil
}

// Table returns the engine data table the plugin publishes into.
func (p *Plugin) Table() *engine.Table { return p.deps.Table }

// State reports the plugin lifecycle.
func (p *Plugin) State() State { return State(p.state.Load()) }

// Err returns the error that aborted initialization, if any.
func (p *Plugin) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fatal
}

// OnModuleLoad runs the phase of the named module. Engine must load first;
// the other modules of offsets.Order may follow in any order. Other names
// are ignored and repeats are no-ops.
//
// Module and interface failures are logged and leave the phase
// unavailable. A required hook failing is fatal: enabled hooks are
// disabled again, unpublished phases are marked unavailable and every
// later call fails.
func (p *Plugin) OnModuleLoad(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fatal != nil {
		return fmt.Errorf("%w: %w", ErrFatal, p.fatal)
	}
	if p.loaded[name] {
		return nil
	}
	if !slices.Contains(offsets.Order, name) {
		p.log.Debugln("ignoring module", name)
		return nil
	}
	if name != offsets.Engine && !p.loaded[offsets.Engine] {
		return fmt.Errorf("%w: %s before %s", ErrOutOfOrder, name, offsets.Engine)
	}

	p.state.CompareAndSwap(int32(Uninitialized), int32(Initializing))
	p.deps.Table.BeginInit()

	if err := p.runPhase(name); err != nil {
		p.abort(err)
		return fmt.Errorf("%w: %w", ErrFatal, err)
	}

	p.loaded[name] = true
	if p.State() != Ready && p.loaded[offsets.Engine] && p.loaded[offsets.Server] {
		p.state.Store(int32(Ready))
		p.log.Infoln("engine and server loaded, table", p.deps.Table.State())
	}
	return nil
}

// Internal helper function that assumes the mutex is already locked
func (p *Plugin) runPhase(name string) error {
	mo, _ := p.offsets.Module(name)

	m, err := p.deps.Loader.Load(module.Spec{Name: name, File: mo.File, Subdir: mo.Subdir})
	if err != nil {
		p.log.Warn("module ", name, " unavailable, skipping its hooks: ", err)
		return p.publish(name, nil, mo)
	}

	if err := p.publish(name, m, mo); err != nil {
		return err
	}
	return p.installHooks(name, m.Base, mo)
}

// publish publishes the phase of name; m is nil when the module failed.
func (p *Plugin) publish(name string, m *module.Module, mo offsets.ModuleOffsets) error {
	t := p.deps.Table
	var err error

	switch name {
	case offsets.Engine:
		d, ok := p.engineData(m, mo)
		err = t.PublishEngine(d, ok)
	case offsets.Server:
		var d engine.ServerData
		ok := m != nil
		if ok {
			d.Base = m.Base
			d.ClientFullyConnected, ok = p.addr(m, mo.Functions, "client_fully_connected", ok)
			d.RunNullCommand, ok = p.addr(m, mo.Functions, "run_null_command", ok)
			d.PlayerByIndex, ok = p.addr(m, mo.Functions, "player_by_index", ok)
		}
		err = t.PublishServer(d, ok)
	case offsets.Client:
		var d engine.ClientData
		if m != nil {
			d.Base = m.Base
		}
		err = t.PublishClient(d, m != nil)
	case offsets.MaterialSystem:
		var d engine.MaterialSystemData
		ok := m != nil
		if ok {
			d.Base = m.Base
			d.TextureFunc, ok = p.addr(m, mo.Functions, "texture_func", ok)
		}
		err = t.PublishMaterialSystem(d, ok)
	}

	if err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}

func (p *Plugin) engineData(m *module.Module, mo offsets.ModuleOffsets) (engine.EngineData, bool) {
	if m == nil {
		return engine.EngineData{}, false
	}

	ok := true
	d := engine.EngineData{Base: m.Base}
	d.Server, ok = p.addr(m, mo.Pointers, "server", ok)
	d.GameClients, ok = p.addr(m, mo.Pointers, "game_clients", ok)
	d.CreateFakeClient, ok = p.addr(m, mo.Functions, "create_fake_client", ok)

	var clients uintptr
	clients, ok = p.addr(m, mo.Pointers, "client_array", ok)
	d.Clients = nativemem.NewClientArray(clients, engine.MaxPlayers)

	h, err := p.deps.Resolver.Resolve(iface.Spec{Module: offsets.Engine, Name: EngineServerInterface, Slots: engineServerSlots})
	if err == nil {
		d.EngineServer = h
		d.HasEngineServer = true
	}
	return d, ok
}

// addr resolves a named offset; ok is threaded through so one missing
// offset marks the whole phase unavailable.
func (p *Plugin) addr(m *module.Module, offs map[string]uint64, key string, ok bool) (uintptr, bool) {
	off, found := offs[key]
	if !found {
		p.log.Warn(m.Name, ": ", ErrMissingOffset, " ", key)
		return 0, false
	}
	return m.Addr(off), ok
}

func (p *Plugin) installHooks(name string, base uintptr, mo offsets.ModuleOffsets) error {
	for _, provider := range p.deps.Providers {
		descs, err := provider.Descriptors(name, base, mo)
		if err != nil {
			return err
		}

		for _, d := range descs {
			enable := p.cfg.HookEnabled(d.Name, d.Enable, d.Required)
			if !p.cfg.VerifyPrologues {
				d.Check = nil
			}

			// the replacement must hold its hook before the jump is written
			d.Enable = false
			h, err := p.deps.Registry.Register(d)
			if err == nil {
				provider.Bind(h)
				if enable {
					err = p.deps.Registry.Enable(d.Name)
				}
				if p.cfg.Debug {
					p.log.Infoln("patch", d.Name, "\n"+hexdump.DumpWithOffset(h.PatchBytes(), uint64(h.Target())))
				}
			}
			if err == nil {
				continue
			}
			if d.Required {
				return fmt.Errorf("required hook %s: %w", d.Name, err)
			}
			p.log.Warn("optional hook ", d.Name, " unavailable: ", err)
		}
	}
	return nil
}

// Internal helper function that assumes the mutex is already locked
func (p *Plugin) abort(err error) {
	p.fatal = err
	p.state.Store(int32(Failed))
	p.log.Warn("initialization aborted: ", err)
	p.deps.Table.Abandon()

	for _, h := range p.deps.Registry.Hooks() {
		if !h.IsEnabled() {
			continue
		}
		if derr := p.deps.Registry.Disable(h.Name()); derr != nil {
			p.log.Warn("could not disable ", h.Name(), ": ", derr)
		}
	}
}

// OnFrame registers f to run on every RunFrame.
func (p *Plugin) OnFrame(f func()) {
	p.frameMu.Lock()
	defer p.frameMu.Unlock()

	var next []func()
	if old := p.frame.Load(); old != nil {
		next = append(next, *old...)
	}
	next = append(next, f)
	p.frame.Store(&next)
}

// RunFrame is called by the host once per simulation frame. Nothing runs
// until the engine and server modules are loaded.
func (p *Plugin) RunFrame() {
	if p.State() != Ready {
		return
	}
	fs := p.frame.Load()
	if fs == nil {
		return
	}
	for _, f := range *fs {
		f()
	}
}
