// Package gamehooks declares the hooks installed into the supported host
// build and fans their events out to subscribers.
package gamehooks

import (
	"errors"
	"fmt"
	"sync/atomic"

	"enginehook/abi"
	"enginehook/coloransi"
	"enginehook/detour"
	"enginehook/offsets"

	"github.com/Moonlight-Companies/gologger/logger"
)

// Hook names, as used in the offsets table.
const (
	ConnectSubfunc  = "connect_subfunc"
	RunUsercmd      = "run_usercmd"
	ProcessUsercmds = "process_usercmds"
)

var ErrMissingOffset = errors.New("no offset for required hook")

// connect_subfunc is a CClient member called from inside CClient::Connect.
// It is declared C and is really thiscall, which is the same convention
// on x64 only.
var (
	connectSubfuncSig  = abi.Sig(abi.Void, abi.Pointer, abi.Pointer).WithNative(abi.Thiscall)
	runUsercmdSig      = abi.Sig(abi.Void, abi.Int8)
	processUsercmdsSig = abi.Sig(abi.Void, abi.Pointer, abi.Int16, abi.Pointer, abi.Int32, abi.Int32, abi.Int8, abi.Uint8)
)

// ProcessUsercmdsArgs are the arguments of the host's usercmd processing
// for one player. Unknown1 through Unknown3 have no known meaning.
type ProcessUsercmdsArgs struct {
	Player    uintptr
	Unknown1  int16
	Cmds      uintptr
	NumCmds   int32
	TotalCmds int32
	Unknown2  int8
	Unknown3  uint8
}

// Hooks is the hook set of the supported build. Subscribers may be added
// at any time, from any thread.
type Hooks struct {
	log *logger.Logger

	runUsercmds     listeners[func()]
	connected       listeners[func(client uintptr)]
	processUsercmds listeners[func(ProcessUsercmdsArgs)]

	connect atomic.Pointer[detour.Hook]
	runCmd  atomic.Pointer[detour.Hook]
	process atomic.Pointer[detour.Hook]
}

// New creates a hook set with no subscribers
func New() *Hooks {
	return &Hooks{
		log: logger.NewLogger(coloransi.Color(coloransi.Black, coloransi.ColorTeal, "gamehooks")),
	}
}

// OnRunUsercmds subscribes to the server's per-frame usercmd run.
func (p *Hooks) OnRunUsercmds(f func()) { p.runUsercmds.add(f) }

// OnClientConnected subscribes to clients finishing the connect
// procedure. client is a CClient pointer valid for the call only.
func (p *Hooks) OnClientConnected(f func(client uintptr)) { p.connected.add(f) }

// OnProcessUsercmds subscribes to per-player usercmd processing. The hook
// is disabled unless enabled by configuration.
func (p *Hooks) OnProcessUsercmds(f func(ProcessUsercmdsArgs)) { p.processUsercmds.add(f) }

func (p *Hooks) declared() []detour.Descriptor {
	return []detour.Descriptor{
		{
			// CClient::Connect itself cannot be hooked twice, so the hook
			// sits on a helper it calls once the client is set up.
			Name:        ConnectSubfunc,
			Module:      offsets.Engine,
			Signature:   connectSubfuncSig,
			Replacement: p.connectSubfunc,
			CallThrough: true,
			Required:    true,
			Enable:      true,
		},
		{
			Name:        RunUsercmd,
			Module:      offsets.Server,
			Signature:   runUsercmdSig,
			Replacement: p.runUsercmd,
			CallThrough: true,
			Required:    true,
			Enable:      true,
		},
		{
			Name:        ProcessUsercmds,
			Module:      offsets.Server,
			Signature:   processUsercmdsSig,
			Replacement: p.processUsercmdsHook,
			CallThrough: true,
		},
	}
}

// Descriptors returns the hooks of module placed at base. Missing offsets
// are an error for required hooks and skipped otherwise.
func (p *Hooks) Descriptors(module string, base uintptr, mo offsets.ModuleOffsets) ([]detour.Descriptor, error) {
	var out []detour.Descriptor
	for _, d := range p.declared() {
		if d.Module != module {
			continue
		}
		off, ok := mo.Hooks[d.Name]
		if !ok {
			if d.Required {
				return nil, fmt.Errorf("%w: %s.%s", ErrMissingOffset, module, d.Name)
			}
			p.log.Warn("no offset for optional hook ", d.Name, ", skipping")
			continue
		}
		d.Target = base + uintptr(off.Offset)
		d.Check = off.Check
		out = append(out, d)
	}
	return out, nil
}

// Bind hands an installed hook back so its replacement can call through.
// It must run before the hook is enabled.
func (p *Hooks) Bind(h *detour.Hook) {
	switch h.Name() {
	case ConnectSubfunc:
		p.connect.Store(h)
	case RunUsercmd:
		p.runCmd.Store(h)
	case ProcessUsercmds:
		p.process.Store(h)
	default:
		p.log.Warn("bind of unknown hook ", h.Name())
	}
}

func (p *Hooks) callOriginal(h *detour.Hook, args ...any) {
	if h == nil {
		p.log.Warn("hook fired before it was bound")
		return
	}
	if _, err := h.CallOriginal(args...); err != nil {
		p.log.Warn(h.Name(), ": ", err)
	}
}

func (p *Hooks) connectSubfunc(client, unknown uintptr) {
	p.callOriginal(p.connect.Load(), client, unknown)

	if client == 0 {
		return
	}
	for _, f := range p.connected.snapshot() {
		f(client)
	}
}

func (p *Hooks) runUsercmd(param int8) {
	for _, f := range p.runUsercmds.snapshot() {
		f()
	}

	p.callOriginal(p.runCmd.Load(), param)
}

func (p *Hooks) processUsercmdsHook(player uintptr, unknown1 int16, cmds uintptr, numCmds, totalCmds int32, unknown2 int8, unknown3 uint8) {
	args := ProcessUsercmdsArgs{
		Player:    player,
		Unknown1:  unknown1,
		Cmds:      cmds,
		NumCmds:   numCmds,
		TotalCmds: totalCmds,
		Unknown2:  unknown2,
		Unknown3:  unknown3,
	}
	p.log.Debugln("process_usercmds", fmt.Sprintf("%+v", args))
	for _, f := range p.processUsercmds.snapshot() {
		f(args)
	}

	p.callOriginal(p.process.Load(), player, unknown1, cmds, numCmds, totalCmds, unknown2, unknown3)
}
