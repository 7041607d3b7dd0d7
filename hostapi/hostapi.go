// Package hostapi submits console commands through the engine's
// VEngineServer interface.
package hostapi

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"unsafe"

	"enginehook/abi"
	"enginehook/coloransi"
	"enginehook/engine"
	"enginehook/nativemem"

	"github.com/Moonlight-Companies/gologger/logger"
)

// VEngineServer function slots.
const (
	ServerCommandSlot = 21
	ClientCommandSlot = 23
)

var (
	ErrUnavailable = errors.New("engine server interface unavailable")
	ErrInvalidText = errors.New("command contains a NUL byte")
)

var (
	serverCommandSig = abi.Sig(abi.Void, abi.Pointer, abi.Pointer)
	clientCommandSig = abi.Sig(abi.Void, abi.Pointer, abi.Pointer, abi.Pointer, abi.Pointer)
)

// EngineSource is the part of engine.Table commands need.
type EngineSource interface {
	EngineIfReady() (engine.EngineData, bool)
}

// Commands issues console commands. It never waits for the engine phase.
type Commands struct {
	engine EngineSource
	log    *logger.Logger
}

// NewCommands creates Commands reading the engine phase from src
func NewCommands(src EngineSource) *Commands {
	return &Commands{
		engine: src,
		log:    logger.NewLogger(coloransi.Color(coloransi.Black, coloransi.ColorIndigo, "hostapi")),
	}
}

func (c *Commands) handle() (engine.EngineData, error) {
	d, ok := c.engine.EngineIfReady()
	if !ok || !d.HasEngineServer {
		return engine.EngineData{}, ErrUnavailable
	}
	return d, nil
}

func cstring(text string) ([]byte, error) {
	if strings.IndexByte(text, 0) >= 0 {
		return nil, ErrInvalidText
	}
	return nativemem.CString(text), nil
}

// pinned fixes v on the heap until pin is released and returns its
// address for native code.
func pinned[T any](pin *runtime.Pinner, v *T) uintptr {
	pin.Pin(v)
	return uintptr(unsafe.Pointer(v))
}

// ServerCommand queues text on the server console.
func (c *Commands) ServerCommand(text string) error {
	d, err := c.handle()
	if err != nil {
		return err
	}
	cmd, err := cstring(text)
	if err != nil {
		return err
	}

	var pin runtime.Pinner
	defer pin.Unpin()

	// the host ignores this, so it is passed as null
	_, err = d.EngineServer.Invoke(ServerCommandSlot, serverCommandSig, 0, pinned(&pin, &cmd[0]))
	if err != nil {
		return fmt.Errorf("server command: %w", err)
	}
	c.log.Debugln("server command", text)
	return nil
}

// ClientCommand runs text as if typed by the client on edict.
//
// The host function is a member called here with a null this, which is
// only known to work with the supported build.
func (c *Commands) ClientCommand(edict uint16, text string) error {
	d, err := c.handle()
	if err != nil {
		return err
	}
	cmd, err := cstring(text)
	if err != nil {
		return err
	}
	empty := nativemem.CString("")
	ed := new(uint16)
	*ed = edict

	var pin runtime.Pinner
	defer pin.Unpin()

	_, err = d.EngineServer.Invoke(ClientCommandSlot, clientCommandSig,
		0,
		pinned(&pin, ed),
		pinned(&pin, &cmd[0]),
		pinned(&pin, &empty[0]),
	)
	if err != nil {
		return fmt.Errorf("client command: %w", err)
	}
	c.log.Debugln("client command", edict, text)
	return nil
}
