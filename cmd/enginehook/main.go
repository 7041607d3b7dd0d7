// Command enginehook is built with -buildmode=c-shared and loaded by the
// host's plugin loader, which calls the exported functions below.
package main

import "C"

import (
	"sync"

	"enginehook/coloransi"
	"enginehook/config"
	"enginehook/detour"
	"enginehook/gamehooks"
	"enginehook/hostapi"
	"enginehook/iface"
	"enginehook/module"
	"enginehook/plugin"

	"github.com/Moonlight-Companies/gologger/logger"
)

var (
	log = logger.NewLogger(coloransi.Color(coloransi.White, coloransi.ColorPurple, "enginehook"))

	initOnce sync.Once
	initErr  error
	instance *plugin.Plugin
	hooks    *gamehooks.Hooks
	commands *hostapi.Commands
)

func initialize() error {
	initOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		table, err := cfg.Offsets()
		if err != nil {
			initErr = err
			return
		}
		loader, err := module.NewLoader(cfg.GameDir)
		if err != nil {
			initErr = err
			return
		}

		hooks = gamehooks.New()
		instance, initErr = plugin.New(cfg, table, plugin.Deps{
			Loader:    loader,
			Registry:  detour.NewRegistry(),
			Resolver:  iface.NewResolver(loader),
			Providers: []plugin.HookProvider{hooks},
		})
		if initErr != nil {
			return
		}
		commands = hostapi.NewCommands(instance.Table())
		log.Infoln("initialized for build", table.Build, "from", loader.Dir())
	})
	return initErr
}

//export EngineHookInit
func EngineHookInit() C.int {
	if err := initialize(); err != nil {
		log.Warn("init failed: ", err)
		return 1
	}
	return 0
}

//export EngineHookOnModuleLoad
func EngineHookOnModuleLoad(name *C.char) C.int {
	if err := initialize(); err != nil {
		return 1
	}
	if err := instance.OnModuleLoad(C.GoString(name)); err != nil {
		log.Warn(err)
		return 1
	}
	return 0
}

//export EngineHookRunFrame
func EngineHookRunFrame() {
	if initialize() != nil {
		return
	}
	instance.RunFrame()
}

//export EngineHookServerCommand
func EngineHookServerCommand(text *C.char) C.int {
	if initialize() != nil {
		return 1
	}
	if err := commands.ServerCommand(C.GoString(text)); err != nil {
		log.Warn("server command: ", err)
		return 1
	}
	return 0
}

//export EngineHookClientCommand
func EngineHookClientCommand(edict C.ushort, text *C.char) C.int {
	if initialize() != nil {
		return 1
	}
	if err := commands.ClientCommand(uint16(edict), C.GoString(text)); err != nil {
		log.Warn("client command: ", err)
		return 1
	}
	return 0
}

// main is required for c-shared build mode but is never called
func main() {}
