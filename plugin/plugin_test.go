package plugin

import (
	"errors"
	"sync"
	"testing"
	"time"

	"enginehook/config"
	"enginehook/detour"
	"enginehook/engine"
	"enginehook/gamehooks"
	"enginehook/iface"
	"enginehook/module"
	"enginehook/offsets"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bases = map[string]uintptr{
	offsets.Engine:         0x180000000,
	offsets.Server:         0x7ff800000000,
	offsets.Client:         0x7ff900000000,
	offsets.MaterialSystem: 0x7ffa00000000,
}

type fakeLoader struct {
	fail  map[string]bool
	specs []module.Spec
}

func (l *fakeLoader) Load(spec module.Spec) (*module.Module, error) {
	l.specs = append(l.specs, spec)
	if l.fail[spec.Name] {
		return &module.Module{Name: spec.Name, State: module.Failed}, module.ErrModuleNotFound
	}
	return &module.Module{Name: spec.Name, Base: bases[spec.Name], State: module.Resident}, nil
}

type fakeRegistry struct {
	mu         sync.Mutex
	registered []detour.Descriptor
	enabled    []string
	events     []string
	byHook     map[*detour.Hook]string
	errs       map[string]error
	enableErrs map[string]error
}

func (r *fakeRegistry) Register(d detour.Descriptor) (*detour.Hook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, d)
	r.events = append(r.events, "register "+d.Name)
	if err := r.errs[d.Name]; err != nil {
		return nil, err
	}
	h := new(detour.Hook)
	r.byHook[h] = d.Name
	return h, nil
}

func (r *fakeRegistry) Enable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "enable "+name)
	if err := r.enableErrs[name]; err != nil {
		return err
	}
	r.enabled = append(r.enabled, name)
	return nil
}

func (r *fakeRegistry) Disable(name string) error { return nil }
func (r *fakeRegistry) Hooks() []*detour.Hook     { return nil }

// bindRecorder logs binds into the registry's event list.
type bindRecorder struct {
	HookProvider
	registry *fakeRegistry
}

func (b bindRecorder) Bind(h *detour.Hook) {
	b.registry.mu.Lock()
	defer b.registry.mu.Unlock()
	b.registry.events = append(b.registry.events, "bind "+b.registry.byHook[h])
}

func (r *fakeRegistry) names() []string {
	var out []string
	for _, d := range r.registered {
		out = append(out, d.Name)
	}
	return out
}

type fakeResolver struct {
	err error
}

func (r *fakeResolver) Resolve(spec iface.Spec) (iface.Handle, error) {
	if r.err != nil {
		return iface.Handle{}, r.err
	}
	return iface.Handle{Module: spec.Module, Name: spec.Name, Object: 0x1000, Table: 0x2000, Slots: spec.Slots}, nil
}

type fixture struct {
	plugin   *Plugin
	loader   *fakeLoader
	registry *fakeRegistry
	resolver *fakeResolver
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	f := &fixture{
		loader:   &fakeLoader{fail: map[string]bool{}},
		registry: &fakeRegistry{
			byHook:     map[*detour.Hook]string{},
			errs:       map[string]error{},
			enableErrs: map[string]error{},
		},
		resolver: &fakeResolver{},
	}
	p, err := New(cfg, offsets.Default(), Deps{
		Loader:    f.loader,
		Registry:  f.registry,
		Resolver:  f.resolver,
		Providers: []HookProvider{bindRecorder{HookProvider: gamehooks.New(), registry: f.registry}},
	})
	require.NoError(t, err)
	f.plugin = p
	return f
}

func loadAll(t *testing.T, p *Plugin) {
	t.Helper()
	for _, name := range offsets.Order {
		require.NoError(t, p.OnModuleLoad(name))
	}
}

func TestLoadSequencePublishesEveryPhase(t *testing.T) {
	f := newFixture(t, config.Config{VerifyPrologues: true})
	assert.Equal(t, Uninitialized, f.plugin.State())

	loadAll(t, f.plugin)
	assert.Equal(t, Ready, f.plugin.State())
	assert.Equal(t, engine.Ready, f.plugin.Table().State())

	wantSpecs := []module.Spec{
		{Name: offsets.Engine, Subdir: "bin/x64_retail"},
		{Name: offsets.Server},
		{Name: offsets.Client, Subdir: "bin/x64_retail"},
		{Name: offsets.MaterialSystem, File: "materialsystem_dx11.dll", Subdir: "bin/x64_retail"},
	}
	if diff := cmp.Diff(wantSpecs, f.loader.specs); diff != "" {
		t.Errorf("module specs mismatch (-want +got):\n%s", diff)
	}

	e, ok := f.plugin.Table().Engine()
	require.True(t, ok)
	assert.Equal(t, bases[offsets.Engine]+0x12A53D40, e.Server)
	assert.Equal(t, bases[offsets.Engine]+0x13F0AAA8, e.GameClients)
	assert.Equal(t, bases[offsets.Engine]+0x114C60, e.CreateFakeClient)
	assert.Equal(t, bases[offsets.Engine]+0x12A53F90, e.Clients.Base())
	assert.Equal(t, engine.MaxPlayers, e.Clients.Cap())
	require.True(t, e.HasEngineServer)
	assert.Equal(t, EngineServerInterface, e.EngineServer.Name)
	assert.Equal(t, 24, e.EngineServer.Slots)

	s, ok := f.plugin.Table().Server()
	require.True(t, ok)
	assert.Equal(t, engine.ServerData{
		Base:                 bases[offsets.Server],
		ClientFullyConnected: bases[offsets.Server] + 0x153B70,
		RunNullCommand:       bases[offsets.Server] + 0x5A9FD0,
		PlayerByIndex:        bases[offsets.Server] + 0x26AA10,
	}, s)

	m, ok := f.plugin.Table().MaterialSystem()
	require.True(t, ok)
	assert.Equal(t, bases[offsets.MaterialSystem]+0x79E80, m.TextureFunc)

	assert.Equal(t, []string{gamehooks.ConnectSubfunc, gamehooks.RunUsercmd, gamehooks.ProcessUsercmds}, f.registry.names())
	for _, d := range f.registry.registered {
		assert.False(t, d.Enable, d.Name)
		assert.NotNil(t, d.Check, d.Name)
	}
	assert.Equal(t, []string{gamehooks.ConnectSubfunc, gamehooks.RunUsercmd}, f.registry.enabled)
}

func TestHooksBoundBeforeEnable(t *testing.T) {
	f := newFixture(t, config.Config{EnableHooks: []string{gamehooks.ProcessUsercmds}})
	loadAll(t, f.plugin)

	want := []string{
		"register " + gamehooks.ConnectSubfunc,
		"bind " + gamehooks.ConnectSubfunc,
		"enable " + gamehooks.ConnectSubfunc,
		"register " + gamehooks.RunUsercmd,
		"bind " + gamehooks.RunUsercmd,
		"enable " + gamehooks.RunUsercmd,
		"register " + gamehooks.ProcessUsercmds,
		"bind " + gamehooks.ProcessUsercmds,
		"enable " + gamehooks.ProcessUsercmds,
	}
	if diff := cmp.Diff(want, f.registry.events); diff != "" {
		t.Errorf("install events mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineMustLoadFirst(t *testing.T) {
	f := newFixture(t, config.Config{})

	assert.ErrorIs(t, f.plugin.OnModuleLoad(offsets.Server), ErrOutOfOrder)
	assert.ErrorIs(t, f.plugin.OnModuleLoad(offsets.Client), ErrOutOfOrder)
	assert.NoError(t, f.plugin.OnModuleLoad("filesystem_stdio"))
	assert.Empty(t, f.loader.specs)
	assert.Equal(t, Uninitialized, f.plugin.State())

	require.NoError(t, f.plugin.OnModuleLoad(offsets.Engine))

	// repeats are no-ops
	require.NoError(t, f.plugin.OnModuleLoad(offsets.Engine))
	assert.Len(t, f.loader.specs, 1)
	assert.Equal(t, Initializing, f.plugin.State())
}

func TestModulesAfterEngineInAnyOrder(t *testing.T) {
	f := newFixture(t, config.Config{})
	frames := 0
	f.plugin.OnFrame(func() { frames++ })

	for _, name := range []string{offsets.Engine, offsets.MaterialSystem, offsets.Client} {
		require.NoError(t, f.plugin.OnModuleLoad(name))
	}
	assert.Equal(t, Initializing, f.plugin.State())
	f.plugin.RunFrame()
	assert.Zero(t, frames)

	require.NoError(t, f.plugin.OnModuleLoad(offsets.Server))
	assert.Equal(t, Ready, f.plugin.State())
	assert.Equal(t, engine.Ready, f.plugin.Table().State())
	f.plugin.RunFrame()
	assert.Equal(t, 1, frames)

	_, ok := f.plugin.Table().Client()
	assert.True(t, ok)
	assert.Equal(t, []string{gamehooks.ConnectSubfunc, gamehooks.RunUsercmd, gamehooks.ProcessUsercmds}, f.registry.names())
}

func TestDedicatedServerWithoutClient(t *testing.T) {
	f := newFixture(t, config.Config{})
	frames := 0
	f.plugin.OnFrame(func() { frames++ })

	for _, name := range []string{offsets.Engine, offsets.Server, offsets.MaterialSystem} {
		require.NoError(t, f.plugin.OnModuleLoad(name))
	}
	assert.Equal(t, Ready, f.plugin.State())
	f.plugin.RunFrame()
	assert.Equal(t, 1, frames)

	_, ok := f.plugin.Table().ClientIfReady()
	assert.False(t, ok)
	_, ok = f.plugin.Table().MaterialSystemIfReady()
	assert.True(t, ok)
	assert.Equal(t, engine.Initializing, f.plugin.Table().State())
}

func TestModuleFailureSkipsItsHooks(t *testing.T) {
	f := newFixture(t, config.Config{})
	f.loader.fail[offsets.Server] = true

	loadAll(t, f.plugin)
	assert.Equal(t, Ready, f.plugin.State())

	_, ok := f.plugin.Table().Server()
	assert.False(t, ok)
	_, ok = f.plugin.Table().Client()
	assert.True(t, ok)

	assert.Equal(t, []string{gamehooks.ConnectSubfunc}, f.registry.names())
}

func TestRequiredHookFailureIsFatal(t *testing.T) {
	f := newFixture(t, config.Config{})
	f.registry.errs[gamehooks.RunUsercmd] = detour.ErrFunctionTooSmall

	require.NoError(t, f.plugin.OnModuleLoad(offsets.Engine))
	err := f.plugin.OnModuleLoad(offsets.Server)
	assert.ErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, detour.ErrFunctionTooSmall)
	assert.Equal(t, Failed, f.plugin.State())
	assert.ErrorIs(t, f.plugin.Err(), detour.ErrFunctionTooSmall)

	assert.ErrorIs(t, f.plugin.OnModuleLoad(offsets.Client), ErrFatal)
	assert.Len(t, f.loader.specs, 2)
}

func TestRequiredHookEnableFailureIsFatal(t *testing.T) {
	f := newFixture(t, config.Config{})
	f.registry.enableErrs[gamehooks.ConnectSubfunc] = detour.ErrEnableFailed

	err := f.plugin.OnModuleLoad(offsets.Engine)
	assert.ErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, detour.ErrEnableFailed)
	assert.Equal(t, Failed, f.plugin.State())
}

func TestAbortUnblocksTableReaders(t *testing.T) {
	f := newFixture(t, config.Config{})
	f.registry.errs[gamehooks.ConnectSubfunc] = detour.ErrInstallFailed

	results := make(chan bool, 3)
	go func() {
		_, ok := f.plugin.Table().Server()
		results <- ok
	}()
	go func() {
		_, ok := f.plugin.Table().MaterialSystem()
		results <- ok
	}()
	go func() {
		_, ok := f.plugin.Table().Client()
		results <- ok
	}()

	assert.ErrorIs(t, f.plugin.OnModuleLoad(offsets.Engine), ErrFatal)

	for i := 0; i < 3; i++ {
		select {
		case ok := <-results:
			assert.False(t, ok)
		case <-time.After(5 * time.Second):
			t.Fatal("table reader still blocked after abort")
		}
	}

	// the engine phase was published before its hooks failed
	_, ok := f.plugin.Table().EngineIfReady()
	assert.True(t, ok)
}

func TestOptionalHookFailureIsLogged(t *testing.T) {
	f := newFixture(t, config.Config{})
	f.registry.errs[gamehooks.ProcessUsercmds] = detour.ErrRelativeAddr

	loadAll(t, f.plugin)
	assert.Equal(t, Ready, f.plugin.State())
	assert.NoError(t, f.plugin.Err())
}

func TestConfigShapesDescriptors(t *testing.T) {
	f := newFixture(t, config.Config{
		EnableHooks:     []string{gamehooks.ProcessUsercmds},
		DisableHooks:    []string{gamehooks.ConnectSubfunc},
		VerifyPrologues: false,
	})
	loadAll(t, f.plugin)

	for _, d := range f.registry.registered {
		assert.Nil(t, d.Check, d.Name)
	}
	// connect_subfunc is required, so the disable list does not apply
	assert.Equal(t, []string{gamehooks.ConnectSubfunc, gamehooks.RunUsercmd, gamehooks.ProcessUsercmds}, f.registry.enabled)
}

func TestInterfaceFailureKeepsEnginePhase(t *testing.T) {
	f := newFixture(t, config.Config{})
	f.resolver.err = errors.New("no factory")

	require.NoError(t, f.plugin.OnModuleLoad(offsets.Engine))
	e, ok := f.plugin.Table().Engine()
	require.True(t, ok)
	assert.False(t, e.HasEngineServer)
}

func TestRunFrameWaitsForReady(t *testing.T) {
	f := newFixture(t, config.Config{})
	frames := 0
	f.plugin.OnFrame(func() { frames++ })

	f.plugin.RunFrame()
	assert.Equal(t, 0, frames)

	loadAll(t, f.plugin)
	f.plugin.RunFrame()
	f.plugin.RunFrame()
	assert.Equal(t, 2, frames)
}

func TestNewRejectsInvalidOffsets(t *testing.T) {
	table := offsets.Default()
	table.Modules[offsets.Server].Functions["run_null_command"] = 0

	_, err := New(config.Config{}, table, Deps{Loader: &fakeLoader{}, Registry: &fakeRegistry{}, Resolver: &fakeResolver{}})
	assert.ErrorIs(t, err, offsets.ErrZeroOffset)
}
