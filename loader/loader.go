package loader

import (
	"context"
	"fmt"
	"net/http"

	"github.com/davidmdm/x/xerr"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// Default start exports, tried in order
const (
	StartExport         = "__wbindgen_start"
	FallbackStartExport = "start"
)

// DefaultMaxModuleBytes caps fetched modules at 256 MiB
const DefaultMaxModuleBytes = 256 << 20

// Config holds loader configuration
type Config struct {
	// HTTPClient fetches URL sources. Default http.DefaultClient.
	HTTPClient *http.Client

	// Bridge configures the bridge created for the guest.
	Bridge bridge.Config

	// StartExport names the export run once after instantiation. When
	// empty, "__wbindgen_start" and then "start" are tried and a guest
	// exporting neither is not started. A configured name must exist.
	StartExport string

	// ModuleName is the name the guest is instantiated under.
	ModuleName string

	// CacheDir enables wazero's compilation cache in that directory.
	CacheDir string

	// MaxModuleBytes limits module size. 0 means DefaultMaxModuleBytes,
	// negative means unlimited.
	MaxModuleBytes int64

	// MemoryLimitPages caps guest memory in 64KiB pages. 0 means wazero's
	// default of 65536 pages.
	MemoryLimitPages uint32
}

// Loader takes one guest module from its source to a running instance
type Loader struct {
	rt       wazero.Runtime
	cache    wazero.CompilationCache
	compiled wazero.CompiledModule
	guest    api.Module
	err      error
	bridge   *bridge.Bridge
	log      *zap.Logger
	cfg      Config
	started  string
	state    State
}

// New creates an Unloaded loader
func New(cfg Config) *Loader {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.MaxModuleBytes == 0 {
		cfg.MaxModuleBytes = DefaultMaxModuleBytes
	}
	return &Loader{cfg: cfg, log: Logger()}
}

// State returns the current state
func (l *Loader) State() State {
	return l.state
}

// Err returns the error that moved the loader to Failed
func (l *Loader) Err() error {
	return l.err
}

// Bridge returns the guest's bridge, nil before instantiation.
func (l *Loader) Bridge() *bridge.Bridge {
	return l.bridge
}

// Module returns the guest instance, nil until Running.
func (l *Loader) Module() api.Module {
	if l.state != Running {
		return nil
	}
	return l.guest
}

// Compiled returns the compiled guest, nil before compilation.
func (l *Loader) Compiled() wazero.CompiledModule {
	return l.compiled
}

// Started returns the start export that ran, empty if none did.
func (l *Loader) Started() string {
	return l.started
}

func (l *Loader) transition(s State) {
	l.log.Debug("loader state", zap.Stringer("from", l.state), zap.Stringer("to", s))
	l.state = s
}

func (l *Loader) fail(err error) error {
	l.err = err
	l.transition(Failed)
	l.log.Debug("load failed", zap.Error(err))
	return err
}

// Load fetches src, compiles it, instantiates the guest with its bridge
// and runs the start export. A loader loads once.
func (l *Loader) Load(ctx context.Context, src Source) error {
	if l.state != Unloaded {
		return errors.InvalidState(errors.PhaseLoad, "loader is "+l.state.String())
	}
	l.log = l.log.With(zap.Stringer("source", src))

	l.transition(Fetching)
	if err := l.newRuntime(ctx); err != nil {
		return l.fail(err)
	}
	data, err := l.fetch(ctx, src)
	if err != nil {
		return l.fail(err)
	}
	compiled, err := l.rt.CompileModule(ctx, data)
	if err != nil {
		return l.fail(errors.Load("compile module", err))
	}
	l.compiled = compiled

	l.transition(Instantiating)
	if err := l.instantiate(ctx); err != nil {
		return l.fail(err)
	}
	if err := l.start(ctx); err != nil {
		return l.fail(err)
	}

	l.transition(Running)
	return nil
}

func (l *Loader) newRuntime(ctx context.Context) error {
	cfg := wazero.NewRuntimeConfig()
	if l.cfg.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(l.cfg.MemoryLimitPages)
	}
	if l.cfg.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(l.cfg.CacheDir)
		if err != nil {
			return errors.Load("open compilation cache", err)
		}
		l.cache = cache
		cfg = cfg.WithCompilationCache(cache)
	}
	l.rt = wazero.NewRuntimeWithConfig(ctx, cfg)
	return nil
}

func (l *Loader) limit() int64 {
	if l.cfg.MaxModuleBytes < 0 {
		return 0
	}
	return l.cfg.MaxModuleBytes
}

func (l *Loader) fetch(ctx context.Context, src Source) ([]byte, error) {
	switch src.kind {
	case SourceBytes:
		if limit := l.limit(); limit > 0 && int64(len(src.data)) > limit {
			return nil, errors.Fetch(errors.KindTooLarge, fmt.Sprintf("module exceeds %d bytes", limit), nil)
		}
		if err := checkHeader(src.data); err != nil {
			return nil, err
		}
		return src.data, nil
	case SourceFile:
		return readFile(src.location, l.limit())
	case SourceURL:
		return fetchURL(ctx, l.cfg.HTTPClient, src.location, l.limit(), l.log)
	}
	return nil, errors.InvalidInput(errors.PhaseFetch, "empty source")
}

func (l *Loader) instantiate(ctx context.Context) error {
	br := bridge.New(l.cfg.Bridge)
	if _, err := br.Instantiate(ctx, l.rt, l.compiled); err != nil {
		return err
	}
	l.bridge = br

	modCfg := wazero.NewModuleConfig().WithStartFunctions()
	if l.cfg.ModuleName != "" {
		modCfg = modCfg.WithName(l.cfg.ModuleName)
	}
	guest, err := l.rt.InstantiateModule(ctx, l.compiled, modCfg)
	if err != nil {
		return errors.Instantiation(err)
	}
	l.guest = guest
	return br.Bind(guest)
}

func (l *Loader) start(ctx context.Context) error {
	name, fn := l.startFunc()
	if fn == nil {
		if l.cfg.StartExport != "" {
			return errors.MissingExport(errors.PhaseStart, l.cfg.StartExport)
		}
		l.log.Debug("guest has no start export")
		return nil
	}
	if _, err := fn.Call(ctx); err != nil {
		return errors.Start(name, err)
	}
	l.started = name
	l.log.Debug("guest started", zap.String("export", name))
	return nil
}

func (l *Loader) startFunc() (string, api.Function) {
	if l.cfg.StartExport != "" {
		return l.cfg.StartExport, l.guest.ExportedFunction(l.cfg.StartExport)
	}
	for _, name := range []string{StartExport, FallbackStartExport} {
		if fn := l.guest.ExportedFunction(name); fn != nil {
			return name, fn
		}
	}
	return "", nil
}

// Close releases the bridge, the instances, the runtime and the cache.
// The loader state is left unchanged.
func (l *Loader) Close(ctx context.Context) error {
	var errs []error
	if l.bridge != nil {
		l.bridge.Close()
	}
	if l.rt != nil {
		errs = append(errs, l.rt.Close(ctx))
	}
	if l.cache != nil {
		errs = append(errs, l.cache.Close(ctx))
	}
	return xerr.MultiErrFrom("close loader", errs...)
}

// Fetch retrieves and validates the bytes of src under cfg's size limit
// without compiling them.
func Fetch(ctx context.Context, src Source, cfg Config) ([]byte, error) {
	return New(cfg).fetch(ctx, src)
}
