package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/calltable"
	"github.com/wippyai/wasm-bridge/closure"
	"github.com/wippyai/wasm-bridge/errslot"
	"github.com/wippyai/wasm-bridge/hostlib"
	"github.com/wippyai/wasm-bridge/loader"
	"github.com/wippyai/wasm-bridge/memview"
)

// options are read from the environment and overridden by flags
type options struct {
	Start            string        `env:"WBG_START"`
	CacheDir         string        `env:"WBG_CACHE_DIR"`
	LogLevel         string        `env:"WBG_LOG_LEVEL,default=info"`
	Manifest         string        `env:"WBG_MANIFEST"`
	MaxModuleBytes   int64         `env:"WBG_MAX_MODULE_BYTES"`
	FrameInterval    time.Duration `env:"WBG_FRAME_INTERVAL,default=16ms"`
	MemoryLimitPages uint32        `env:"WBG_MEMORY_LIMIT_PAGES"`
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "wbg",
		Short: "Run wasm-bindgen guest modules on wazero",
		Long: `
wbg loads a wasm-bindgen core module from a file or URL, links its "wbg"
imports against the built-in bridge and host library, and runs its start
export. Closure wrappers are described by a YAML manifest.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := envconfig.Process(contextOf(cmd), opts); err != nil {
				return fmt.Errorf("read environment: %w", err)
			}
			return applyFlags(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("start", "", "start export to run (default __wbindgen_start, then start)")
	flags.String("cache-dir", "", "compilation cache directory")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("manifest", "", "YAML closure manifest")
	flags.Int64("max-bytes", 0, "maximum module size in bytes, negative for unlimited")
	flags.Uint32("memory-pages", 0, "guest memory limit in 64KiB pages")

	cmd.AddCommand(runCommand(opts), importsCommand(opts))
	return cmd
}

func applyFlags(cmd *cobra.Command, opts *options) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("start") {
		opts.Start, err = flags.GetString("start")
	}
	if err == nil && flags.Changed("cache-dir") {
		opts.CacheDir, err = flags.GetString("cache-dir")
	}
	if err == nil && flags.Changed("log-level") {
		opts.LogLevel, err = flags.GetString("log-level")
	}
	if err == nil && flags.Changed("manifest") {
		opts.Manifest, err = flags.GetString("manifest")
	}
	if err == nil && flags.Changed("max-bytes") {
		opts.MaxModuleBytes, err = flags.GetInt64("max-bytes")
	}
	if err == nil && flags.Changed("memory-pages") {
		opts.MemoryLimitPages, err = flags.GetUint32("memory-pages")
	}
	return err
}

// newLogger builds a console logger writing to w at the configured level.
func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// setLoggers routes every package logger through log. Package loggers are
// read when objects are created, so this runs before anything is built.
func setLoggers(log *zap.Logger) {
	bridge.SetLogger(log.Named("bridge"))
	calltable.SetLogger(log.Named("calltable"))
	closure.SetLogger(log.Named("closure"))
	errslot.SetLogger(log.Named("errslot"))
	hostlib.SetLogger(log.Named("guest"))
	loader.SetLogger(log.Named("loader"))
	memview.SetLogger(log.Named("memview"))
}

// table builds the forwarding table: the host library plus the closure
// wrappers from the manifest, if any.
func (o *options) table() (*calltable.Table, *hostlib.Library, error) {
	t := calltable.New()
	lib := hostlib.New()
	if err := lib.Install(t); err != nil {
		return nil, nil, err
	}
	if o.Manifest != "" {
		m, err := calltable.LoadManifest(o.Manifest)
		if err != nil {
			return nil, nil, err
		}
		t.AddClosures(m)
	}
	return t, lib, nil
}

func (o *options) loaderConfig(t *calltable.Table) loader.Config {
	return loader.Config{
		Bridge:           bridge.Config{Table: t},
		StartExport:      o.Start,
		CacheDir:         o.CacheDir,
		MaxModuleBytes:   o.MaxModuleBytes,
		MemoryLimitPages: o.MemoryLimitPages,
	}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
