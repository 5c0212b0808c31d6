package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/calltable"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/loader"
)

func importsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "imports <module path or URL>",
		Short: "Show how a guest's imports resolve without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(opts.LogLevel, os.Stderr)
			if err != nil {
				return err
			}
			setLoggers(log)

			ctx := contextOf(cmd)
			src, err := loader.ParseSource(args[0])
			if err != nil {
				return err
			}
			table, _, err := opts.table()
			if err != nil {
				return err
			}
			data, err := loader.Fetch(ctx, src, opts.loaderConfig(table))
			if err != nil {
				return err
			}

			rt := wazero.NewRuntime(ctx)
			defer rt.Close(ctx)
			compiled, err := rt.CompileModule(ctx, data)
			if err != nil {
				return fmt.Errorf("compile %s: %w", src, err)
			}

			br := bridge.New(bridge.Config{Table: table})
			defer br.Close()
			res := br.Resolve(compiled)
			printResolution(cmd.OutOrStdout(), res)
			return res.MissingError()
		},
	}
}

func printResolution(w io.Writer, res calltable.Resolution) {
	groups := []struct {
		title   string
		imports []calltable.Import
	}{
		{"core", res.Core},
		{"forwarded", res.Forwarded},
		{"closures", res.Closures},
		{"missing", res.Missing},
	}
	for _, g := range groups {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s (%d)", g.title, len(g.imports))))
		for _, imp := range g.imports {
			fmt.Fprintf(w, "  %s\n", importLine(imp))
		}
	}
}

func importLine(imp calltable.Import) string {
	if name := errors.Demangle(imp.Name); name != imp.Name {
		return imp.String() + "  " + typeStyle.Render(name)
	}
	return imp.String()
}
