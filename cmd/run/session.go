package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/davidmdm/x/xerr"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/hostlib"
	"github.com/wippyai/wasm-bridge/loader"
	"github.com/wippyai/wasm-bridge/value"
)

// session is a loaded guest together with the host library driving it
type session struct {
	loader *loader.Loader
	lib    *hostlib.Library
	opts   *options
	frames int
}

func openSession(ctx context.Context, opts *options, locator string) (*session, error) {
	src, err := loader.ParseSource(locator)
	if err != nil {
		return nil, err
	}
	table, lib, err := opts.table()
	if err != nil {
		return nil, err
	}

	l := loader.New(opts.loaderConfig(table))
	if err := l.Load(ctx, src); err != nil {
		return nil, xerr.MultiErrOrderedFrom("", err, l.Close(ctx))
	}
	return &session{loader: l, lib: lib, opts: opts}, nil
}

// frame runs the queued animation frame callbacks and advances virtual time
// by one frame interval.
func (s *session) frame(ctx context.Context) error {
	s.frames++
	return xerr.MultiErrOrderedFrom("",
		s.lib.Scheduler.RunFrame(ctx),
		s.lib.Scheduler.Advance(ctx, s.opts.FrameInterval))
}

// call invokes a parameterless export. A failure the guest recorded in the
// error slot is returned as the call's error.
func (s *session) call(ctx context.Context, export string) ([]uint64, error) {
	br := s.loader.Bridge()
	res, err := br.Call(ctx, export)
	if err != nil {
		return nil, err
	}
	if failure, ok := br.TakeError(); ok {
		return res, failure
	}
	return res, nil
}

func (s *session) close(ctx context.Context) error {
	return s.loader.Close(ctx)
}

func (s *session) summary(w io.Writer) {
	br := s.loader.Bridge()
	frames, timers := s.lib.Scheduler.Pending()
	started := s.loader.Started()
	if started == "" {
		started = "-"
	}
	fmt.Fprintf(w, "state:    %s\n", s.loader.State())
	fmt.Fprintf(w, "bridge:   %s\n", br.ID())
	fmt.Fprintf(w, "start:    %s\n", started)
	fmt.Fprintf(w, "heap:     %d live, %d slots\n", br.Heap().Len(), br.Heap().Cap())
	fmt.Fprintf(w, "frames:   %d run, %d queued\n", s.frames, frames)
	fmt.Fprintf(w, "timers:   %d pending at %s\n", timers, s.lib.Scheduler.Now())
	fmt.Fprintf(w, "memory:   %d bytes\n", s.memorySize())
}

func (s *session) memorySize() uint32 {
	if mem := s.loader.Module().Memory(); mem != nil {
		return mem.Size()
	}
	return 0
}

func (s *session) heapLines(width int) []string {
	entries := s.loader.Bridge().Heap().Snapshot()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, formatEntry(e, width))
	}
	return lines
}

func formatEntry(e heap.Entry, width int) string {
	debug := value.Debug(e.Value)
	if r := []rune(debug); width > 0 && len(r) > width {
		debug = string(r[:width-1]) + "…"
	}
	return fmt.Sprintf("%5d  %-9s %s", e.Handle, e.Value.Kind(), debug)
}

func formatResults(res []uint64) string {
	if len(res) == 0 {
		return "()"
	}
	parts := make([]string, len(res))
	for i, r := range res {
		parts[i] = fmt.Sprintf("%d", api.DecodeI32(r))
	}
	return strings.Join(parts, ", ")
}
