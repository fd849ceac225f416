package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mdisp/internal/trace"
)

// setupTracing reads the trace flags and attaches a tracer to the command
// context.
func setupTracing(cmd *cobra.Command) error {
	root := cmd.Root()
	flags := root.PersistentFlags()

	output, err := flags.GetString("trace")
	if err != nil {
		return fmt.Errorf("failed to get trace flag: %w", err)
	}
	level, err := flags.GetString("trace-level")
	if err != nil {
		return fmt.Errorf("failed to get trace-level flag: %w", err)
	}
	mode, err := flags.GetString("trace-mode")
	if err != nil {
		return fmt.Errorf("failed to get trace-mode flag: %w", err)
	}
	tracer, err := newTracer(output, level, mode)
	if err != nil {
		return err
	}
	ctx := trace.WithTracer(cmd.Context(), tracer)
	cmd.SetContext(ctx)
	root.SetContext(ctx)
	return nil
}

// newTracer builds the tracer for the flag values. --trace alone or a
// non-stream mode without a level means phase-level tracing.
func newTracer(output, levelStr, modeStr string) (trace.Tracer, error) {
	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}
	mode, err := trace.ParseMode(modeStr)
	if err != nil {
		return nil, err
	}
	if level == trace.LevelOff && (output != "" || mode != trace.ModeStream) {
		level = trace.LevelPhase
	}
	if level == trace.LevelOff {
		return trace.Nop, nil
	}
	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		OutputPath: output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	return tracer, nil
}

// dumpTraceRing writes the events kept in memory by --trace-mode ring|both.
// It reports whether anything was written.
func dumpTraceRing(w io.Writer, tracer trace.Tracer, output string) bool {
	ring := trace.Ring(tracer)
	if ring == nil || ring.Len() == 0 {
		return false
	}
	format := trace.FormatText
	if strings.HasSuffix(output, ".ndjson") {
		format = trace.FormatNDJSON
	}
	fmt.Fprintf(w, "trace: last %d events\n", ring.Len())
	if err := ring.Dump(w, format); err != nil {
		fmt.Fprintf(w, "trace: dump error: %v\n", err)
	}
	return true
}

// dumpTraceOnFailure is called by commands right before a failing exit.
func dumpTraceOnFailure(cmd *cobra.Command) {
	output, _ := cmd.Root().PersistentFlags().GetString("trace")
	dumpTraceRing(cmd.ErrOrStderr(), trace.FromContext(cmd.Context()), output)
}

func closeTracing(cmd *cobra.Command) {
	tracer := trace.FromContext(cmd.Context())
	if tracer == nil || tracer == trace.Nop {
		return
	}
	if err := tracer.Flush(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
	}
	if err := tracer.Close(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
	}
}
