package rtdispatch

import (
	"fmt"
	"strings"

	"mdisp/internal/source"
	"mdisp/internal/types"
)

// FatalError is a runtime dispatch failure for a call the compiler accepted.
type FatalError struct {
	Name         string
	Fingerprints []uint32
	Candidates   []string // signatures the static resolver considered
	Cause        error
}

func (e *FatalError) Error() string {
	fps := make([]string, len(e.Fingerprints))
	for i, fp := range e.Fingerprints {
		fps[i] = fmt.Sprintf("%06x", fp)
	}
	msg := fmt.Sprintf("runtime dispatch failed for %s(%s)", e.Name, strings.Join(fps, ", "))
	if len(e.Candidates) > 0 {
		msg += "; candidates: " + strings.Join(e.Candidates, "; ")
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FatalError) Unwrap() error { return e.Cause }

// Seed is an argument tuple the table is built for ahead of time.
type Seed struct {
	Name string
	Args []types.TypeID
	Span source.Span
}

// SeedError records a seed that could not be placed in the table.
type SeedError struct {
	Seed Seed
	Err  error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("dynamic %s: %v", e.Seed.Name, e.Err)
}

func (e *SeedError) Unwrap() error { return e.Err }
