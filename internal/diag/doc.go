// Package diag defines the diagnostic model shared by the declaration loader,
// the dispatch checker and the runtime table builder.
//
// Diagnostic is the central record: a Severity, a numeric Code with a stable
// string form (SYN, DCL, UNI, DSP, STB, AMB, RTD ranges), a short message, the
// primary source.Span and optional notes. Notes should add new context (for
// example "candidate declared here") rather than repeat the message.
//
// Phases emit through a Reporter so that they do not depend on storage or
// formatting. ReportBuilder chains WithNote before Emit; BagReporter collects
// into a Bag which supports sorting and deduplication. Rendering lives in
// internal/diagfmt.
//
// Parallel passes each own a Bag and the driver merges them, so the model stays
// free of locks and output stays deterministic after Sort.
package diag
