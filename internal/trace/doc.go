// Package trace is the structured event log of mdisp.
//
// A Tracer records span begin/end and point events tagged with a scope
// (driver, pass, family, method), a goroutine id and key/value extras.
// Levels select how deep recording goes:
//
//   - LevelPhase: driver and pass boundaries
//   - LevelDetail: plus one span per method family
//   - LevelDebug: plus every method and call site
//
// Tracers travel through the pipeline in a context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.Start(ctx, trace.ScopePass, "ambiguity")
//	defer span.End("")
//
// StreamTracer writes text or NDJSON lines as events happen; RingTracer keeps
// the most recent events for a dump after a failed check.
package trace
