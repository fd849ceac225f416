package trace

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

func nextSeq() uint64 { return seqCounter.Add(1) }

// goroutineID parses the "goroutine N [" header of the current stack.
func goroutineID() uint64 {
	var buf [64]byte
	head := string(buf[:runtime.Stack(buf[:], false)])
	head, ok := strings.CutPrefix(head, "goroutine ")
	if !ok {
		return 0
	}
	num, _, ok := strings.Cut(head, " ")
	if !ok {
		return 0
	}
	gid, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0
	}
	return gid
}

// Span is an open begin/end pair. A span filtered out by the tracer level
// is inert: End and WithExtra do nothing.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	gid     uint64
	scope   Scope
	name    string
	started time.Time
	extra   map[string]string
}

var inert = &Span{tracer: Nop}

// Begin emits a span-begin event under parent (0 for a root span).
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return inert
	}
	s := &Span{
		tracer:  t,
		id:      spanCounter.Add(1),
		parent:  parent,
		gid:     goroutineID(),
		scope:   scope,
		name:    name,
		started: time.Now(),
	}
	t.Emit(&Event{
		Time:     s.started,
		Kind:     KindSpanBegin,
		Scope:    scope,
		SpanID:   s.id,
		ParentID: parent,
		GID:      s.gid,
		Name:     name,
	})
	return s
}

// End emits the span-end event with detail and the collected extras.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s.id == 0 {
		return 0
	}
	dur := time.Since(s.started)
	s.tracer.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindSpanEnd,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		GID:      s.gid,
		Name:     s.name,
		Detail:   detail,
		Extra:    s.extra,
	})
	return dur
}

// WithExtra records key=value on the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil || s.id == 0 {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 2)
	}
	s.extra[key] = value
	return s
}

// ID returns the span id, 0 for an inert span.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Start begins a span nested under the one carried by ctx.
func Start(ctx context.Context, scope Scope, name string) (context.Context, *Span) {
	sp := Begin(FromContext(ctx), scope, name, parentOf(ctx))
	if sp.id == 0 {
		return ctx, sp
	}
	return withParent(ctx, sp.id), sp
}

// StartFamily begins a family-scoped span named "family:<name>".
func StartFamily(ctx context.Context, name string) (context.Context, *Span) {
	return Start(ctx, ScopeFamily, "family:"+name)
}

// StartMethod begins a method-scoped span named "method:<qualified>".
func StartMethod(ctx context.Context, qualified string) (context.Context, *Span) {
	return Start(ctx, ScopeMethod, "method:"+qualified)
}

// Point emits an instant event under the span carried by ctx.
func Point(ctx context.Context, scope Scope, name, detail string) {
	t := FromContext(ctx)
	if !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return
	}
	t.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: parentOf(ctx),
		GID:      goroutineID(),
		Name:     name,
		Detail:   detail,
	})
}
