package diag

import (
	"cmp"
	"slices"
)

// Bag collects diagnostics up to a limit. A Bag is owned by one goroutine;
// parallel passes fill their own bags and Merge them afterwards.
type Bag struct {
	items   []Diagnostic
	max     int
	dropped int
}

// NewBag creates a bag holding at most max diagnostics (0 means unlimited).
func NewBag(max int) *Bag {
	return &Bag{max: max}
}

// Add добавляет диагностику, учитывая лимит.
// Возвращает false, если диагностика не добавлена (достигнут лимит).
func (b *Bag) Add(d Diagnostic) bool {
	if b.max > 0 && len(b.items) >= b.max {
		b.dropped++
		return false
	}
	b.items = append(b.items, d)
	return true
}

// Cap returns the configured limit.
func (b *Bag) Cap() int { return b.max }

// Dropped returns how many diagnostics were rejected by the limit.
func (b *Bag) Dropped() int { return b.dropped }

// HasErrors возвращает true, если есть хотя бы одна диагностика с Severity >= Error
func (b *Bag) HasErrors() bool {
	return slices.ContainsFunc(b.items, func(d Diagnostic) bool { return d.Severity >= SevError })
}

// HasWarnings reports whether any diagnostic is a warning or worse.
func (b *Bag) HasWarnings() bool {
	return slices.ContainsFunc(b.items, func(d Diagnostic) bool { return d.Severity >= SevWarning })
}

// Count returns the number of diagnostics with the given severity.
func (b *Bag) Count(sev Severity) int {
	n := 0
	for i := range b.items {
		if b.items[i].Severity == sev {
			n++
		}
	}
	return n
}

func (b *Bag) Len() int {
	return len(b.items)
}

// Items возвращает read-only slice диагностик.
func (b *Bag) Items() []Diagnostic {
	return b.items
}

// Merge appends diagnostics from other, respecting the limit.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	for _, d := range other.items {
		b.Add(d)
	}
	b.dropped += other.dropped
}

// Sort orders diagnostics by file, start, end, severity (desc), code, message
// for deterministic output.
func (b *Bag) Sort() {
	slices.SortStableFunc(b.items, func(di, dj Diagnostic) int {
		return cmp.Or(
			cmp.Compare(di.Primary.File, dj.Primary.File),
			cmp.Compare(di.Primary.Start, dj.Primary.Start),
			cmp.Compare(di.Primary.End, dj.Primary.End),
			cmp.Compare(dj.Severity, di.Severity),
			cmp.Compare(di.Code, dj.Code),
			cmp.Compare(di.Message, dj.Message),
		)
	})
}

// Dedup drops diagnostics repeating code, span and message.
func (b *Bag) Dedup() {
	type key struct {
		code Code
		span string
		msg  string
	}
	seen := make(map[key]struct{}, len(b.items))
	out := b.items[:0]
	for _, d := range b.items {
		k := key{d.Code, d.Primary.String(), d.Message}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	b.items = out
}
