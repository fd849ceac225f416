package ambiguity

import (
	"fmt"

	"mdisp/internal/diag"
	"mdisp/internal/types"
)

// Report emits one AmbOverlap diagnostic per ambiguity at the later
// declaration, with a note at the other one.
func Report(r diag.Reporter, in *types.Interner, ambs []Ambiguity, sev diag.Severity) {
	for _, amb := range ambs {
		first, second := amb.A, amb.B
		if second.Span.File < first.Span.File ||
			(second.Span.File == first.Span.File && second.Span.Start < first.Span.Start) {
			first, second = second, first
		}
		msg := fmt.Sprintf("%s and %s are equally specific for arguments (%s)",
			second.Signature(in), first.Signature(in), types.Labels(in, amb.Overlap))
		b := diag.NewReportBuilder(r, sev, diag.AmbOverlap, second.Span, msg).
			WithNote(first.Span, "overlaps with this declaration")
		if amb.Diamond {
			b.WithNote(second.Span, fmt.Sprintf("qualify calls with via %s or via %s", first.Trait, second.Trait))
		}
		b.Emit()
	}
}
