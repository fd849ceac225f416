package stability

import (
	"mdisp/internal/diag"
)

var codes = map[ErrorKind]diag.Code{
	ConflictingReturns:         diag.StbConflictingReturns,
	ReturnMismatch:             diag.StbReturnMismatch,
	UndeterminedTypeVariable:   diag.StbUndeterminedTypeVariable,
	UndeterminedEffectVariable: diag.StbUndeterminedEffectVariable,
	EffectsExceedDeclaration:   diag.StbEffectsExceedDeclaration,
}

// Report converts every error of results into a diagnostic.
func Report(r diag.Reporter, results []Result) {
	for _, res := range results {
		for _, err := range res.Errors {
			primary := res.Method.Span
			if len(err.Spans) > 0 {
				primary = err.Spans[0]
			}
			b := diag.ReportError(r, codes[err.Kind], primary, err.Error())
			for _, sp := range err.Spans[min(1, len(err.Spans)):] {
				b.WithNote(sp, "conflicting result here")
			}
			if primary != res.Method.Span {
				b.WithNote(res.Method.Span, "in "+res.Method.Qualified())
			}
			b.Emit()
		}
	}
}
