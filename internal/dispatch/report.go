package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"mdisp/internal/diag"
	"mdisp/internal/source"
	"mdisp/internal/types"
	"mdisp/internal/unify"
)

var codes = map[ErrorKind]diag.Code{
	NoMethodFound:     diag.DspNoMethodFound,
	AmbiguousDispatch: diag.DspAmbiguousDispatch,
	AmbiguousTrait:    diag.DspAmbiguousTrait,
	EffectNotAllowed:  diag.DspEffectNotAllowed,
}

// Report turns a resolution failure at a call site into one diagnostic with
// a note per candidate declaration.
func Report(r diag.Reporter, in *types.Interner, err *Error, at source.Span) {
	b := diag.ReportError(r, codes[err.Kind], at, err.Error())
	switch err.Kind {
	case NoMethodFound:
		for _, rej := range err.Rejections {
			b.WithNote(rej.Method.Span, "rejected "+rej.Method.Signature(in)+": "+reason(rej.Reason))
		}
	case EffectNotAllowed:
		for _, m := range err.Candidates {
			sig := m.Signature(in)
			b.WithNote(m.Span, fmt.Sprintf("%s also performs %s", sig, strings.Join(err.Required[sig], ", ")))
		}
	case AmbiguousTrait:
		for _, m := range err.Candidates {
			b.WithNote(m.Span, "candidate "+m.Signature(in))
		}
		b.WithNote(at, "qualify the call with via "+strings.Join(err.Traits, " or via "))
	default:
		for _, m := range err.Candidates {
			b.WithNote(m.Span, "candidate "+m.Signature(in))
		}
	}
	b.Emit()
}

func reason(err error) string {
	var ue *unify.Error
	if errors.As(err, &ue) {
		return "[" + ue.Kind.Code().ID() + "] " + ue.Error()
	}
	return err.Error()
}
