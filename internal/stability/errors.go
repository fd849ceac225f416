package stability

import (
	"fmt"
	"strings"

	"mdisp/internal/registry"
	"mdisp/internal/source"
)

// ErrorKind classifies stability failures.
type ErrorKind uint8

const (
	ConflictingReturns ErrorKind = iota + 1
	ReturnMismatch
	UndeterminedTypeVariable
	UndeterminedEffectVariable
	EffectsExceedDeclaration
)

func (k ErrorKind) String() string {
	switch k {
	case ConflictingReturns:
		return "ConflictingReturns"
	case ReturnMismatch:
		return "ReturnMismatch"
	case UndeterminedTypeVariable:
		return "UndeterminedTypeVariable"
	case UndeterminedEffectVariable:
		return "UndeterminedEffectVariable"
	case EffectsExceedDeclaration:
		return "EffectsExceedDeclaration"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Error is one stability finding for a method.
type Error struct {
	Kind   ErrorKind
	Method *registry.Method
	Var    string        // undetermined variable name
	Types  []string      // conflicting result types, or [found, declared]
	Spans  []source.Span // result positions matching Types
	Extra  []string      // effects performed by the body but not declared
	Cause  error
}

func (e *Error) Error() string {
	name := e.Method.Name
	switch e.Kind {
	case ConflictingReturns:
		return fmt.Sprintf("%s: result positions have conflicting types %s", name, strings.Join(e.Types, " and "))
	case ReturnMismatch:
		return fmt.Sprintf("%s: body yields %s but the declared result is %s", name, e.Types[0], e.Types[1])
	case UndeterminedTypeVariable:
		return fmt.Sprintf("%s: result type variable %s does not occur in any parameter", name, e.Var)
	case UndeterminedEffectVariable:
		return fmt.Sprintf("%s: effect variable %s does not occur in any parameter", name, e.Var)
	case EffectsExceedDeclaration:
		return fmt.Sprintf("%s: body performs %s outside the declared effects", name, strings.Join(e.Extra, ", "))
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Cause }
