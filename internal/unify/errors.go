package unify

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies unification failures.
type ErrorKind uint8

const (
	ErrTypeMismatch ErrorKind = iota + 1
	ErrArityMismatch
	ErrInfiniteType
	ErrEffectMismatch
	ErrRecordFieldMismatch
	ErrConstraintViolation
	ErrDepthExceeded
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTypeMismatch:
		return "TypeMismatch"
	case ErrArityMismatch:
		return "ArityMismatch"
	case ErrInfiniteType:
		return "InfiniteType"
	case ErrEffectMismatch:
		return "EffectMismatch"
	case ErrRecordFieldMismatch:
		return "RecordFieldMismatch"
	case ErrConstraintViolation:
		return "ConstraintViolation"
	case ErrDepthExceeded:
		return "DepthExceeded"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Error is a structured unification failure. Types are rendered at the
// point of failure with the partial substitution applied.
type Error struct {
	Kind       ErrorKind
	Left       string
	Right      string
	Missing    []string // record fields or effect labels the left side lacks
	Extra      []string // record fields or effect labels the right side does not accept
	Var        string   // variable involved in InfiniteType / ConstraintViolation
	Constraint string   // violated constraint
	Want, Got  int      // arities for ArityMismatch
	Arg        int      // argument position for MatchArgs failures, -1 otherwise
	Detail     string
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Arg >= 0 {
		fmt.Fprintf(&sb, "argument %d: ", e.Arg+1)
	}
	switch e.Kind {
	case ErrTypeMismatch:
		fmt.Fprintf(&sb, "type mismatch: %s vs %s", e.Left, e.Right)
	case ErrArityMismatch:
		fmt.Fprintf(&sb, "arity mismatch: expected %d, got %d", e.Want, e.Got)
		if e.Left != "" {
			fmt.Fprintf(&sb, " (%s vs %s)", e.Left, e.Right)
		}
	case ErrInfiniteType:
		fmt.Fprintf(&sb, "infinite type: %s occurs in %s", e.Var, e.Right)
	case ErrEffectMismatch:
		fmt.Fprintf(&sb, "effect mismatch: %s vs %s", e.Left, e.Right)
		writeNames(&sb, e.Missing, e.Extra)
	case ErrRecordFieldMismatch:
		fmt.Fprintf(&sb, "record field mismatch: %s vs %s", e.Left, e.Right)
		writeNames(&sb, e.Missing, e.Extra)
	case ErrConstraintViolation:
		fmt.Fprintf(&sb, "%s does not satisfy %s required by %s", e.Right, e.Constraint, e.Var)
	case ErrDepthExceeded:
		sb.WriteString("unification depth limit exceeded")
	default:
		sb.WriteString(e.Kind.String())
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

func writeNames(sb *strings.Builder, missing, extra []string) {
	if len(missing) > 0 {
		fmt.Fprintf(sb, "; missing %s", strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		fmt.Fprintf(sb, "; unexpected %s", strings.Join(extra, ", "))
	}
}

// KindOf extracts the unification error kind from err, or 0.
func KindOf(err error) ErrorKind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return 0
}
