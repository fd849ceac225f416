package dispatch

import (
	"fmt"
	"strings"

	"mdisp/internal/registry"
)

// ErrorKind classifies dispatch failures.
type ErrorKind uint8

const (
	NoMethodFound ErrorKind = iota + 1
	AmbiguousDispatch
	AmbiguousTrait
	EffectNotAllowed
)

func (k ErrorKind) String() string {
	switch k {
	case NoMethodFound:
		return "NoMethodFound"
	case AmbiguousDispatch:
		return "AmbiguousDispatch"
	case AmbiguousTrait:
		return "AmbiguousTrait"
	case EffectNotAllowed:
		return "EffectNotAllowed"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Rejection explains why a candidate was not applicable.
type Rejection struct {
	Method *registry.Method
	Reason error
}

// Error is a structured dispatch failure.
type Error struct {
	Kind       ErrorKind
	Name       string
	Args       []string            // rendered argument types
	Candidates []*registry.Method  // whole family for NoMethodFound, trait methods for AmbiguousTrait, the tie otherwise
	Rejections []Rejection         // per-candidate reasons for NoMethodFound
	Traits     []string            // competing traits for AmbiguousTrait
	Required   map[string][]string // method signature -> effects outside the context
	Available  string              // rendered effect context
}

func (e *Error) Error() string {
	call := e.Name + "(" + strings.Join(e.Args, ", ") + ")"
	switch e.Kind {
	case NoMethodFound:
		if len(e.Candidates) == 0 {
			return "no method named " + e.Name
		}
		return fmt.Sprintf("no method matches %s (%d candidates)", call, len(e.Candidates))
	case AmbiguousDispatch:
		return fmt.Sprintf("ambiguous call %s: %d equally specific methods", call, len(e.Candidates))
	case AmbiguousTrait:
		return fmt.Sprintf("ambiguous call %s: defined by traits %s; qualify the call", call, strings.Join(e.Traits, ", "))
	case EffectNotAllowed:
		return fmt.Sprintf("call %s performs effects not allowed by %s", call, e.Available)
	default:
		return e.Kind.String()
	}
}
