package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// VarID identifies a type variable or an effect-row variable.
type VarID uint32

// NoVarID marks a closed row/record tail or a missing variable.
const NoVarID VarID = 0

// RowID identifies an interned effect row.
type RowID uint32

// NoRowID marks the absence of a row. Use Interner.Pure for the empty row.
const NoRowID RowID = 0

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindVar
	KindCon
	KindApp
	KindFn
	KindRecord
	KindForall
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindVar:
		return "var"
	case KindCon:
		return "con"
	case KindApp:
		return "app"
	case KindFn:
		return "fn"
	case KindRecord:
		return "record"
	case KindForall:
		return "forall"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Type is a compact descriptor for any supported type.
// Composite kinds keep their components in per-kind side tables addressed by Payload.
type Type struct {
	Kind    Kind
	Var     VarID  // for KindVar
	Payload uint32 // slot in the kind-specific info table
}

// VarSort separates ordinary type variables from effect-row variables.
// Record tails are ordinary type variables: they are bound to record types.
type VarSort uint8

const (
	SortType VarSort = iota
	SortRow
)

func (s VarSort) String() string {
	if s == SortRow {
		return "row"
	}
	return "type"
}

// VarInfo describes a variable. Rigid variables (declared type parameters and skolems)
// are never bound by unification.
type VarInfo struct {
	Name        string
	Sort        VarSort
	Rigid       bool
	Constraints []string // sorted, deduplicated
}

// ConInfo stores the name of a nominal constructor.
type ConInfo struct {
	Name string
}

// AppInfo stores a constructor application such as Vec<i32>.
type AppInfo struct {
	Ctor TypeID
	Args []TypeID
}

// FnInfo stores metadata for function types.
type FnInfo struct {
	Params  []TypeID // Parameter types (in order)
	Result  TypeID   // Return type
	Effects RowID    // Effect row; the pure row when the function performs nothing
}

// Field is a single named record field.
type Field struct {
	Name string
	Type TypeID
}

// RecordInfo stores record fields ordered by name and the optional row tail.
type RecordInfo struct {
	Fields []Field
	Tail   VarID // NoVarID for closed records
}

// Field returns the field type by name.
func (r RecordInfo) Field(name string) (TypeID, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return NoTypeID, false
}

// ForallInfo stores a quantified type.
type ForallInfo struct {
	Vars []VarID
	Body TypeID
}

// RowInfo is a flattened effect row: a label set plus an optional open tail.
// Labels are kept sorted by TypeID so equal sets intern to the same RowID.
type RowInfo struct {
	Labels []TypeID
	Tail   VarID
}

// Open reports whether the row has a tail variable.
func (r RowInfo) Open() bool { return r.Tail != NoVarID }
