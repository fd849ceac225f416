package types

import (
	"slices"
	"strings"
)

const maxLabelDepth = 12

// Label returns a user-friendly label for a TypeID.
func Label(typesIn *Interner, id TypeID) string {
	var sb strings.Builder
	writeType(&sb, typesIn, id, 0)
	return sb.String()
}

// RowLabel renders an effect row: "pure", "{IO, Error<E>}", "{IO | e}".
func RowLabel(typesIn *Interner, id RowID) string {
	var sb strings.Builder
	writeRow(&sb, typesIn, id, 0)
	return sb.String()
}

// VarLabel returns the display name of a variable.
func VarLabel(typesIn *Interner, v VarID) string {
	if typesIn == nil || v == NoVarID {
		return "?"
	}
	info, ok := typesIn.VarInfo(v)
	if !ok {
		return "?"
	}
	return info.Name
}

// Labels renders a list of types separated by ", ".
func Labels(typesIn *Interner, list []TypeID) string {
	parts := make([]string, len(list))
	for i, id := range list {
		parts[i] = Label(typesIn, id)
	}
	return strings.Join(parts, ", ")
}

func writeType(sb *strings.Builder, in *Interner, id TypeID, depth int) {
	if id == NoTypeID || in == nil {
		sb.WriteByte('?')
		return
	}
	if depth > maxLabelDepth {
		sb.WriteString("...")
		return
	}
	tt, ok := in.Lookup(id)
	if !ok {
		sb.WriteByte('?')
		return
	}
	switch tt.Kind {
	case KindVar:
		sb.WriteString(VarLabel(in, tt.Var))
	case KindCon:
		info, _ := in.ConInfo(id)
		sb.WriteString(info.Name)
	case KindApp:
		info, _ := in.AppInfo(id)
		writeType(sb, in, info.Ctor, depth+1)
		sb.WriteByte('<')
		for i, arg := range info.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeType(sb, in, arg, depth+1)
		}
		sb.WriteByte('>')
	case KindFn:
		info, _ := in.FnInfo(id)
		sb.WriteString("fn(")
		for i, p := range info.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeType(sb, in, p, depth+1)
		}
		sb.WriteString(") -> ")
		writeType(sb, in, info.Result, depth+1)
		if info.Effects != in.Pure() {
			sb.WriteString(" ! ")
			writeRow(sb, in, info.Effects, depth+1)
		}
	case KindRecord:
		info, _ := in.RecordInfo(id)
		sb.WriteByte('{')
		for i, f := range info.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Name)
			sb.WriteString(": ")
			writeType(sb, in, f.Type, depth+1)
		}
		if info.Tail != NoVarID {
			if len(info.Fields) > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString("| ")
			sb.WriteString(VarLabel(in, info.Tail))
		}
		sb.WriteByte('}')
	case KindForall:
		info, _ := in.ForallInfo(id)
		sb.WriteString("forall")
		for _, v := range info.Vars {
			sb.WriteByte(' ')
			sb.WriteString(VarLabel(in, v))
		}
		sb.WriteString(". ")
		writeType(sb, in, info.Body, depth+1)
	default:
		sb.WriteByte('?')
	}
}

func writeRow(sb *strings.Builder, in *Interner, id RowID, depth int) {
	info, ok := in.RowInfo(id)
	if !ok {
		sb.WriteByte('?')
		return
	}
	if len(info.Labels) == 0 && info.Tail == NoVarID {
		sb.WriteString("pure")
		return
	}
	// labels are stored by TypeID; print them by name so output does not depend on intern order
	names := make([]string, len(info.Labels))
	for i, l := range info.Labels {
		var part strings.Builder
		writeType(&part, in, l, depth+1)
		names[i] = part.String()
	}
	slices.Sort(names)
	sb.WriteByte('{')
	sb.WriteString(strings.Join(names, ", "))
	if info.Tail != NoVarID {
		if len(names) > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("| ")
		sb.WriteString(VarLabel(in, info.Tail))
	}
	sb.WriteByte('}')
}
