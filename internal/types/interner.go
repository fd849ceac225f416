package types

import (
	"fmt"
	"slices"
	"strconv"
	"sync"

	"fortio.org/safecast"
	"golang.org/x/text/unicode/norm"
)

// Interner provides stable TypeIDs by hashing structural descriptors.
// It is safe for concurrent use: unification interns the types it builds
// while independent checking tasks run in parallel.
type Interner struct {
	mu       sync.RWMutex
	types    []Type
	index    map[string]TypeID
	cons     []ConInfo
	apps     []AppInfo
	fns      []FnInfo
	records  []RecordInfo
	foralls  []ForallInfo
	rows     []RowInfo
	rowIndex map[string]RowID
	vars     []VarInfo
	varTypes []TypeID
	pure     RowID
}

// NewInterner constructs an interner with the pure effect row pre-registered.
func NewInterner() *Interner {
	in := &Interner{
		index:    make(map[string]TypeID, 64),
		rowIndex: make(map[string]RowID, 16),
	}
	// reserve 0 as invalid sentinel everywhere
	in.types = append(in.types, Type{Kind: KindInvalid})
	in.rows = append(in.rows, RowInfo{})
	in.vars = append(in.vars, VarInfo{})
	in.varTypes = append(in.varTypes, NoTypeID)
	in.pure = in.Row(nil, NoVarID)
	return in
}

// Pure returns the closed empty effect row.
func (in *Interner) Pure() RowID { return in.pure }

// NewVar allocates a variable. Constraints are normalized (sorted, deduplicated).
func (in *Interner) NewVar(name string, sort VarSort, rigid bool, constraints ...string) VarID {
	cs := normalizeConstraints(constraints)
	in.mu.Lock()
	defer in.mu.Unlock()
	n, err := safecast.Conv[uint32](len(in.vars))
	if err != nil {
		panic(fmt.Errorf("vars overflow: %w", err))
	}
	id := VarID(n)
	if name == "" {
		name = "t" + strconv.FormatUint(uint64(n), 10)
	}
	in.vars = append(in.vars, VarInfo{Name: norm.NFC.String(name), Sort: sort, Rigid: rigid, Constraints: cs})
	in.varTypes = append(in.varTypes, NoTypeID)
	return id
}

// Fresh allocates a flexible variable of the given sort with the given constraints.
func (in *Interner) Fresh(sort VarSort, constraints ...string) VarID {
	return in.NewVar("", sort, false, constraints...)
}

// Skolem allocates a rigid variable standing for an unknown but fixed type.
func (in *Interner) Skolem(name string, sort VarSort, constraints ...string) VarID {
	return in.NewVar("!"+name, sort, true, constraints...)
}

// VarInfo returns metadata for a variable.
func (in *Interner) VarInfo(v VarID) (VarInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if v == NoVarID || int(v) >= len(in.vars) {
		return VarInfo{}, false
	}
	return in.vars[v], true
}

// Var returns the type standing for a type variable.
func (in *Interner) Var(v VarID) TypeID {
	in.mu.RLock()
	if int(v) < len(in.varTypes) && in.varTypes[v] != NoTypeID {
		id := in.varTypes[v]
		in.mu.RUnlock()
		return id
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if v == NoVarID || int(v) >= len(in.vars) {
		panic("types: invalid VarID")
	}
	if id := in.varTypes[v]; id != NoTypeID {
		return id
	}
	id := in.appendType(Type{Kind: KindVar, Var: v}, "")
	in.varTypes[v] = id
	return id
}

// Con interns a nominal constructor. Names are NFC-normalized.
func (in *Interner) Con(name string) TypeID {
	name = norm.NFC.String(name)
	key := "c" + name
	if id, ok := in.find(key); ok {
		return id
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.index[key]; ok {
		return id
	}
	slot := appendSlot(&in.cons, ConInfo{Name: name})
	return in.appendType(Type{Kind: KindCon, Payload: slot}, key)
}

// App interns an application. Nested applications are flattened:
// App(App(Result, E), T) becomes Result<E, T>.
func (in *Interner) App(ctor TypeID, args ...TypeID) TypeID {
	if len(args) == 0 {
		return ctor
	}
	if inner, ok := in.AppInfo(ctor); ok {
		merged := make([]TypeID, 0, len(inner.Args)+len(args))
		merged = append(merged, inner.Args...)
		merged = append(merged, args...)
		ctor, args = inner.Ctor, merged
	}
	key := compositeKey('a', uint64(ctor), ids(args)...)
	if id, ok := in.find(key); ok {
		return id
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.index[key]; ok {
		return id
	}
	slot := appendSlot(&in.apps, AppInfo{Ctor: ctor, Args: slices.Clone(args)})
	return in.appendType(Type{Kind: KindApp, Payload: slot}, key)
}

// Fn interns a function type. NoRowID effects mean pure.
func (in *Interner) Fn(params []TypeID, result TypeID, effects RowID) TypeID {
	if effects == NoRowID {
		effects = in.pure
	}
	parts := append(ids(params), uint64(result), uint64(effects))
	key := compositeKey('f', uint64(len(params)), parts...)
	if id, ok := in.find(key); ok {
		return id
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.index[key]; ok {
		return id
	}
	slot := appendSlot(&in.fns, FnInfo{Params: slices.Clone(params), Result: result, Effects: effects})
	return in.appendType(Type{Kind: KindFn, Payload: slot}, key)
}

// Record interns a record type. Fields are ordered by name; duplicate names panic.
func (in *Interner) Record(fields []Field, tail VarID) TypeID {
	sorted := make([]Field, len(fields))
	for i, f := range fields {
		sorted[i] = Field{Name: norm.NFC.String(f.Name), Type: f.Type}
	}
	slices.SortFunc(sorted, func(a, b Field) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	buf := []byte{'r'}
	buf = strconv.AppendUint(buf, uint64(tail), 36)
	for i, f := range sorted {
		if i > 0 && sorted[i-1].Name == f.Name {
			panic(fmt.Sprintf("types: duplicate record field %q", f.Name))
		}
		buf = append(buf, ';')
		buf = append(buf, f.Name...)
		buf = append(buf, ':')
		buf = strconv.AppendUint(buf, uint64(f.Type), 36)
	}
	key := string(buf)
	if id, ok := in.find(key); ok {
		return id
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.index[key]; ok {
		return id
	}
	slot := appendSlot(&in.records, RecordInfo{Fields: sorted, Tail: tail})
	return in.appendType(Type{Kind: KindRecord, Payload: slot}, key)
}

// Forall interns a quantified type. An empty binder list returns body unchanged.
func (in *Interner) Forall(vars []VarID, body TypeID) TypeID {
	if len(vars) == 0 {
		return body
	}
	parts := make([]uint64, 0, len(vars)+1)
	for _, v := range vars {
		parts = append(parts, uint64(v))
	}
	parts = append(parts, uint64(body))
	key := compositeKey('q', uint64(len(vars)), parts...)
	if id, ok := in.find(key); ok {
		return id
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.index[key]; ok {
		return id
	}
	slot := appendSlot(&in.foralls, ForallInfo{Vars: slices.Clone(vars), Body: body})
	return in.appendType(Type{Kind: KindForall, Payload: slot}, key)
}

// Row interns an effect row. Labels are treated as a set.
func (in *Interner) Row(labels []TypeID, tail VarID) RowID {
	set := slices.Clone(labels)
	slices.Sort(set)
	set = slices.Compact(set)
	key := compositeKey('e', uint64(tail), ids(set)...)

	in.mu.RLock()
	if id, ok := in.rowIndex[key]; ok {
		in.mu.RUnlock()
		return id
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.rowIndex[key]; ok {
		return id
	}
	n, err := safecast.Conv[uint32](len(in.rows))
	if err != nil {
		panic(fmt.Errorf("rows overflow: %w", err))
	}
	id := RowID(n)
	in.rows = append(in.rows, RowInfo{Labels: set, Tail: tail})
	in.rowIndex[key] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// The info accessors below return views into interner storage; callers must not modify slices.

// ConInfo returns constructor metadata.
func (in *Interner) ConInfo(id TypeID) (ConInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	tt, ok := in.lookupLocked(id, KindCon)
	if !ok {
		return ConInfo{}, false
	}
	return in.cons[tt.Payload], true
}

// AppInfo returns application metadata.
func (in *Interner) AppInfo(id TypeID) (AppInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	tt, ok := in.lookupLocked(id, KindApp)
	if !ok {
		return AppInfo{}, false
	}
	return in.apps[tt.Payload], true
}

// FnInfo retrieves function type metadata by TypeID.
func (in *Interner) FnInfo(id TypeID) (FnInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	tt, ok := in.lookupLocked(id, KindFn)
	if !ok {
		return FnInfo{}, false
	}
	return in.fns[tt.Payload], true
}

// RecordInfo returns record metadata.
func (in *Interner) RecordInfo(id TypeID) (RecordInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	tt, ok := in.lookupLocked(id, KindRecord)
	if !ok {
		return RecordInfo{}, false
	}
	return in.records[tt.Payload], true
}

// ForallInfo returns quantifier metadata.
func (in *Interner) ForallInfo(id TypeID) (ForallInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	tt, ok := in.lookupLocked(id, KindForall)
	if !ok {
		return ForallInfo{}, false
	}
	return in.foralls[tt.Payload], true
}

// RowInfo returns the flattened label set of an effect row.
func (in *Interner) RowInfo(id RowID) (RowInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id == NoRowID || int(id) >= len(in.rows) {
		return RowInfo{}, false
	}
	return in.rows[id], true
}

// HeadName returns the constructor name of a Con or App type, or "".
func (in *Interner) HeadName(id TypeID) string {
	if app, ok := in.AppInfo(id); ok {
		id = app.Ctor
	}
	if con, ok := in.ConInfo(id); ok {
		return con.Name
	}
	return ""
}

func (in *Interner) find(key string) (TypeID, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	id, ok := in.index[key]
	return id, ok
}

func (in *Interner) lookupLocked(id TypeID, kind Kind) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	tt := in.types[id]
	if tt.Kind != kind {
		return Type{}, false
	}
	return tt, true
}

// appendType adds the descriptor to the storage; caller holds the write lock.
func (in *Interner) appendType(t Type, key string) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	if key != "" {
		in.index[key] = id
	}
	return id
}

func appendSlot[T any](table *[]T, info T) uint32 {
	*table = append(*table, info)
	slot, err := safecast.Conv[uint32](len(*table) - 1)
	if err != nil {
		panic(fmt.Errorf("info table overflow: %w", err))
	}
	return slot
}

func compositeKey(tag byte, head uint64, parts ...uint64) string {
	buf := make([]byte, 0, 8+len(parts)*4)
	buf = append(buf, tag)
	buf = strconv.AppendUint(buf, head, 36)
	for _, p := range parts {
		buf = append(buf, ',')
		buf = strconv.AppendUint(buf, p, 36)
	}
	return string(buf)
}

func ids[T ~uint32](in []T) []uint64 {
	out := make([]uint64, len(in))
	for i, v := range in {
		out[i] = uint64(v)
	}
	return out
}

func normalizeConstraints(cs []string) []string {
	if len(cs) == 0 {
		return nil
	}
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		if c == "" {
			continue
		}
		out = append(out, norm.NFC.String(c))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
