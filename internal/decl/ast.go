package decl

import "github.com/alecthomas/participle/v2/lexer"

// File is one parsed declaration file.
type File struct {
	Pos   lexer.Position
	Decls []*Decl `parser:"@@*"`
}

// Decl is a single top-level declaration.
type Decl struct {
	Pos        lexer.Position
	EndPos     lexer.Position
	Constraint *ConstraintDecl `parser:"  @@"`
	Impl       *ImplDecl       `parser:"| @@"`
	Subtype    *SubtypeDecl    `parser:"| @@"`
	Effect     *EffectDecl     `parser:"| @@"`
	Trait      *TraitDecl      `parser:"| @@"`
	Fn         *FnDecl         `parser:"| @@"`
	Call       *CallDecl       `parser:"| @@"`
	Dynamic    *DynamicDecl    `parser:"| @@"`
}

// ConstraintDecl: constraint Copy: Clone
type ConstraintDecl struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string   `parser:"'constraint' @Ident"`
	Supers []string `parser:"(':' @Ident ((',' | '+') @Ident)*)?"`
}

// ImplDecl: impl i32: Copy, Numeric
type ImplDecl struct {
	Pos         lexer.Position
	EndPos      lexer.Position
	Head        string   `parser:"'impl' @Ident ':'"`
	Constraints []string `parser:"@Ident ((',' | '+') @Ident)*"`
}

// SubtypeDecl: subtype u8 <: i32
type SubtypeDecl struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Sub    string `parser:"'subtype' @Ident"`
	Super  string `parser:"'<:' @Ident"`
}

// EffectDecl: effect IO
type EffectDecl struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string   `parser:"'effect' @Ident"`
	Params []string `parser:"('<' @Ident (',' @Ident)* '>')?"`
}

// TraitDecl groups methods under a trait name.
type TraitDecl struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Name    string    `parser:"'trait' @Ident"`
	Methods []*FnDecl `parser:"( '{' @@* '}' | @@ )"`
}

// FnDecl declares one method, optionally with a body skeleton.
type FnDecl struct {
	Pos        lexer.Position
	EndPos     lexer.Position
	Name       string       `parser:"'fn' @Ident"`
	TypeParams []*TypeParam `parser:"('<' @@ (',' @@)* '>')?"`
	Params     []*Param     `parser:"'(' (@@ (',' @@)*)? ')'"`
	Result     *Type        `parser:"('->' @@)?"`
	Effects    *Row         `parser:"('!' @@)?"`
	Body       *Block       `parser:"@@?"`
}

type TypeParam struct {
	Pos         lexer.Position
	Name        string   `parser:"@Ident"`
	Constraints []string `parser:"(':' @Ident ('+' @Ident)*)?"`
}

type Param struct {
	Pos  lexer.Position
	Name string `parser:"(@Ident ':')?"`
	Type *Type  `parser:"@@"`
}

// CallDecl is a static call site to resolve.
type CallDecl struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Name    string  `parser:"'call' @Ident"`
	Args    []*Type `parser:"'(' (@@ (',' @@)*)? ')'"`
	Effects *Row    `parser:"('!' @@)?"`
	Via     string  `parser:"('via' @Ident)?"`
}

// DynamicDecl is a call site served by the runtime table.
type DynamicDecl struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string  `parser:"'dynamic' @Ident"`
	Args   []*Type `parser:"'(' (@@ (',' @@)*)? ')'"`
}

// Type syntax.
type Type struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Fn     *FnType     `parser:"  @@"`
	Forall *ForallType `parser:"| @@"`
	Record *RecordType `parser:"| @@"`
	Named  *NamedType  `parser:"| @@"`
}

type FnType struct {
	Params  []*Type `parser:"'fn' '(' (@@ (',' @@)*)? ')'"`
	Result  *Type   `parser:"'->' @@"`
	Effects *Row    `parser:"('!' @@)?"`
}

type ForallType struct {
	Vars []string `parser:"'forall' @Ident+ '.'"`
	Body *Type    `parser:"@@"`
}

type RecordType struct {
	Fields []*FieldType `parser:"'{' (@@ (',' @@)*)?"`
	Tail   string       `parser:"('|' @Ident)? '}'"`
}

type FieldType struct {
	Pos  lexer.Position
	Name string `parser:"@Ident ':'"`
	Type *Type  `parser:"@@"`
}

type NamedType struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string  `parser:"@Ident"`
	Args   []*Type `parser:"('<' @@ (',' @@)* '>')?"`
}

// Row is an effect row: pure, or labels with an optional open tail.
type Row struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Pure   bool         `parser:"  @'pure'"`
	Labels []*NamedType `parser:"| '{' (@@ (',' @@)*)?"`
	Tail   string       `parser:"  ('|' @Ident)? '}'"`
}

// Block is a body skeleton; the last item without a trailing ';' is its value.
type Block struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Items  []*BodyItem `parser:"'{' @@* '}'"`
}

type BodyItem struct {
	Expr *BodyExpr `parser:"@@"`
	Semi bool      `parser:"@';'?"`
}

type BodyExpr struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	If      *IfExpr     `parser:"  @@"`
	Match   *MatchExpr  `parser:"| @@"`
	Return  *ReturnExpr `parser:"| @@"`
	Perform *NamedType  `parser:"| 'perform' @@"`
	Call    *BodyCall   `parser:"| @@"`
	Diverge bool        `parser:"| @'diverge'"`
	Do      *Block      `parser:"| 'do' @@"`
	Value   *Type       `parser:"| @@"`
}

type IfExpr struct {
	Then   *Block  `parser:"'if' @@"`
	ElseIf *IfExpr `parser:"('else' ( @@"`
	Else   *Block  `parser:"| @@ ))?"`
}

type MatchExpr struct {
	Arms []*Block `parser:"'match' '{' ('case' @@)* '}'"`
}

type ReturnExpr struct {
	Value *BodyExpr `parser:"'return' @@?"`
}

// BodyCall is an opaque call inside a body: call log -> Unit ! {IO}
type BodyCall struct {
	Name    string `parser:"'call' @Ident"`
	Result  *Type  `parser:"('->' @@)?"`
	Effects *Row   `parser:"('!' @@)?"`
}
