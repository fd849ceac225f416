package diag

import (
	"mdisp/internal/source"
)

// Note adds secondary context to a diagnostic.
type Note struct {
	Span source.Span `msgpack:"span"`
	Msg  string      `msgpack:"msg"`
}

// Diagnostic is a single finding of one analysis pass.
type Diagnostic struct {
	Severity Severity    `msgpack:"sev"`
	Code     Code        `msgpack:"code"`
	Message  string      `msgpack:"msg"`
	Primary  source.Span `msgpack:"span"`
	Notes    []Note      `msgpack:"notes,omitempty"`
}

// New builds a diagnostic without notes.
func New(sev Severity, code Code, primary source.Span, msg string) Diagnostic {
	return Diagnostic{Severity: sev, Code: code, Primary: primary, Message: msg}
}

// NewError is a shortcut for SevError diagnostics.
func NewError(code Code, primary source.Span, msg string) Diagnostic {
	return New(SevError, code, primary, msg)
}

// WithNote returns a copy of d with an extra note.
func (d Diagnostic) WithNote(sp source.Span, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Span: sp, Msg: msg})
	return d
}
