// Package decl parses the declaration language and lowers it into the
// interned types, constraint lattice, method registry and call sites the
// dispatch checker consumes.
package decl

import (
	"errors"
	"fmt"

	"fortio.org/safecast"
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"mdisp/internal/diag"
	"mdisp/internal/source"
)

var (
	declLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Comment", Pattern: `//[^\n]*|#[^\n]*`},
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "Arrow", Pattern: `->`},
		{Name: "Sub", Pattern: `<:`},
		{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*`},
		{Name: "Punct", Pattern: `[(){}<>,:.|!+;]`},
	})

	declParser = participle.MustBuild[File](
		participle.Lexer(declLexer),
		participle.Elide("Comment", "Whitespace"),
		participle.UseLookahead(3),
	)
)

// Parse parses one declaration file. Syntax errors are reported as
// diagnostics and also returned.
func Parse(f *source.File, r diag.Reporter) (*File, error) {
	file, err := declParser.ParseBytes(f.Path, f.Content)
	if err == nil {
		return file, nil
	}
	sp := source.Span{File: f.ID}
	msg := err.Error()
	var perr participle.Error
	if errors.As(err, &perr) {
		off := offset(f, perr.Position())
		sp.Start, sp.End = off, off
		if int(off) < len(f.Content) {
			sp.End = off + 1
		}
		msg = perr.Message()
	}
	diag.ReportError(r, diag.SynUnexpectedToken, sp, msg).Emit()
	return nil, fmt.Errorf("%s: %w", f.Path, err)
}

// offset converts a lexer position into a byte offset clamped to the file.
func offset(f *source.File, pos lexer.Position) uint32 {
	off, err := safecast.Conv[uint32](max(pos.Offset, 0))
	if err != nil || int(off) > len(f.Content) {
		return uint32(len(f.Content)) //nolint:gosec // file sizes fit in uint32
	}
	return off
}

func spanOf(f *source.File, start, end lexer.Position) source.Span {
	sp := source.Span{File: f.ID, Start: offset(f, start), End: offset(f, end)}
	if sp.End < sp.Start {
		sp.End = sp.Start
	}
	return sp
}
