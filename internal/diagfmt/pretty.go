package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"mdisp/internal/diag"
	"mdisp/internal/source"
)

type palette struct {
	sev  map[diag.Severity]*color.Color
	code *color.Color
	loc  *color.Color
	mark *color.Color
	note *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		sev: map[diag.Severity]*color.Color{
			diag.SevError:   color.New(color.FgRed, color.Bold),
			diag.SevWarning: color.New(color.FgYellow, color.Bold),
			diag.SevInfo:    color.New(color.FgBlue, color.Bold),
		},
		code: color.New(color.Bold),
		loc:  color.New(color.FgCyan),
		mark: color.New(color.FgRed),
		note: color.New(color.FgGreen),
	}
	for _, c := range append([]*color.Color{p.code, p.loc, p.mark, p.note}, p.sev[diag.SevError], p.sev[diag.SevWarning], p.sev[diag.SevInfo]) {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Pretty renders diagnostics for humans. It walks bag.Items(), which the
// caller is expected to have sorted, and prints for each:
//
//	<path>:<line>:<col>: <SEV> <CODE>: <message>
//
// followed by the source line with a ^~~~ marker under the span and, with
// ShowNotes, every note in the same shape.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	p := newPalette(opts.Color)
	items := bag.Items()
	if opts.Max > 0 && opts.Max < len(items) {
		items = items[:opts.Max]
	}
	for _, d := range items {
		fmt.Fprintf(w, "%s%s %s: %s\n",
			location(p, fs, d.Primary, opts),
			p.sev[d.Severity].Sprint(d.Severity.String()),
			p.code.Sprint(d.Code.ID()),
			d.Message)
		snippet(w, p, fs, d.Primary, opts.Context)
		if !opts.ShowNotes {
			continue
		}
		for _, n := range d.Notes {
			fmt.Fprintf(w, "  %s %s%s\n", p.note.Sprint("note:"), location(p, fs, n.Span, opts), n.Msg)
			snippet(w, p, fs, n.Span, 0)
		}
	}
}

func location(p palette, fs *source.FileSet, sp source.Span, opts PrettyOpts) string {
	f := fs.Get(sp.File)
	if f == nil {
		return ""
	}
	start, _ := fs.Resolve(sp)
	return p.loc.Sprintf("%s:%d:%d", formatPath(f, opts.PathMode, opts.BaseDir), start.Line, start.Col) + ": "
}

func snippet(w io.Writer, p palette, fs *source.FileSet, sp source.Span, context int) {
	f := fs.Get(sp.File)
	if f == nil || len(f.Content) == 0 {
		return
	}
	start, end := fs.Resolve(sp)
	first := start.Line - min(start.Line-1, uint32(max(context, 0)))
	last := min(start.Line+uint32(max(context, 0)), uint32(len(f.LineIdx)+1)) // #nosec G115 -- bounded by file size
	gutter := len(fmt.Sprint(last))
	for ln := first; ln <= last; ln++ {
		text := strings.ReplaceAll(f.Line(ln), "\t", "    ")
		fmt.Fprintf(w, "  %*d | %s\n", gutter, ln, text)
		if ln != start.Line {
			continue
		}
		raw := f.Line(ln)
		pad := displayWidth(raw, start.Col-1)
		width := 1
		if end.Line == start.Line && end.Col > start.Col {
			width = max(1, displayWidth(raw, end.Col-1)-pad)
		} else if end.Line > start.Line {
			width = max(1, runewidth.StringWidth(strings.ReplaceAll(raw, "\t", "    "))-pad)
		}
		fmt.Fprintf(w, "  %s | %s%s\n", strings.Repeat(" ", gutter), strings.Repeat(" ", pad),
			p.mark.Sprint("^"+strings.Repeat("~", width-1)))
	}
}

// displayWidth is the terminal width of the first n bytes of line.
func displayWidth(line string, n uint32) int {
	if int(n) > len(line) {
		n = uint32(len(line)) // #nosec G115 -- bounded by the line length
	}
	return runewidth.StringWidth(strings.ReplaceAll(line[:n], "\t", "    "))
}

// Table writes rows as aligned columns; widths account for wide runes.
func Table(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, r := range rows {
		for i := range min(len(r), len(widths)) {
			widths[i] = max(widths[i], runewidth.StringWidth(r[i]))
		}
	}
	line := func(cells []string) {
		var sb strings.Builder
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if i == len(widths)-1 {
				sb.WriteString(cell)
				break
			}
			sb.WriteString(runewidth.FillRight(cell, widths[i]))
			sb.WriteString("  ")
		}
		fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
	}
	line(header)
	sep := make([]string, len(widths))
	for i, wd := range widths {
		sep[i] = strings.Repeat("-", wd)
	}
	line(sep)
	for _, r := range rows {
		line(r)
	}
}

// Summary renders "N errors, M warnings" for the whole bag.
func Summary(bag *diag.Bag) string {
	var errs, warns int
	for _, d := range bag.Items() {
		switch d.Severity {
		case diag.SevError:
			errs++
		case diag.SevWarning:
			warns++
		}
	}
	s := fmt.Sprintf("%d %s, %d %s", errs, plural(errs, "error"), warns, plural(warns, "warning"))
	if n := bag.Dropped(); n > 0 {
		s += fmt.Sprintf(" (%d more not shown)", n)
	}
	return s
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
