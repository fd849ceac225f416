package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mdisp/internal/diagfmt"
	"mdisp/internal/dispatch"
	"mdisp/internal/driver"
	"mdisp/internal/registry"
	"mdisp/internal/source"
	"mdisp/internal/types"
)

const resolveFile = "<resolve>"

var resolveCmd = &cobra.Command{
	Use:   "resolve [flags] <file.mdisp|directory>...",
	Short: "Explain how one call dispatches",
	Long: `Resolve a single call against the declared methods and print the applicable
methods, the maximally specific ones and the winner`,
	Example: `  mdisp resolve lib.mdisp --call 'add(i32, u8)'
  mdisp resolve lib/ --call 'show(i32)' --via Show --effects '{IO}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().String("call", "", "call to resolve, e.g. 'add(i32, u8)'")
	resolveCmd.Flags().String("via", "", "qualify the call with a trait")
	resolveCmd.Flags().String("effects", "", "effect context of the caller, e.g. '{IO}' (default: unconstrained)")
	_ = resolveCmd.MarkFlagRequired("call")
}

func runResolve(cmd *cobra.Command, args []string) error {
	g, err := readGlobalFlags(cmd)
	if err != nil {
		return err
	}
	call, err := cmd.Flags().GetString("call")
	if err != nil {
		return fmt.Errorf("failed to get call flag: %w", err)
	}
	via, err := cmd.Flags().GetString("via")
	if err != nil {
		return fmt.Errorf("failed to get via flag: %w", err)
	}
	effects, err := cmd.Flags().GetString("effects")
	if err != nil {
		return fmt.Errorf("failed to get effects flag: %w", err)
	}

	cfg, err := loadConfig(g, args)
	if err != nil {
		return err
	}
	opts, err := driverOptions(g, cfg, false)
	if err != nil {
		return err
	}
	opts.SkipTable = true

	res, site, err := resolveCall(cmd.Context(), args, opts, callDecl(call, effects, via))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if site == nil {
		// the call itself did not parse or lower
		diagfmt.Pretty(out, res.Bag, res.FileSet, diagfmt.PrettyOpts{Color: !color.NoColor, ShowNotes: true})
		exit(cmd, 1)
		return nil
	}
	if g.timings {
		printPhaseTimings(cmd.ErrOrStderr(), res.Timings)
	}
	in := res.Program.Interner
	if site.Err != nil {
		explainFailure(out, in, res.FileSet, site.Err)
		exit(cmd, 1)
		return nil
	}
	explainResolution(out, in, res.FileSet, site.Resolution)
	return nil
}

// resolveCall checks paths together with a one-line virtual file holding
// the call declaration. The returned site is nil when that line did not lower
// to a call.
func resolveCall(ctx context.Context, paths []string, opts driver.Options, callLine string) (*driver.Result, *driver.CallResult, error) {
	files, err := driver.ExpandPaths(paths)
	if err != nil {
		return nil, nil, err
	}
	fs := source.NewFileSet()
	loaded := make([]*source.File, 0, len(files)+1)
	for _, p := range files {
		id, err := fs.Load(p)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", p, err)
		}
		loaded = append(loaded, fs.Get(id))
	}
	vid := fs.AddVirtual(resolveFile, []byte(callLine))
	loaded = append(loaded, fs.Get(vid))

	res, err := driver.CheckFiles(ctx, fs, loaded, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve failed: %w", err)
	}
	for i := range res.Calls {
		if res.Calls[i].Site.Span.File == vid {
			return res, &res.Calls[i], nil
		}
	}
	return res, nil, nil
}

func callDecl(call, effects, via string) string {
	var sb strings.Builder
	sb.WriteString("call ")
	sb.WriteString(strings.TrimSpace(call))
	if effects = strings.TrimSpace(effects); effects != "" {
		sb.WriteString(" ! ")
		sb.WriteString(effects)
	}
	if via = strings.TrimSpace(via); via != "" {
		sb.WriteString(" via ")
		sb.WriteString(via)
	}
	sb.WriteByte('\n')
	return sb.String()
}

var headingColor = color.New(color.Bold)

func explainResolution(w io.Writer, in *types.Interner, fs *source.FileSet, r *dispatch.Resolution) {
	headingColor.Fprintln(w, "applicable:")
	methodTable(w, in, fs, r.Applicable)
	headingColor.Fprintln(w, "maximal:")
	methodTable(w, in, fs, r.Maximal)
	headingColor.Fprint(w, "winner: ")
	fmt.Fprintln(w, r.Method.Signature(in))
	sig := "(" + types.Labels(in, r.Params) + ") -> " + types.Label(in, r.Result)
	if r.Effects != in.Pure() {
		sig += " ! " + types.RowLabel(in, r.Effects)
	}
	fmt.Fprintf(w, "  instantiated: %s\n", sig)
}

func explainFailure(w io.Writer, in *types.Interner, fs *source.FileSet, e *dispatch.Error) {
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint(e.Kind.String()+":"), e.Error())
	switch e.Kind {
	case dispatch.NoMethodFound:
		if len(e.Rejections) == 0 {
			return
		}
		headingColor.Fprintln(w, "rejected:")
		rows := make([][]string, len(e.Rejections))
		for i, rj := range e.Rejections {
			rows[i] = []string{rj.Method.Signature(in), declaredAt(fs, rj.Method.Span), rj.Reason.Error()}
		}
		diagfmt.Table(w, []string{"method", "declared", "reason"}, rows)
	case dispatch.EffectNotAllowed:
		headingColor.Fprintln(w, "candidates:")
		rows := make([][]string, len(e.Candidates))
		for i, m := range e.Candidates {
			sig := m.Signature(in)
			rows[i] = []string{sig, declaredAt(fs, m.Span), strings.Join(e.Required[sig], ", ")}
		}
		diagfmt.Table(w, []string{"method", "declared", "outside " + e.Available}, rows)
	default:
		headingColor.Fprintln(w, "tied:")
		methodTable(w, in, fs, e.Candidates)
		if len(e.Traits) > 1 {
			fmt.Fprintf(w, "qualify the call with --via %s\n", strings.Join(e.Traits, " or --via "))
		}
	}
}

func methodTable(w io.Writer, in *types.Interner, fs *source.FileSet, ms []*registry.Method) {
	rows := make([][]string, len(ms))
	for i, m := range ms {
		rows[i] = []string{m.Signature(in), declaredAt(fs, m.Span)}
	}
	diagfmt.Table(w, []string{"method", "declared"}, rows)
}

func declaredAt(fs *source.FileSet, sp source.Span) string {
	f := fs.Get(sp.File)
	if f == nil {
		return "-"
	}
	start, _ := fs.Resolve(sp)
	return fmt.Sprintf("%s:%d", filepath.Base(f.Path), start.Line)
}
