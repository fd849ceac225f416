package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mdisp/internal/diagfmt"
	"mdisp/internal/driver"
	"mdisp/internal/rtdispatch"
	"mdisp/internal/types"
)

var tableCmd = &cobra.Command{
	Use:   "table [flags] <file.mdisp|directory>...",
	Short: "Build and print the runtime dispatch table",
	Long: `Build the runtime dispatch table for every ground method and declared dynamic
call, replay the dynamic calls through it and optionally save or verify a table image`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTable,
}

func init() {
	tableCmd.Flags().String("format", "pretty", "output format (pretty|json|yaml)")
	tableCmd.Flags().StringP("out", "o", "", "write the table image to this file")
	tableCmd.Flags().String("load", "", "load a table image and check it against the declarations")
}

type tablePayload struct {
	BuildID    string             `json:"build_id" yaml:"build_id"`
	Options    rtdispatch.Options `json:"options" yaml:"options"`
	Entries    []tableEntry       `json:"entries" yaml:"entries"`
	Collisions []tableCollision   `json:"collisions,omitempty" yaml:"collisions,omitempty"`
	Replay     []replayRow        `json:"replay,omitempty" yaml:"replay,omitempty"`
	Stats      rtdispatch.Stats   `json:"stats" yaml:"stats"`
}

type tableEntry struct {
	Name         string   `json:"name" yaml:"name"`
	Args         []string `json:"args" yaml:"args"`
	Fingerprints []string `json:"fingerprints" yaml:"fingerprints"`
	Method       string   `json:"method" yaml:"method"`
}

type tableCollision struct {
	Name         string   `json:"name" yaml:"name"`
	Fingerprints []string `json:"fingerprints" yaml:"fingerprints"`
	Methods      []string `json:"methods" yaml:"methods"`
}

type replayRow struct {
	Call   string `json:"call" yaml:"call"`
	Tier   string `json:"tier,omitempty" yaml:"tier,omitempty"`
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

func runTable(cmd *cobra.Command, args []string) error {
	g, err := readGlobalFlags(cmd)
	if err != nil {
		return err
	}
	formatStr, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	format, err := diagfmt.ParseFormat(formatStr)
	if err != nil {
		return err
	}
	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return fmt.Errorf("failed to get out flag: %w", err)
	}
	loadPath, err := cmd.Flags().GetString("load")
	if err != nil {
		return fmt.Errorf("failed to get load flag: %w", err)
	}

	cfg, err := loadConfig(g, args)
	if err != nil {
		return err
	}
	opts, err := driverOptions(g, cfg, false)
	if err != nil {
		return err
	}
	res, err := driver.Check(cmd.Context(), args, opts)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}
	if res.Bag.HasErrors() {
		diagfmt.Pretty(cmd.ErrOrStderr(), res.Bag, res.FileSet, diagfmt.PrettyOpts{Color: !color.NoColor, ShowNotes: true})
		dumpTraceOnFailure(cmd)
		exit(cmd, 1)
		return nil
	}

	table := res.Table
	if loadPath != "" {
		table, err = loadImage(loadPath, res)
		if err != nil {
			return err
		}
	}
	if outPath != "" {
		if err := saveImage(outPath, table); err != nil {
			return err
		}
	}

	in := res.Program.Interner
	payload := tablePayload{
		BuildID: table.BuildID().String(),
		Options: table.Options(),
	}
	for _, e := range table.Entries() {
		payload.Entries = append(payload.Entries, tableEntry{
			Name:         e.Name,
			Args:         e.Args,
			Fingerprints: hexAll(e.Fingerprints),
			Method:       e.Method.Signature(in),
		})
	}
	for _, c := range table.Collisions() {
		sigs := make([]string, len(c.Methods))
		for i, m := range c.Methods {
			sigs[i] = m.Signature(in)
		}
		payload.Collisions = append(payload.Collisions, tableCollision{Name: c.Name, Fingerprints: hexAll(c.Fingerprints), Methods: sigs})
	}
	for _, d := range res.Program.Dynamic {
		row := replayRow{Call: d.Name + "(" + types.Labels(in, d.Args) + ")"}
		m, tier, err := table.Lookup(d.Name, rtdispatch.DescribeAll(in, d.Args))
		if err != nil {
			row.Error = err.Error()
		} else {
			row.Tier = tier.String()
			row.Method = m.Signature(in)
		}
		payload.Replay = append(payload.Replay, row)
	}
	payload.Stats = table.Stats()

	out := cmd.OutOrStdout()
	switch format {
	case diagfmt.FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	case diagfmt.FormatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(payload); err != nil {
			return err
		}
		return enc.Close()
	}
	renderTablePretty(out, payload, g.quiet)
	if g.timings {
		printPhaseTimings(cmd.ErrOrStderr(), res.Timings)
	}
	return nil
}

func renderTablePretty(w io.Writer, p tablePayload, quiet bool) {
	rows := make([][]string, len(p.Entries))
	for i, e := range p.Entries {
		rows[i] = []string{e.Name, strings.Join(e.Args, ", "), strings.Join(e.Fingerprints, " "), e.Method}
	}
	diagfmt.Table(w, []string{"family", "args", "fingerprints", "method"}, rows)
	if len(p.Collisions) > 0 {
		fmt.Fprintln(w)
		headingColor.Fprintln(w, "collisions:")
		for _, c := range p.Collisions {
			fmt.Fprintf(w, "  %s [%s]: %s\n", c.Name, strings.Join(c.Fingerprints, " "), strings.Join(c.Methods, "; "))
		}
	}
	if len(p.Replay) > 0 {
		fmt.Fprintln(w)
		headingColor.Fprintln(w, "dynamic calls:")
		rows := make([][]string, len(p.Replay))
		for i, r := range p.Replay {
			target := r.Method
			if r.Error != "" {
				target = color.RedString(r.Error)
			}
			rows[i] = []string{r.Call, r.Tier, target}
		}
		diagfmt.Table(w, []string{"call", "tier", "method"}, rows)
	}
	if quiet {
		return
	}
	fmt.Fprintf(w, "\nbuild %s: %d entries, %d collisions, fast=%d guarded=%d cache=%d slow=%d failed=%d\n",
		p.BuildID, len(p.Entries), len(p.Collisions),
		p.Stats.FastHits, p.Stats.GuardedHits, p.Stats.CacheHits, p.Stats.SlowResolutions, p.Stats.Failures)
}

func saveImage(path string, t *rtdispatch.Table) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create table image: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return t.WriteImage(f)
}

func loadImage(path string, res *driver.Result) (*rtdispatch.Table, error) {
	// #nosec G304 -- path is provided by the user
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table image: %w", err)
	}
	defer f.Close()
	t, err := rtdispatch.ReadImage(f, res.Resolver)
	if errors.Is(err, rtdispatch.ErrImageMismatch) {
		return nil, fmt.Errorf("%s was built from different declarations: %w", path, err)
	}
	return t, err
}

func hexAll(fps []uint32) []string {
	out := make([]string, len(fps))
	for i, fp := range fps {
		out[i] = fmt.Sprintf("%06x", fp)
	}
	return out
}
