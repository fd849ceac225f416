package main

import (
	"fmt"
	"io"

	"mdisp/internal/observ"
)

func printPhaseTimings(out io.Writer, rep *observ.Report) {
	if out == nil || rep == nil {
		return
	}
	for _, p := range rep.Phases {
		if p.Note != "" {
			fmt.Fprintf(out, "%s %.1f ms (%s)\n", p.Name, p.DurationMS, p.Note)
			continue
		}
		fmt.Fprintf(out, "%s %.1f ms\n", p.Name, p.DurationMS)
	}
	fmt.Fprintf(out, "total %.1f ms\n", rep.TotalMS)
}
