package main

import (
	"context"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"mdisp/internal/driver"
	"mdisp/internal/ui"
)

type checkOutcome struct {
	result *driver.Result
	err    error
}

// runCheckWithUI runs the check while a progress view consumes its phase
// events on stdout.
func runCheckWithUI(ctx context.Context, title string, paths []string, opts driver.Options) (*driver.Result, error) {
	events := make(chan driver.PhaseEvent, 64)
	outcomeCh := make(chan checkOutcome, 1)

	go func() {
		opts.Observer = func(ev driver.PhaseEvent) { events <- ev }
		res, err := driver.Check(ctx, paths, opts)
		outcomeCh <- checkOutcome{result: res, err: err}
		close(events)
	}()

	program := tea.NewProgram(ui.NewProgressModel(title, opts.Phases(), events), tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	if uiErr != nil {
		// keep the producer from blocking on a view that is gone
		go func() {
			for range events {
			}
		}()
	}
	outcome := <-outcomeCh
	if uiErr != nil && outcome.err == nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}

func useProgressUI(mode string) (bool, error) {
	switch strings.TrimSpace(strings.ToLower(mode)) {
	case "", "auto":
		return isTerminal(os.Stdout), nil
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, errUnknownValue("ui", mode, "auto|on|off")
}
