// Package ui renders live check progress in a terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"mdisp/internal/driver"
)

type phaseStatus uint8

const (
	statusQueued phaseStatus = iota
	statusRunning
	statusDone
)

func (s phaseStatus) String() string {
	switch s {
	case statusRunning:
		return "running"
	case statusDone:
		return "done"
	default:
		return "queued"
	}
}

type progressModel struct {
	title   string
	events  <-chan driver.PhaseEvent
	spinner spinner.Model
	prog    progress.Model
	items   []phaseItem
	index   map[string]int
	width   int
	done    bool
}

type phaseItem struct {
	name    string
	status  phaseStatus
	note    string
	elapsed time.Duration
}

type eventMsg driver.PhaseEvent
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model showing one row per check
// phase. It quits when events is closed.
func NewProgressModel(title string, phases []string, events <-chan driver.PhaseEvent) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]phaseItem, len(phases))
	index := make(map[string]int, len(phases))
	for i, name := range phases {
		items[i] = phaseItem{name: name}
		index[name] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(driver.PhaseEvent(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	nameWidth := 14
	noteWidth := max(m.width-nameWidth-24, 10)
	for _, item := range m.items {
		status := styleStatus(item.status).Render(fmt.Sprintf("%8s", item.status))
		line := fmt.Sprintf("  %s %s", status, runewidth.FillRight(item.name, nameWidth))
		if item.status == statusDone {
			line += fmt.Sprintf(" %7.1f ms  %s", float64(item.elapsed)/float64(time.Millisecond), truncate(item.note, noteWidth))
		}
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev driver.PhaseEvent) tea.Cmd {
	idx, ok := m.index[ev.Name]
	if !ok {
		return nil
	}
	item := &m.items[idx]
	switch ev.Status {
	case driver.PhaseStart:
		item.status = statusRunning
	case driver.PhaseEnd:
		item.status = statusDone
		item.elapsed = ev.Elapsed
		item.note = ev.Note
	}
	return m.prog.SetPercent(m.percent())
}

// percent counts a running phase as half done.
func (m *progressModel) percent() float64 {
	if len(m.items) == 0 {
		return 1
	}
	total := 0.0
	for _, item := range m.items {
		switch item.status {
		case statusDone:
			total++
		case statusRunning:
			total += 0.5
		}
	}
	return total / float64(len(m.items))
}

func styleStatus(status phaseStatus) lipgloss.Style {
	switch status {
	case statusDone:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case statusRunning:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
