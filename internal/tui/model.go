// Package tui renders the interactive status screen: a clock, run
// counters, the next pending class, and the most recent log lines.
// The '[' ']' chord fires a manual attempt; 'q' requests a clean exit.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"attendbot/internal/metrics"
	"attendbot/internal/schedule"
	logx "attendbot/pkg/logx"
)

// Triggerer fires a manual attempt for the earliest pending event.
type Triggerer interface {
	TriggerManual() bool
}

type Options struct {
	ArmWindow time.Duration // chord window between '[' and ']'
	LogLines  int
}

const fireDebounce = 2 * time.Second

func (o Options) withDefaults() Options {
	if o.ArmWindow <= 0 {
		o.ArmWindow = 1500 * time.Millisecond
	}
	if o.LogLines <= 0 {
		o.LogLines = 5
	}
	return o
}

type tickMsg time.Time

// Model is the root Bubble Tea model.
type Model struct {
	opts Options
	keys KeyMap

	run   *metrics.Run
	latch *metrics.Latch
	set   *schedule.EventSet
	trig  Triggerer
	buf   *logx.RingBuffer

	width int
	now   time.Time

	armedAt  time.Time
	lastFire time.Time

	flash      string
	flashUntil time.Time
}

func New(opts Options, run *metrics.Run, latch *metrics.Latch, set *schedule.EventSet, trig Triggerer, buf *logx.RingBuffer) Model {
	return Model{
		opts:  opts.withDefaults(),
		keys:  DefaultKeyMap(),
		run:   run,
		latch: latch,
		set:   set,
		trig:  trig,
		buf:   buf,
		now:   time.Now(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		if m.latch != nil && m.latch.IsSet() {
			return m, tea.Quit
		}
		return m, tick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	now := time.Now()
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.latch != nil {
			m.latch.Set()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Arm):
		m.armedAt = now
		m.setFlash("armed: press ] within the window to trigger", now)
		return m, nil

	case key.Matches(msg, m.keys.Fire):
		if m.armedAt.IsZero() || now.Sub(m.armedAt) > m.opts.ArmWindow {
			m.armedAt = time.Time{}
			return m, nil
		}
		m.armedAt = time.Time{}
		if !m.lastFire.IsZero() && now.Sub(m.lastFire) < fireDebounce {
			m.setFlash("manual trigger debounced", now)
			return m, nil
		}
		m.lastFire = now
		if m.trig != nil && m.trig.TriggerManual() {
			m.setFlash("manual trigger fired", now)
		} else {
			m.setFlash("nothing to trigger", now)
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) setFlash(text string, now time.Time) {
	m.flash = text
	m.flashUntil = now.Add(3 * time.Second)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	flashStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("221"))
	logStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	logErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func (m Model) View() string {
	lines := make([]string, 0, 8+m.opts.LogLines)

	uptime := "-"
	var snap metrics.Snapshot
	if m.run != nil {
		snap = m.run.Snapshot()
		uptime = m.now.Sub(snap.Started).Truncate(time.Second).String()
	}

	lines = append(lines, titleStyle.Render("attendbot")+
		labelStyle.Render("  up ")+valueStyle.Render(uptime)+
		labelStyle.Render("  ")+valueStyle.Render(m.now.Format("15:04:05")))

	lines = append(lines, fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("attempted"), valueStyle.Render(fmt.Sprint(snap.Attempted)),
		labelStyle.Render("ok"), okStyle.Render(fmt.Sprint(snap.Succeeded)),
		labelStyle.Render("failed"), failStyle.Render(fmt.Sprint(snap.Failed)),
		labelStyle.Render("manual"), valueStyle.Render(fmt.Sprint(snap.Manual)),
	))

	lines = append(lines, m.nextEventLine())

	if m.flash != "" && m.now.Before(m.flashUntil) {
		lines = append(lines, flashStyle.Render(m.flash))
	} else {
		lines = append(lines, labelStyle.Render("[ then ] = manual trigger   q = quit"))
	}

	lines = append(lines, "")
	lines = append(lines, m.logLines()...)

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) nextEventLine() string {
	if m.set == nil {
		return labelStyle.Render("next: ") + valueStyle.Render("-")
	}
	ev, ok := m.set.PeekEarliest()
	if !ok {
		return labelStyle.Render("next: ") + valueStyle.Render("none pending")
	}
	in := ev.TriggerAt.Sub(m.now).Truncate(time.Second)
	if in < 0 {
		in = 0
	}
	return labelStyle.Render("next: ") +
		valueStyle.Render(ev.Name) +
		labelStyle.Render(" at ") + valueStyle.Render(ev.TriggerAt.Format("15:04")) +
		labelStyle.Render(" (in ") + valueStyle.Render(in.String()) + labelStyle.Render(")") +
		labelStyle.Render(fmt.Sprintf("  pending %d", m.set.Len()))
}

func (m Model) logLines() []string {
	if m.buf == nil {
		return nil
	}
	raw := m.buf.Last(m.opts.LogLines)
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		style := logStyle
		if l.Level == "error" || l.Level == "warn" {
			style = logErrStyle
		}
		text := fmt.Sprintf("%s %-5s %s", l.Time.Format("15:04:05"), l.Level, l.Message)
		if r := []rune(text); m.width > 0 && len(r) > m.width {
			text = string(r[:m.width])
		}
		out = append(out, style.Render(text))
	}
	if len(out) == 0 {
		out = append(out, logStyle.Render(strings.Repeat(" ", 1)))
	}
	return out
}

// Run blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		// Cancellation is a normal shutdown path.
		return nil
	}
	return err
}
