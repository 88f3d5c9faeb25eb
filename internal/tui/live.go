package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/arvel-h/pumplab/internal/sim"
)

const (
	graphWidth      = 64
	graphHeight     = 8
	historyCapacity = 600
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)

	normalBanner   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("42")).Padding(0, 2).Bold(true)
	glitchBanner   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")).Padding(0, 2).Bold(true)
	blockageBanner = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("160")).Padding(0, 2).Bold(true)
	offlineBanner  = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("240")).Padding(0, 2).Bold(true)
)

type TickMsg time.Time

// Model steps the control loop one sample per tick and plots each
// controller's measured volume against the target.
type Model struct {
	loop    Loop
	samples []sim.Sample
	names   []string

	setpoint float64
	cursor   int
	running  bool
	last     sim.Step
	started  bool

	history [][]float64
}

// Loop narrows sim.Loop to what the view needs, so tests can drive the
// model with a fake.
type Loop interface {
	Advance(sample sim.Sample) sim.Step
}

func NewModel(loop Loop, samples []sim.Sample, names []string, setpoint float64) Model {
	history := make([][]float64, len(names))
	for i := range history {
		history[i] = make([]float64, 0, historyCapacity)
	}
	return Model{
		loop:     loop,
		samples:  samples,
		names:    names,
		setpoint: setpoint,
		running:  true,
		history:  history,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		}
	case TickMsg:
		if m.running && m.cursor < len(m.samples) {
			step := m.loop.Advance(m.samples[m.cursor])
			m.cursor++
			m.last = step
			m.started = true
			for i := range m.history {
				if i < len(step.Measurements) {
					m.history[i] = append(m.history[i], step.Measurements[i])
					if len(m.history[i]) > historyCapacity {
						m.history[i] = m.history[i][1:]
					}
				}
			}
		}
		return m, tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("pumplab live"))
	b.WriteString("\n")
	b.WriteString(m.banner())
	b.WriteString("\n\n")

	for i, name := range m.names {
		b.WriteString(valueStyle.Render(name))
		b.WriteString("\n")
		if len(m.history[i]) > 1 {
			graph := asciigraph.Plot(m.history[i],
				asciigraph.Height(graphHeight),
				asciigraph.Width(graphWidth),
				asciigraph.Caption(fmt.Sprintf("target %.2f", m.setpoint)),
			)
			b.WriteString(graphStyle.Render(graph))
		}
		b.WriteString("\n")
		b.WriteString(m.readout(i))
		b.WriteString("\n\n")
	}

	b.WriteString(labelStyle.Render("step"))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d / %d", m.cursor, len(m.samples))))
	if !m.running {
		b.WriteString(valueStyle.Render("  [paused]"))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space: pause  q: quit"))
	return b.String()
}

func (m Model) banner() string {
	if !m.started {
		return normalBanner.Render("STARTING")
	}
	for _, online := range m.last.Online {
		if !online {
			return offlineBanner.Render("ENGINE OFFLINE")
		}
	}
	switch m.last.Status {
	case sim.StatusSensorGlitch:
		return glitchBanner.Render("SENSOR GLITCH")
	case sim.StatusLoadBlockage:
		return blockageBanner.Render("LOAD BLOCKAGE")
	default:
		return normalBanner.Render("NORMAL")
	}
}

func (m Model) readout(i int) string {
	var vol, cmd float64
	if m.started && i < len(m.last.Measurements) {
		vol = m.last.Measurements[i]
	}
	if m.started && i < len(m.last.Commands) {
		cmd = m.last.Commands[i]
	}
	return labelStyle.Render("volume") + valueStyle.Render(fmt.Sprintf("%.3f", vol)) +
		"  " + labelStyle.Render("command") + valueStyle.Render(fmt.Sprintf("%.3f", cmd))
}

// Run starts the live view and blocks until it quits.
func Run(loop Loop, samples []sim.Sample, names []string, setpoint float64) error {
	p := tea.NewProgram(NewModel(loop, samples, names, setpoint))
	_, err := p.Run()
	return err
}
