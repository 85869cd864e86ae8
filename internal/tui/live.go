package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/control"
	"github.com/san-kum/cosim/internal/cosim"
	"github.com/san-kum/cosim/internal/viz"
)

const (
	barWidth        = 40
	historyCapacity = 120
)

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(18)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

var actuatorLabels = [control.NumActuators]string{
	"Liquid load (W)",
	"Supply approach (C)",
	"CPU schedule",
	"Flow fraction",
}

// StepMsg carries one controller step into the program.
type StepMsg cosim.Step

// DoneMsg ends the live view.
type DoneMsg struct {
	Result *cosim.Result
	Err    error
}

// LiveModel shows run progress while the federates execute.
type LiveModel struct {
	name    string
	option  string
	total   float64
	cancel  func()
	started time.Time

	last   cosim.Step
	steps  int
	demand []float64

	done   bool
	err    error
	result *cosim.Result
}

// NewLiveModel builds the view. cancel is called when the user quits early.
func NewLiveModel(name, option string, total float64, cancel func()) LiveModel {
	return LiveModel{
		name:    name,
		option:  option,
		total:   total,
		cancel:  cancel,
		started: time.Now(),
		demand:  make([]float64, 0, historyCapacity),
	}
}

// Observer forwards controller steps to p.
func Observer(p *tea.Program) cosim.Observer {
	return cosim.ObserverFunc(func(s cosim.Step) {
		p.Send(StepMsg(s))
	})
}

func (m LiveModel) Init() tea.Cmd { return nil }

func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil && !m.done {
				m.cancel()
			}
			return m, tea.Quit
		}
	case StepMsg:
		m.last = cosim.Step(msg)
		m.steps++
		if v, ok := msg.Sensors[config.FacilityDemandKey]; ok {
			m.demand = append(m.demand, v)
			if len(m.demand) > historyCapacity {
				m.demand = m.demand[1:]
			}
		}
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		m.result = msg.Result
		return m, tea.Quit
	}
	return m, nil
}

func (m LiveModel) Progress() float64 {
	if m.total <= 0 {
		return 0
	}
	return m.last.Granted / m.total
}

func (m LiveModel) Done() bool { return m.done }
func (m LiveModel) Err() error { return m.err }

func (m LiveModel) View() string {
	var s strings.Builder
	s.WriteString(viz.HeaderStyle.Render(fmt.Sprintf("%s  [%s]", m.name, m.option)) + "\n\n")

	status := viz.StatusRunning.Render("RUNNING")
	if m.done && m.err != nil {
		status = viz.StatusFailed.Render("FAILED: " + m.err.Error())
	} else if m.done {
		status = viz.StatusDone.Render("DONE")
	}
	s.WriteString(status + "\n\n")

	s.WriteString(viz.ProgressBar(m.Progress(), barWidth))
	s.WriteString(fmt.Sprintf(" %5.1f%%\n\n", 100*m.Progress()))

	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("Granted time", fmt.Sprintf("%.0f s (day %.2f)", m.last.Granted, m.last.Granted/control.SecondsPerDay))
	row("Steps", fmt.Sprintf("%d", m.steps))
	row("Elapsed", time.Since(m.started).Truncate(time.Millisecond).String())
	for i, v := range m.last.Setpoints {
		if i < len(actuatorLabels) {
			row(actuatorLabels[i], fmt.Sprintf("%.3g", v))
		}
	}

	if len(m.demand) > 0 {
		row("Demand (W)", fmt.Sprintf("%.4g", m.demand[len(m.demand)-1]))
		s.WriteString("\n" + viz.SparklineChart(m.demand, barWidth) + "\n")
	}

	if m.result != nil && len(m.result.Metrics) > 0 {
		s.WriteString("\n" + viz.MetricsTable(m.result.Metrics))
	}

	s.WriteString(helpStyle.Render("q: stop run"))
	return s.String()
}
