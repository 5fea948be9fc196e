package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/minipupper/mpct/pkg/leg"
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(TickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model adapts a Controller to bubbletea.
type Model struct {
	c *Controller
	// load shows how close the guard is to tripping.
	load progress.Model
}

// NewModel returns a bubbletea model driving c.
func NewModel(c *Controller) Model {
	return Model{
		c:    c,
		load: progress.New(progress.WithGradient("#5A56E0", "#EE6FF8"), progress.WithWidth(40)),
	}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.c.HandleKey(msg.String())
		m.c.Tick()
	case tickMsg:
		m.c.Tick()
		if m.c.Done() {
			return m, tea.Quit
		}
		return m, tick()
	}

	if m.c.Done() {
		return m, tea.Quit
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(30)

	accentStyles = map[string]lipgloss.Color{
		"green": lipgloss.Color("2"),
		"blue":  lipgloss.Color("4"),
	}
	selectedJointStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
)

func (m Model) View() string {
	c := m.c
	var b strings.Builder

	b.WriteString(titleStyle.Render("Mini Pupper servo calibration"))
	b.WriteString("\n\n")

	if c.Mode() == ModeReview {
		b.WriteString(panelStyle.Render("Candidate correction matrix\n\n" + strings.Join(matrixRows(c.Candidate()), "\n")))
	} else {
		legs := c.Legs()
		upper := lipgloss.JoinHorizontal(lipgloss.Top, m.legPanel(legs[leg.LeftFront]), m.legPanel(legs[leg.RightFront]))
		lower := lipgloss.JoinHorizontal(lipgloss.Top, m.legPanel(legs[leg.LeftBack]), m.legPanel(legs[leg.RightBack]))
		b.WriteString(lipgloss.JoinVertical(lipgloss.Left, upper, lower))
	}
	b.WriteString("\n")

	st := c.GuardStatus()
	if st.Limits.CounterMax > 0 {
		b.WriteString(helpStyle.Render("overload "))
		b.WriteString(m.load.ViewAs(float64(st.HoldCounter) / float64(st.Limits.CounterMax)))
		b.WriteString("\n")
	}
	if st.Tripped {
		b.WriteString(warnStyle.Render(fmt.Sprintf("servo power cut (hold %d/%d)", st.HoldCounter, st.Limits.CounterMax)))
		b.WriteString("\n")
	}
	if err := c.Err(); err != nil {
		b.WriteString(errStyle.Render(err.Error()))
		b.WriteString("\n")
	}
	if msg := c.Message(); msg != "" {
		b.WriteString(okStyle.Render(msg))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render(strings.Join(HelpLines(c.Mode()), "\n")))
	b.WriteString("\n")

	return b.String()
}

func (m Model) legPanel(l *leg.Leg) string {
	selLeg, selJoint := m.c.Selected()
	accent := accentStyles[l.AccentColor()]

	style := panelStyle.BorderForeground(accent)
	title := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(l.Title())
	if l.ID() == selLeg {
		style = style.Background(accent)
	}

	lines := []string{title}
	for _, j := range leg.Joints {
		r := leg.RangeOf(j)
		line := fmt.Sprintf("%-5s %4d <%d..%d>", j, l.Joint(j), r.Min, r.Max)
		if l.ID() == selLeg && j == selJoint {
			line = selectedJointStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return style.Render(strings.Join(lines, "\n"))
}
