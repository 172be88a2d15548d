// Package tui is a bubbletea terminal inspector over a running
// network.Network: a scrollable node list, the selected node's
// interface/STP/route state, and a live virtual-time clock pumped by a
// wall-clock tick. Grounded on the teacher's pkg/interactive/interactive.go
// (same model/Update/View shape, same lipgloss style palette), replacing
// its config/error-injection domain with a read-only view over the
// simulator's topology and protocol state.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/packetlab/netsim/pkg/network"
	"github.com/packetlab/netsim/pkg/node"
	"github.com/packetlab/netsim/pkg/sched"
	"github.com/packetlab/netsim/pkg/topology"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("246"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("82")).
		Bold(true)

	downStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model is the bubbletea model driving the inspector.
type Model struct {
	net    *network.Network
	result *topology.Result
	nodes  []*node.Node

	selected int
	paused   bool

	statusMessage string
}

// New builds an inspector model over an already-built network and its
// topology.Build result.
func New(net *network.Network, result *topology.Result) Model {
	return Model{net: net, result: result, nodes: net.Nodes()}
}

// Run starts the bubbletea program, taking over the terminal until the
// user quits.
func Run(net *network.Network, result *topology.Result) error {
	p := tea.NewProgram(New(net, result), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd { return tickCmd() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if !m.paused {
			m.net.Scheduler().Advance(m.net.Scheduler().Delay(0.1))
		}
		return m, tickCmd()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.nodes)-1 {
				m.selected++
			}
		case " ", "p":
			m.paused = !m.paused
			if m.paused {
				m.statusMessage = "paused"
			} else {
				m.statusMessage = "running"
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("netsim — t=%s", formatTime(m.net.Scheduler().Now()))))
	b.WriteString("\n\n")

	var list strings.Builder
	for i, n := range m.nodes {
		line := fmt.Sprintf("%-12s %s", n.Name(), n.Kind())
		if i == m.selected {
			list.WriteString(selectedStyle.Render("> "+line) + "\n")
		} else {
			list.WriteString(dimStyle.Render("  "+line) + "\n")
		}
	}
	b.WriteString(panelStyle.Render(list.String()))
	b.WriteString("\n\n")

	if len(m.nodes) > 0 {
		b.WriteString(panelStyle.Render(m.detailView(m.nodes[m.selected])))
		b.WriteString("\n\n")
	}

	status := m.statusMessage
	if status == "" {
		status = "running"
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("[%s]  j/k or ↑/↓ select · space pause/resume · q quit", status)))
	return b.String()
}

func (m Model) detailView(n *node.Node) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("node %s (%s)\n", n.Name(), n.Kind()))
	for _, hw := range n.Interfaces() {
		state := downStyle.Render("down")
		if hw.IsUp() {
			state = okStyle.Render("up")
		}
		b.WriteString(fmt.Sprintf("  %-10s %-20s %s\n", hw.Name, hw.Mac(), state))
	}

	if svc, ok := m.result.Stp[n.Name()]; ok {
		b.WriteString(fmt.Sprintf("\n  stp: root=%v bridge=%v\n", svc.IsRoot(), svc.BridgeId()))
		for _, hw := range n.Interfaces() {
			b.WriteString(fmt.Sprintf("    %-10s role=%-11s state=%s\n", hw.Name, svc.Role(hw, 0), svc.State(hw, 0)))
		}
	}

	if rtr, ok := m.result.Routers[n.Name()]; ok {
		routes := rtr.Table().Routes()
		b.WriteString(fmt.Sprintf("\n  routes: %d\n", len(routes)))
		for _, r := range routes {
			b.WriteString(fmt.Sprintf("    %v/%d via %v metric %d\n", r.Network, r.Mask.Cidr(), r.NextHop, r.Metric))
		}
	}
	return b.String()
}

func formatTime(t sched.Time) string {
	return fmt.Sprintf("%.2fs", float64(t)/float64(sched.TicksPerSecond))
}
