package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorHealthy = lipgloss.Color("42")
	colorDanger  = lipgloss.Color("203")
	colorDimmed  = lipgloss.Color("245")
	colorBorder  = lipgloss.Color("237")
)

const pollInterval = time.Second

type snapshotMsg statusSnapshot
type errMsg struct{ err error }

// model is the root Bubble Tea model: it polls the control socket on a
// fixed cadence and renders the latest snapshot with bubbles/table. It
// never sends anything back to cmd/server.
type model struct {
	socketPath string
	table      table.Model
	snap       statusSnapshot
	lastErr    error
	width      int
}

func newModel(socketPath string) model {
	columns := []table.Column{
		{Title: "Peer", Width: 24},
		{Title: "Authenticated", Width: 14},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(nil),
		table.WithFocused(false),
		table.WithHeight(10),
	)
	return model{socketPath: socketPath, table: t}
}

func (m model) Init() tea.Cmd {
	return m.poll()
}

func (m model) poll() tea.Cmd {
	return func() tea.Msg {
		snap, err := fetchSnapshot(m.socketPath, 2*time.Second)
		if err != nil {
			return errMsg{err: err}
		}
		return snapshotMsg(snap)
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

type tickMsg struct{}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		return m, m.poll()

	case snapshotMsg:
		m.snap = statusSnapshot(msg)
		m.lastErr = nil
		rows := make([]table.Row, 0, len(m.snap.Clients))
		for _, c := range m.snap.Clients {
			rows = append(rows, table.Row{c.PeerAddress, fmt.Sprint(c.Authenticated)})
		}
		m.table.SetRows(rows)
		return m, m.tick()

	case errMsg:
		m.lastErr = msg.err
		return m, m.tick()
	}
	return m, nil
}

func (m model) View() string {
	width := m.width
	if width < 50 {
		width = 50
	}

	var status string
	if m.lastErr != nil {
		status = lipgloss.NewStyle().Foreground(colorDanger).Render("○ " + m.lastErr.Error())
	} else {
		status = lipgloss.NewStyle().Foreground(colorHealthy).Render("● connected")
	}

	summary := fmt.Sprintf(
		"clients: %d   msc: %d   pointer: %s   clipboard: %s   uptime: %.0fs",
		m.snap.ClientCount, m.snap.MSC, placeholder(m.snap.PointerOwner), placeholder(m.snap.ClipboardOwner), m.snap.UptimeSeconds,
	)

	header := lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		Foreground(colorDimmed).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(colorBorder).
		Render(status + "   " + summary)

	return header + "\n" + m.table.View() + "\n" + lipgloss.NewStyle().Foreground(colorDimmed).Render("q to quit")
}

func placeholder(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
