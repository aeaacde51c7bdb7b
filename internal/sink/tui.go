package sink

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"v2x-sim/internal/message"
	"v2x-sim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

// countMsg tallies one outbound message.
type countMsg struct {
	kind      string
	delivered bool
}

// vehiclesMsg replaces the vehicle table.
type vehiclesMsg struct{ rows []telemetry.VehicleRow }

// adminMsg reports admin UI status.
type adminMsg struct{ active bool }

const maxLogLines = 500

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	kindStyles = map[string]lipgloss.Style{
		string(message.KindMCMRequest):     lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		string(message.KindMCMResponse):    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		string(message.KindMCMTermination): lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	}
)

// TUIWriter renders the journal using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	showCAM    bool
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. Quitting
// the TUI interrupts the process so the simulation shuts down cleanly.
func NewTUIWriter(settings []Setting, showCAM bool) *TUIWriter {
	w := &TUIWriter{showCAM: showCAM, done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(settings), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WriteMessage implements Writer.
func (w *TUIWriter) WriteMessage(row telemetry.MessageRow) error {
	w.program.Send(countMsg{kind: row.Kind, delivered: row.Delivered})
	if row.Kind == string(message.KindCAM) && !w.showCAM {
		return nil
	}
	style, ok := kindStyles[row.Kind]
	if !ok {
		style = dimStyle
	}
	line := fmt.Sprintf("%s %s station=%d %s",
		dimStyle.Render(fmt.Sprintf("t=%6.1f", row.SimTime)),
		style.Render(fmt.Sprintf("%-15s", row.Kind)),
		row.StationID, row.Reason)
	if row.ManoeuvreID != 0 {
		line += fmt.Sprintf(" manoeuvre=%d", row.ManoeuvreID)
	}
	if !row.Delivered {
		line += " " + warnStyle.Render("dropped")
	}
	w.program.Send(logMsg{line: line})
	return nil
}

// WriteNegotiation implements Writer.
func (w *TUIWriter) WriteNegotiation(row telemetry.NegotiationRow) error {
	line := fmt.Sprintf("%s %s station=%d",
		dimStyle.Render(fmt.Sprintf("t=%6.1f", row.SimTime)),
		titleStyle.Render(row.Event), row.StationID)
	if row.VehicleID != "" {
		line += " vehicle=" + row.VehicleID
	}
	if row.ManoeuvreID != 0 {
		line += fmt.Sprintf(" manoeuvre=%d", row.ManoeuvreID)
	}
	if row.Strategy != "" {
		line += " strategy=" + row.Strategy
	}
	if row.Detail != "" {
		line += " " + dimStyle.Render(row.Detail)
	}
	w.program.Send(logMsg{line: line})
	return nil
}

// WriteStates implements StateWriter.
func (w *TUIWriter) WriteStates(rows []telemetry.VehicleRow) error {
	w.program.Send(vehiclesMsg{rows: rows})
	return nil
}

// SetAdminStatus updates the admin UI indicator.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	settings   []Setting
	table      table.Model
	vp         viewport.Model
	logs       []string
	counts     map[string]int
	dropped    int
	admin      bool
	wrap       bool
	autoscroll bool
	width      int
	height     int
}

func newTUIModel(settings []Setting) tuiModel {
	cols := []table.Column{
		{Title: "Vehicle", Width: 8},
		{Title: "Station", Width: 8},
		{Title: "Speed", Width: 7},
		{Title: "Heading", Width: 8},
		{Title: "Signal", Width: 7},
		{Title: "Ctrl", Width: 5},
		{Title: "Lat", Width: 10},
		{Title: "Lon", Width: 10},
	}
	return tuiModel{
		settings:   settings,
		table:      table.New(table.WithColumns(cols), table.WithHeight(6)),
		vp:         viewport.New(0, 0),
		counts:     make(map[string]int),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case countMsg:
		m.counts[msg.kind]++
		if !msg.delivered {
			m.dropped++
		}
	case vehiclesMsg:
		m.table.SetRows(vehicleRows(msg.rows))
		m.updateViewportHeight()
	case adminMsg:
		m.admin = msg.active
	}
	return m, nil
}

func vehicleRows(rows []telemetry.VehicleRow) []table.Row {
	sorted := append([]telemetry.VehicleRow(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StationID < sorted[j].StationID })
	out := make([]table.Row, 0, len(sorted))
	for _, r := range sorted {
		signal := "-"
		switch {
		case r.LeftTurn && r.RightTurn:
			signal = "hazard"
		case r.LeftTurn:
			signal = "left"
		case r.RightTurn:
			signal = "right"
		}
		ctrl := ""
		if r.Controlled {
			ctrl = "yes"
		}
		out = append(out, table.Row{
			r.VehicleID,
			fmt.Sprintf("%d", r.StationID),
			fmt.Sprintf("%.1f", r.Speed),
			fmt.Sprintf("%.0f", r.Heading),
			signal,
			ctrl,
			fmt.Sprintf("%.5f", r.Lat),
			fmt.Sprintf("%.5f", r.Lon),
		})
	}
	return out
}

func (m *tuiModel) renderHeader() string {
	parts := make([]string, 0, len(m.settings))
	for _, s := range m.settings {
		parts = append(parts, s.Name+"="+s.Value)
	}
	admin := dimStyle.Render("admin off")
	if m.admin {
		admin = okStyle.Render("admin on")
	}
	header := titleStyle.Render("V2X negotiation simulator") + "  " + admin
	if len(parts) > 0 {
		header += "\n" + dimStyle.Render(strings.Join(parts, "  "))
	}
	if m.width > 0 {
		header = wordwrap.String(header, m.width)
	}
	return header
}

func (m *tuiModel) renderCounters() string {
	kinds := make([]string, 0, len(m.counts))
	for k := range m.counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds)+1)
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s:%d", k, m.counts[k]))
	}
	if m.dropped > 0 {
		parts = append(parts, warnStyle.Render(fmt.Sprintf("dropped:%d", m.dropped)))
	}
	if len(parts) == 0 {
		return dimStyle.Render("no messages yet")
	}
	return strings.Join(parts, "  ")
}

func (m *tuiModel) renderHelp() string {
	return dimStyle.Render("q quit  w wrap  s autoscroll  up/down scroll")
}

func (m *tuiModel) updateViewportHeight() {
	if m.height == 0 {
		return
	}
	used := lipgloss.Height(m.renderHeader()) + lipgloss.Height(m.table.View()) +
		lipgloss.Height(m.renderCounters()) + lipgloss.Height(m.renderHelp())
	h := m.height - used
	if h < 1 {
		h = 1
	}
	m.vp.Height = h
}

func (m *tuiModel) refreshViewport() {
	lines := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		switch {
		case m.vp.Width <= 0:
			lines = append(lines, l)
		case m.wrap:
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		default:
			lines = append(lines, truncate.String(l, uint(m.vp.Width)))
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.table.View(),
		m.renderCounters(),
		m.vp.View(),
		m.renderHelp(),
	)
}
