package main

import (
	"fmt"
	"math"
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"
)

// ============================================================================
// Terminal prompter
// ============================================================================
// The TUI is an observer like any WebSocket client: it renders broadcasts and
// turns keys, pointer hover and resizes into actions. It never touches
// PrompterState.
// ============================================================================

var (
	colorText   = lipgloss.Color("#e6e6e6")
	colorMuted  = lipgloss.Color("#6c7086")
	colorAccent = lipgloss.Color("#f9e2af")
	colorError  = lipgloss.Color("#f38ba8")

	styleBody      = lipgloss.NewStyle().Foreground(colorText)
	styleFade      = lipgloss.NewStyle().Foreground(colorMuted).Faint(true)
	styleHeader    = lipgloss.NewStyle().Foreground(colorMuted)
	styleStatus    = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleError     = lipgloss.NewStyle().Foreground(colorError)
	styleCountdown = lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Padding(1, 4).
			Border(lipgloss.RoundedBorder()).BorderForeground(colorAccent)
)

type tuiKeyMap struct {
	Toggle   key.Binding
	Reset    key.Binding
	JumpBack key.Binding
	Faster   key.Binding
	Slower   key.Binding
	Mode     key.Binding
	FontUp   key.Binding
	FontDown key.Binding
	Hide     key.Binding
	Quit     key.Binding
}

func defaultTUIKeyMap() tuiKeyMap {
	return tuiKeyMap{
		Toggle:   key.NewBinding(key.WithKeys("space", "p"), key.WithHelp("space", "start/pause")),
		Reset:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
		JumpBack: key.NewBinding(key.WithKeys("j", "left"), key.WithHelp("j", "back 5s")),
		Faster:   key.NewBinding(key.WithKeys("=", "+"), key.WithHelp("+", "faster")),
		Slower:   key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "slower")),
		Mode:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mode")),
		FontUp:   key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "bigger")),
		FontDown: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "smaller")),
		Hide:     key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "hide/show")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// tuiModel is the bubbletea model of the terminal prompter.
type tuiModel struct {
	events chan<- Event
	keys   tuiKeyMap

	width  int
	height int

	snap  StateSnapshot
	lines []string // script wrapped to width

	hovering bool
	hidden   bool // body blanked; playback is unaffected
	lastErr  string
}

func newTUIModel(events chan<- Event, initial StateSnapshot) *tuiModel {
	return &tuiModel{
		events: events,
		keys:   defaultTUIKeyMap(),
		snap:   initial,
	}
}

func (m *tuiModel) Init() tea.Cmd { return nil }

// send hands an action to the daemon without blocking the UI.
func (m *tuiModel) send(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.lastErr = "event queue full"
	}
}

func (m *tuiModel) bodyRows() int {
	if m.height <= 1 {
		return 0
	}
	return m.height - 1
}

func (m *tuiModel) rewrap() {
	if m.width <= 0 {
		m.lines = nil
		return
	}
	m.lines = wrapScript(m.snap.ScriptText, m.width)
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.rewrap()
		if m.width > 0 && m.bodyRows() > 0 {
			m.send(ViewportResized{Cols: m.width, Rows: m.bodyRows()})
		}

	case tea.KeyPressMsg:
		return m, m.handleKey(msg)

	case tea.MouseMotionMsg:
		m.setHover(msg.Y >= 1)

	case tea.BlurMsg:
		m.setHover(false)

	case BroadcastFrame:
		m.snap.Frame = msg.Frame
		m.snap.Phase = msg.Phase

	case BroadcastPlaybackChanged:
		m.snap.Status = msg.Status
		m.snap.CountdownRemaining = msg.CountdownRemaining
		m.snap.ReachedEnd = msg.ReachedEnd
		m.snap.Suspended = msg.Suspended

	case BroadcastContentChanged:
		m.snap.ScriptText = msg.Text
		m.snap.ScriptPath = msg.Path
		m.snap.LineHeight = msg.LineHeight
		m.snap.ContentHeight = msg.ContentHeight
		m.lastErr = ""
		m.rewrap()

	case BroadcastSettingsChanged:
		m.snap.SpeedPointsPerSec = msg.SpeedPointsPerSec
		m.snap.FontSize = msg.FontSize
		m.snap.ScrollMode = msg.ScrollMode
		m.snap.LoopGap = msg.LoopGap
		m.snap.CountdownSeconds = msg.CountdownSeconds
		m.snap.CountdownPolicy = msg.CountdownPolicy

	case BroadcastError:
		m.lastErr = msg.Message
	}
	return m, nil
}

func (m *tuiModel) handleKey(msg tea.KeyPressMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Toggle):
		m.send(Toggle{})
	case key.Matches(msg, m.keys.Reset):
		m.send(Reset{})
	case key.Matches(msg, m.keys.JumpBack):
		m.send(JumpBack{})
	case key.Matches(msg, m.keys.Faster):
		m.send(AdjustSpeed{Steps: 1})
	case key.Matches(msg, m.keys.Slower):
		m.send(AdjustSpeed{Steps: -1})
	case key.Matches(msg, m.keys.Mode):
		next := ScrollModeStopAtEnd
		if m.snap.ScrollMode == ScrollModeStopAtEnd {
			next = ScrollModeInfinite
		}
		m.send(SetScrollMode{Mode: next})
	case key.Matches(msg, m.keys.FontUp):
		m.send(SetFontSize{Steps: 1})
	case key.Matches(msg, m.keys.FontDown):
		m.send(SetFontSize{Steps: -1})
	case key.Matches(msg, m.keys.Hide):
		m.hidden = !m.hidden
		if m.hidden {
			m.setHover(false)
		}
	}
	return nil
}

// setHover suspends motion while the pointer is over the script.
func (m *tuiModel) setHover(h bool) {
	if m.hidden {
		h = false
	}
	if h == m.hovering {
		return
	}
	m.hovering = h
	m.send(SetSuspended{Suspended: h})
}

func (m *tuiModel) View() tea.View {
	var view tea.View
	view.AltScreen = true
	// Hover has no button held, so plain motion must be reported too.
	view.MouseMode = tea.MouseModeAllMotion
	view.ReportFocus = true

	if m.width <= 0 || m.height <= 0 {
		view.SetContent("")
		return view
	}

	header := m.renderHeader()
	rows := m.bodyRows()
	var body string
	switch {
	case m.hidden:
		hint := styleHeader.Render("hidden, press o to show")
		body = lipgloss.Place(m.width, rows, lipgloss.Center, lipgloss.Center, hint)
	case m.snap.Status == StatusCountingDown && m.snap.CountdownRemaining > 0:
		box := styleCountdown.Render(fmt.Sprintf("%d", m.snap.CountdownRemaining))
		body = lipgloss.Place(m.width, rows, lipgloss.Center, lipgloss.Center, box)
	default:
		body = strings.Join(m.renderBody(rows), "\n")
	}

	view.SetContent(header + "\n" + body)
	return view
}

func (m *tuiModel) renderHeader() string {
	status := string(m.snap.Status)
	if m.snap.Suspended && m.snap.Status == StatusRunning {
		status = "held"
	}
	if m.snap.ReachedEnd {
		status = "end"
	}
	parts := []string{
		fmt.Sprintf("%.0f pt/s", m.snap.SpeedPointsPerSec),
		string(m.snap.ScrollMode),
		fmt.Sprintf("%.0fpt", m.snap.FontSize),
	}
	if m.snap.ScriptPath != "" {
		parts = append(parts, m.snap.ScriptPath)
	}
	line := styleStatus.Render(strings.ToUpper(status)) + " " + styleHeader.Render(strings.Join(parts, " · "))
	if m.lastErr != "" {
		line += " " + styleError.Render(m.lastErr)
	}
	return ansi.Truncate(line, m.width, "…")
}

// renderBody lays out the stacked copies for the current frame. Row r shows
// the content at r*lineHeight - StackOffset within the stack.
func (m *tuiModel) renderBody(rows int) []string {
	out := make([]string, rows)
	lh := m.snap.LineHeight
	if lh <= 0 {
		lh = lineHeightFor(m.snap.FontSize)
	}
	cycle := effectiveContentHeight(m.snap.ContentHeight) + math.Max(0, m.snap.LoopGap)
	fadeRows := int(math.Ceil(TopClearanceFor(m.snap.FontSize) / lh))

	for r := 0; r < rows; r++ {
		text := m.lineAt(float64(r)*lh-m.snap.Frame.StackOffset, lh, cycle)
		style := styleBody
		if r < fadeRows || r == rows-1 {
			style = styleFade
		}
		out[r] = style.Render(fitWidth(text, m.width))
	}
	return out
}

// lineAt returns the script line drawn at stack position pos (points).
func (m *tuiModel) lineAt(pos, lh, cycle float64) string {
	if pos < 0 || len(m.lines) == 0 {
		return ""
	}
	copyIdx := int(math.Floor(pos / cycle))
	if copyIdx >= m.snap.Frame.CopyCount {
		return ""
	}
	// Nothing is drawn past the copy the scroll stops in.
	if v := m.snap.Frame.VisibleCopies; v > 0 && copyIdx >= v {
		return ""
	}
	within := pos - float64(copyIdx)*cycle
	idx := int(math.Floor(within/lh + 1e-6))
	if idx < 0 || idx >= len(m.lines) {
		return ""
	}
	return m.lines[idx]
}
