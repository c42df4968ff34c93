package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/lox/spades/internal/deck"
	"github.com/lox/spades/internal/game"
	"github.com/lox/spades/internal/protocol"
)

// Model represents the Bubble Tea model for a Spades table
type Model struct {
	logger *log.Logger

	// UI components
	logViewport viewport.Model
	actionInput textinput.Model

	// State
	gameLog      []string
	actionResult chan ActionResult
	quitSignal   chan bool
	quitting     bool
	focusedPane  int // 0 = log, 1 = input

	// Display state, driven entirely by server messages
	playerID string
	state    *game.GameState
	queued   string

	// Dimensions
	width       int
	height      int
	initialized bool

	// Test mode
	testMode    bool
	capturedLog []string
}

// ActionResult represents the result of a user action
type ActionResult struct {
	Action   string
	Args     []string
	Continue bool
}

// QuitMsg is a custom message to signal quit
type QuitMsg struct{}

// PlayerJoinedMsg carries the identity the server assigned.
type PlayerJoinedMsg struct{ PlayerID string }

// StateMsg carries a new view of the player's game.
type StateMsg struct{ State *game.GameState }

// ErrorMsg is an error reported by the server or raised locally.
type ErrorMsg struct{ Code, Message string }

// QueueJoinedMsg confirms a queue entry.
type QueueJoinedMsg struct{ protocol.QueueJoined }

// QueueLeftMsg confirms the player left the queue.
type QueueLeftMsg struct{}

// MatchFoundMsg reports the seat matchmaking found.
type MatchFoundMsg struct{ protocol.MatchFound }

// LogMsg appends a line to the game log.
type LogMsg string

// NewModel creates a new TUI model
func NewModel(logger *log.Logger) *Model {
	return NewModelWithOptions(logger, false)
}

// NewModelWithOptions creates a new TUI model with test mode option
func NewModelWithOptions(logger *log.Logger, testMode bool) *Model {
	// Sized properly when the first WindowSizeMsg arrives
	vp := viewport.New(10, 5)
	vp.SetContent("")

	ti := textinput.New()
	ti.Placeholder = "start, queue ace_high 500, bid 3, play AS, leave, help"
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 100
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	ti.Prompt = "> "

	return &Model{
		logger:       logger.WithPrefix("tui"),
		logViewport:  vp,
		actionInput:  ti,
		gameLog:      []string{},
		actionResult: make(chan ActionResult, 16),
		quitSignal:   make(chan bool, 1),
		focusedPane:  1,
		testMode:     testMode,
		capturedLog:  []string{},
	}
}

// Init initializes the TUI model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listenForQuit())
}

func (m *Model) listenForQuit() tea.Cmd {
	return func() tea.Msg {
		<-m.quitSignal
		return QuitMsg{}
	}
}

// Update handles messages in the TUI
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case QuitMsg:
		m.quitting = true
		return m, tea.Sequence(tea.ClearScreen, tea.Quit)

	case PlayerJoinedMsg:
		m.playerID = msg.PlayerID
		m.AddLogEntry(InfoStyle.Render(fmt.Sprintf("Connected as %s", msg.PlayerID)))

	case StateMsg:
		m.applyState(msg.State)

	case ErrorMsg:
		m.AddLogEntry(ErrorStyle.Render(fmt.Sprintf("Error (%s): %s", msg.Code, msg.Message)))

	case QueueJoinedMsg:
		m.queued = fmt.Sprintf("%s to %d", msg.Mode, msg.PointGoal)
		m.AddLogEntry(SuccessStyle.Render(fmt.Sprintf("Queued for %s (rating %.0f)", m.queued, msg.Rating)))

	case QueueLeftMsg:
		m.queued = ""
		m.AddLogEntry(InfoStyle.Render("Left the queue"))

	case MatchFoundMsg:
		m.queued = ""
		m.AddLogEntry(SuccessStyle.Render(fmt.Sprintf("Match found: game %s, seat %s", msg.GameID, game.Seat(msg.Seat))))

	case LogMsg:
		m.AddLogEntry(string(msg))

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logger.Debug("Updating dimensions", "width", m.width, "height", m.height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			m.pushAction(ActionResult{Action: "quit", Continue: false})
			return m, tea.Sequence(tea.ClearScreen, tea.Quit)
		case "tab":
			if m.focusedPane == 0 {
				m.focusedPane = 1
				m.actionInput.Focus()
			} else {
				m.focusedPane = 0
				m.actionInput.Blur()
			}
		case "enter":
			if m.focusedPane == 1 {
				m.processAction(strings.TrimSpace(m.actionInput.Value()))
				m.actionInput.SetValue("")
			}
		case "up", "k":
			if m.focusedPane == 0 {
				m.logViewport.ScrollUp(1)
			}
		case "down", "j":
			if m.focusedPane == 0 {
				m.logViewport.ScrollDown(1)
			}
		case "pgup", "b":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageUp()
			}
		case "pgdown", "f":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageDown()
			}
		case "home", "g":
			if m.focusedPane == 0 {
				m.logViewport.GotoTop()
			}
		case "end", "G":
			if m.focusedPane == 0 {
				m.logViewport.GotoBottom()
			}
		}
	}

	var cmd tea.Cmd
	if m.focusedPane == 1 {
		m.actionInput, cmd = m.actionInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// applyState logs what changed and keeps the new view.
func (m *Model) applyState(next *game.GameState) {
	if next == nil {
		return
	}
	for _, line := range describeTransition(m.state, next, m.playerID) {
		m.AddLogEntry(line)
	}
	m.state = next
}

// State returns the latest game view, or nil.
func (m *Model) State() *game.GameState {
	return m.state
}

// mySeat returns the viewer's seat in the current game, or -1.
func (m *Model) mySeat() int {
	if m.state == nil {
		return -1
	}
	return m.state.PlayerIndex(m.playerID)
}

// myTurn reports whether the server is waiting on this player.
func (m *Model) myTurn() bool {
	seat := m.mySeat()
	return seat >= 0 && m.state.AwaitingAction() && m.state.CurrentPlayerIndex == seat
}

// View renders the TUI
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	actionContent := m.renderActionPane()
	actionHeight := lipgloss.Height(actionContent)
	actionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#04B575")).
		Width(max(m.width-2, 1)).
		Height(max(actionHeight-2, 1))
	actionPane := actionStyle.Render(actionContent)

	sidebarContent := m.renderSidebarPane()
	sidebarWidth := max(lipgloss.Width(sidebarContent), 28)
	paneHeight := max(m.height-actionHeight-4, 1)
	sidebarPane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(sidebarWidth).
		Height(paneHeight).
		Render(sidebarContent)

	logWidth := max(m.width-sidebarWidth-4, 1)
	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	m.logViewport.Width = logWidth
	m.logViewport.Height = paneHeight
	if !m.initialized && logWidth > 1 && paneHeight > 1 {
		m.logViewport.GotoBottom()
		m.initialized = true
	}

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(logWidth).
		Height(paneHeight)
	if m.focusedPane == 0 {
		logStyle = logStyle.BorderForeground(lipgloss.Color("#04B575"))
	}
	logPane := logStyle.Render(m.logViewport.View())

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, logPane, sidebarPane)
	return lipgloss.JoinVertical(lipgloss.Top, topRow, actionPane)
}

// renderSidebarPane shows scores, bids and who is to act.
func (m *Model) renderSidebarPane() string {
	var content strings.Builder
	s := m.state
	if s == nil {
		content.WriteString(HeaderStyle.Render(" Spades "))
		content.WriteString("\n\n")
		if m.queued != "" {
			content.WriteString(WarningStyle.Render("Queued: " + m.queued))
		} else {
			content.WriteString(InfoStyle.Render("Not in a game"))
		}
		return content.String()
	}

	content.WriteString(HeaderStyle.Render(fmt.Sprintf(" %s to %d ", s.Mode, s.WinningScore)))
	content.WriteString("\n")
	content.WriteString(InfoStyle.Render(fmt.Sprintf("Round %d, %s", s.RoundNumber, s.Phase)))
	content.WriteString("\n\n")

	for team, t := range s.Teams {
		line := fmt.Sprintf("%s: %d (bags %d)", teamLabel(team), t.Score, t.Bags)
		if t.TotalBid != nil {
			line += fmt.Sprintf(" %d/%d", t.TricksWon, *t.TotalBid)
		}
		content.WriteString(WarningStyle.Render(line))
		content.WriteString("\n")
	}
	content.WriteString("\n")

	for i, p := range s.Players {
		bid := "-"
		if p.Bid != nil {
			bid = formatBid(*p.Bid)
		}
		name := playerName(s, p.ID, m.playerID)
		if p.IsBot {
			name += " (bot)"
		}
		line := fmt.Sprintf("%-5s %s bid %s won %d", game.Seat(i), name, bid, p.TricksWon)
		if s.AwaitingAction() && s.CurrentPlayerIndex == i {
			content.WriteString(CurrentPlayerStyle.Render("▶ " + line))
		} else {
			content.WriteString(PlayerInfoStyle.Render("  " + line))
		}
		content.WriteString("\n")
	}
	return content.String()
}

// renderActionPane renders the hand, the trick on the table and the input.
func (m *Model) renderActionPane() string {
	var content strings.Builder
	seat := m.mySeat()

	if seat >= 0 {
		s := m.state
		var legal []deck.Card
		if m.myTurn() && s.Phase == game.PhasePlaying {
			legal = game.LegalPlays(s, seat)
		}
		content.WriteString(HandInfoStyle.Render("Hand: "))
		content.WriteString(formatHand(s.Players[seat].Hand, legal))
		content.WriteString("\n")

		if len(s.CurrentTrick.Plays) > 0 {
			plays := make([]string, 0, len(s.CurrentTrick.Plays))
			for _, p := range s.CurrentTrick.Plays {
				plays = append(plays, playerName(s, p.PlayerID, m.playerID)+" "+formatCard(p.Card))
			}
			content.WriteString(HandInfoStyle.Render("Trick: "))
			content.WriteString(strings.Join(plays, ", "))
			content.WriteString("\n")
		}

		content.WriteString(ActionsStyle.Render(m.prompt()))
		content.WriteString("\n")
	} else {
		content.WriteString(HandInfoStyle.Render("Type start for a game against bots, or queue to find players."))
		content.WriteString("\n")
	}

	content.WriteString(m.actionInput.View())
	content.WriteString("\n")

	help := "Tab to scroll log • Enter to submit • Ctrl+C to quit"
	if m.focusedPane == 0 {
		help = "Log focused: ↑↓ scroll, PgUp/PgDn half page, Home/End, Tab to input"
	}
	content.WriteString(InfoStyle.Render(help))
	return content.String()
}

// prompt says what the player is expected to do next.
func (m *Model) prompt() string {
	s := m.state
	switch {
	case s.IsOver():
		return "Game over. leave to return to the lobby."
	case m.myTurn() && s.Phase == game.PhaseBidding:
		return fmt.Sprintf("Your bid: bid 0-%d (0 is nil)", game.MaxBid)
	case m.myTurn():
		return "Your play: play <card>"
	case s.TrickComplete():
		return "Trick complete..."
	default:
		if p := s.CurrentPlayer(); p != nil {
			return "Waiting for " + playerName(s, p.ID, m.playerID)
		}
		return "Waiting..."
	}
}

// AddLogEntry adds an entry to the game log
func (m *Model) AddLogEntry(entry string) {
	m.gameLog = append(m.gameLog, entry)

	if m.testMode {
		m.capturedLog = append(m.capturedLog, entry)
		return
	}

	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	if m.logViewport.Height > 0 && m.logViewport.Width > 0 {
		m.logViewport.GotoBottom()
	}
}

// ClearLog clears the game log
func (m *Model) ClearLog() {
	m.gameLog = []string{}
	m.logViewport.SetContent("")
}

func (m *Model) processAction(input string) {
	parts := strings.Fields(strings.ToLower(input))
	if len(parts) == 0 {
		return
	}
	m.pushAction(ActionResult{Action: parts[0], Args: parts[1:], Continue: true})
}

func (m *Model) pushAction(a ActionResult) {
	select {
	case m.actionResult <- a:
	default:
		m.logger.Warn("Dropping action, command loop is busy", "action", a.Action)
	}
}

// WaitForAction waits for user input (for use by the command loop)
func (m *Model) WaitForAction() ActionResult {
	return <-m.actionResult
}

// SendQuitSignal signals the TUI to quit gracefully
func (m *Model) SendQuitSignal() {
	select {
	case m.quitSignal <- true:
	default:
	}
}

// GetCapturedLog returns the captured log entries (test mode only)
func (m *Model) GetCapturedLog() []string {
	if !m.testMode {
		return nil
	}
	result := make([]string, len(m.capturedLog))
	copy(result, m.capturedLog)
	return result
}

// InjectAction programmatically injects an action (test mode only)
func (m *Model) InjectAction(action string, args []string) error {
	if !m.testMode {
		return fmt.Errorf("action injection only available in test mode")
	}
	select {
	case m.actionResult <- ActionResult{Action: action, Args: args, Continue: true}:
		return nil
	default:
		return fmt.Errorf("action channel full")
	}
}

// IsTestMode returns whether the TUI is in test mode
func (m *Model) IsTestMode() bool {
	return m.testMode
}
