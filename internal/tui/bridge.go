package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lox/spades/internal/client"
	"github.com/lox/spades/internal/deck"
	"github.com/lox/spades/internal/protocol"
)

// Actions is what the bridge can ask the server to do. *client.Client
// implements it.
type Actions interface {
	StartGame(mode deck.Mode, pointGoal int, seats []protocol.SeatSpec) error
	PlaceBid(bid int) error
	PlayCard(cardID string) error
	LeaveGame() error
	JoinQueue(mode deck.Mode, pointGoal int) error
	LeaveQueue() error
}

// Events is a source of server messages. *client.Client implements it.
type Events interface {
	On(t protocol.MessageType, h client.Handler)
}

// Defaults are the mode and point goal used when a command omits them.
type Defaults struct {
	Mode      deck.Mode
	PointGoal int
}

// Bridge manages the connection between a client and TUI model. Server
// messages reach the model through send, which is tea.Program.Send when
// running for real.
type Bridge struct {
	actions  Actions
	tui      *Model
	send     func(tea.Msg)
	defaults Defaults
}

// NewBridge creates a new bridge between client and TUI
func NewBridge(actions Actions, events Events, tui *Model, send func(tea.Msg), defaults Defaults) *Bridge {
	b := &Bridge{
		actions:  actions,
		tui:      tui,
		send:     send,
		defaults: defaults,
	}
	b.setupEventHandlers(events)
	return b
}

// Start begins the command handling loop (non-blocking)
func (b *Bridge) Start() {
	go b.commandLoop()
}

func (b *Bridge) setupEventHandlers(events Events) {
	events.On(protocol.TypePlayerJoined, b.handlePlayerJoined)
	events.On(protocol.TypeGameStateUpdate, b.handleGameState)
	events.On(protocol.TypeError, b.handleError)
	events.On(protocol.TypeQueueJoined, b.handleQueueJoined)
	events.On(protocol.TypeQueueLeft, func(protocol.Envelope) { b.send(QueueLeftMsg{}) })
	events.On(protocol.TypeMatchFound, b.handleMatchFound)
}

// commandLoop handles user actions from the TUI
func (b *Bridge) commandLoop() {
	for {
		action := b.tui.WaitForAction()
		if !action.Continue || action.Action == "quit" {
			b.tui.SendQuitSignal()
			return
		}
		if err := b.handleCommand(action.Action, action.Args); err != nil {
			b.send(ErrorMsg{Code: "command", Message: err.Error()})
		}
	}
}

// handleCommand runs one typed command.
func (b *Bridge) handleCommand(action string, args []string) error {
	switch action {
	case "start":
		mode, goal, err := b.modeAndGoal(args)
		if err != nil {
			return err
		}
		seats := []protocol.SeatSpec{{}, {IsBot: true}, {IsBot: true}, {IsBot: true}}
		return b.actions.StartGame(mode, goal, seats)

	case "bid":
		if len(args) != 1 {
			return errors.New("usage: bid <0-13|nil>")
		}
		if args[0] == "nil" {
			return b.actions.PlaceBid(0)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bid must be a number: %q", args[0])
		}
		return b.actions.PlaceBid(n)

	case "play", "p":
		if len(args) != 1 {
			return errors.New("usage: play <card>, e.g. play AS or play 10H")
		}
		return b.actions.PlayCard(strings.ToUpper(args[0]))

	case "queue", "q":
		mode, goal, err := b.modeAndGoal(args)
		if err != nil {
			return err
		}
		return b.actions.JoinQueue(mode, goal)

	case "unqueue":
		return b.actions.LeaveQueue()

	case "leave":
		return b.actions.LeaveGame()

	case "help", "h", "?":
		b.send(LogMsg(helpText))
		return nil

	default:
		return fmt.Errorf("unknown command %q, type help", action)
	}
}

const helpText = `Commands:
  start [mode] [goal]   new game against three bots
  queue [mode] [goal]   find other players (modes: ace_high, jjdd)
  unqueue               leave the queue
  bid <0-13|nil>        bid for this round
  play <card>           play a card, e.g. play AS, play 10H, play BJ
  leave                 leave the current game
  quit                  exit`

// modeAndGoal reads the optional mode and point goal arguments.
func (b *Bridge) modeAndGoal(args []string) (deck.Mode, int, error) {
	mode, goal := b.defaults.Mode, b.defaults.PointGoal
	if len(args) > 2 {
		return "", 0, errors.New("expected at most a mode and a point goal")
	}
	if len(args) > 0 {
		m, err := deck.ParseMode(args[0])
		if err != nil {
			return "", 0, err
		}
		mode = m
	}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return "", 0, fmt.Errorf("point goal must be a positive number: %q", args[1])
		}
		goal = n
	}
	return mode, goal, nil
}

func (b *Bridge) handlePlayerJoined(env protocol.Envelope) {
	var joined protocol.PlayerJoined
	if b.decode(env, &joined) {
		b.send(PlayerJoinedMsg{PlayerID: joined.PlayerID})
	}
}

func (b *Bridge) handleGameState(env protocol.Envelope) {
	var update protocol.GameStateUpdate
	if b.decode(env, &update) {
		b.send(StateMsg{State: update.State})
	}
}

func (b *Bridge) handleError(env protocol.Envelope) {
	var e protocol.Error
	if b.decode(env, &e) {
		b.send(ErrorMsg{Code: e.Code, Message: e.Message})
	}
}

func (b *Bridge) handleQueueJoined(env protocol.Envelope) {
	var q protocol.QueueJoined
	if b.decode(env, &q) {
		b.send(QueueJoinedMsg{q})
	}
}

func (b *Bridge) handleMatchFound(env protocol.Envelope) {
	var mf protocol.MatchFound
	if b.decode(env, &mf) {
		b.send(MatchFoundMsg{mf})
	}
}

func (b *Bridge) decode(env protocol.Envelope, v any) bool {
	if err := env.DecodePayload(v); err != nil {
		b.send(ErrorMsg{Code: protocol.CodeProtocol, Message: err.Error()})
		return false
	}
	return true
}
