// Package protocol defines the JSON messages exchanged between clients and
// the server. Every frame is an Envelope whose payload type is selected by
// the envelope's type field.
package protocol

import (
	"github.com/lox/spades/internal/deck"
	"github.com/lox/spades/internal/game"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Client -> Server
	TypeStartGame  MessageType = "start_game"
	TypePlaceBid   MessageType = "place_bid"
	TypePlayCard   MessageType = "play_card"
	TypeLeaveLobby MessageType = "leave_lobby"
	TypeJoinQueue  MessageType = "join_queue"
	TypeLeaveQueue MessageType = "leave_queue"

	// Server -> Client
	TypePlayerJoined    MessageType = "player_joined"
	TypeGameStateUpdate MessageType = "game_state_update"
	TypeError           MessageType = "error"
	TypeQueueJoined     MessageType = "queue_joined"
	TypeQueueLeft       MessageType = "queue_left"
	TypeMatchFound      MessageType = "match_found"
)

// clientTypes are the messages a client may send.
var clientTypes = map[MessageType]bool{
	TypeStartGame:  true,
	TypePlaceBid:   true,
	TypePlayCard:   true,
	TypeLeaveLobby: true,
	TypeJoinQueue:  true,
	TypeLeaveQueue: true,
}

// IsClientType reports whether t is a message a client may send.
func IsClientType(t MessageType) bool {
	return clientTypes[t]
}

// Error codes carried by Error messages.
const (
	CodeValidation = "validation"
	CodeNotFound   = "not_found"
	CodeProtocol   = "protocol"
	CodeInternal   = "internal"
)

// Client -> Server Messages

// SeatSpec describes one seat in a start_game request. A human seat with no
// player id is taken by the sender; bot seats are given generated ids.
type SeatSpec struct {
	PlayerID string `json:"playerId,omitempty"`
	Name     string `json:"name,omitempty"`
	IsBot    bool   `json:"isBot"`
}

// StartGame asks the server to open a room with four seats.
type StartGame struct {
	Mode      deck.Mode  `json:"mode"`
	PointGoal int        `json:"pointGoal"`
	Players   []SeatSpec `json:"players"`
}

// PlaceBid is a bid from 0 (nil) to 13.
type PlaceBid struct {
	Bid int `json:"bid"`
}

// PlayCard plays one card by id.
type PlayCard struct {
	CardID string `json:"cardId"`
}

// LeaveLobby leaves the sender's current room.
type LeaveLobby struct{}

// JoinQueue enters the matchmaking queue for a mode and point goal.
type JoinQueue struct {
	Mode      deck.Mode `json:"mode"`
	PointGoal int       `json:"pointGoal"`
}

// LeaveQueue leaves the matchmaking queue.
type LeaveQueue struct{}

// Server -> Client Messages

// PlayerJoined assigns the connection's player identity. ResumeToken, passed
// as the resume query parameter on a later connection, restores the identity
// and any running game.
type PlayerJoined struct {
	PlayerID    string `json:"playerId"`
	ResumeToken string `json:"resumeToken,omitempty"`
}

// GameStateUpdate carries the recipient's view of a game.
type GameStateUpdate struct {
	State *game.GameState `json:"state"`
}

// Error reports a failure to one client.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QueueJoined confirms a queue entry.
type QueueJoined struct {
	Mode      deck.Mode `json:"mode"`
	PointGoal int       `json:"pointGoal"`
	Rating    float64   `json:"rating"`
}

// QueueLeft confirms the player is no longer queued.
type QueueLeft struct{}

// MatchFound tells a queued player which game they were placed in.
type MatchFound struct {
	GameID string `json:"gameId"`
	Seat   int    `json:"seat"`
	Team   int    `json:"team"`
}
