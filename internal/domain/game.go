package domain

import "time"

// GameState is the public view of a room's round
type GameState struct {
	Running      bool   `json:"running"`
	DrawerID     string `json:"drawingPlayerId"`
	RevealedWord string `json:"revealedWord"`
	ElapsedTime  int    `json:"timePassed"`
}

// StopReason explains why a round ended
type StopReason string

const (
	StopTimeout    StopReason = "timeout"
	StopComplete   StopReason = "complete"
	StopDrawerLeft StopReason = "drawer_left"
	StopSuperseded StopReason = "superseded"
	StopShutdown   StopReason = "shutdown"
)

// RoundRecord is the history entry written when a round ends
type RoundRecord struct {
	ID         string     `json:"id"`
	RoomID     string     `json:"room_id"`
	Round      uint64     `json:"round"`
	Word       string     `json:"word"`
	DrawerName string     `json:"drawer_name"`
	Guessers   int        `json:"guessers"`
	Reason     StopReason `json:"reason"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    time.Time  `json:"ended_at"`
}

// RoomSummary describes a live room for the HTTP API
type RoomSummary struct {
	ID      string    `json:"id"`
	Players []Player  `json:"players"`
	State   GameState `json:"state"`
}
