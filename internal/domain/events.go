package domain

// Inbound event names
const (
	EventConnect     = "connect"
	EventJoin        = "playerJoin"
	EventJoinAlias   = "join"
	EventStart       = "start"
	EventMessage     = "message"
	EventImage       = "image"
	EventClearCanvas = "clearCanvas"
)

// Outbound event names
const (
	EventPlayerJoin     = "playerJoin"
	EventPlayerLeft     = "playerLeft"
	EventOnlinePlayers  = "onlinePlayers"
	EventMessageHistory = "messageHistory"
	EventLeaderboard    = "leaderboard"
	EventWordReveal     = "wordReveal"
	EventCorrectWord    = "correctWord"
	EventTime           = "time"
	EventStop           = "stop"
	EventGameState      = "gameState"
	EventError          = "error"
)

// Event is a named payload delivered to one or more connections
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// CrossesNodes reports whether a room broadcast is meaningful to clients on
// other server nodes. Chat and canvas events are; round state is owned by
// each node's own room and stays local.
func CrossesNodes(name string) bool {
	switch name {
	case EventMessage, EventImage, EventClearCanvas:
		return true
	default:
		return false
	}
}
