package domain

// Player is a connected participant of a room. ID is the connection
// identity and dies with the connection; Name keys the persistent score.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int64  `json:"score"`
}

// LeaderboardEntry is a projection of the persistent score set
type LeaderboardEntry struct {
	Name  string `json:"name"`
	Score int64  `json:"score"`
}

// ChatMessage is a relayed chat line, also stored in the bounded history
type ChatMessage struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
}

// PlayerStanding is one player's place on the leaderboard
type PlayerStanding struct {
	Name  string `json:"name"`
	Score int64  `json:"score"`
	Rank  int64  `json:"rank"`
}

// LeaderboardStats summarizes the persistent score set
type LeaderboardStats struct {
	TotalPlayers int64 `json:"total_players"`
	TopScore     int64 `json:"top_score"`
}
