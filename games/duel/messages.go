package duel

// Message types exchanged with clients.
const (
	TypeConnected            = "connected"
	TypeSearching            = "searching"
	TypeMatchFound           = "matchFound"
	TypeCountdown            = "countdown"
	TypeGameStart            = "gameStart"
	TypePlayerMove           = "playerMove"
	TypeOpponentMove         = "opponentMove"
	TypePlayerDeath          = "playerDeath"
	TypeGameOver             = "gameOver"
	TypeRematch              = "rematch"
	TypeRematchVote          = "rematchVote"
	TypeSearchNewMatch       = "searchNewMatch"
	TypeOpponentDisconnected = "opponentDisconnected"
)

// Inbound is the union of every client-to-server message.
type Inbound struct {
	Type     string  `json:"type"`               // "playerMove", "playerDeath", "rematch", "searchNewMatch"
	BirdY    float64 `json:"birdY,omitempty"`    // playerMove
	Velocity float64 `json:"velocity,omitempty"` // playerMove
	Score    int     `json:"score,omitempty"`    // playerMove
}

// ConnectedMessage assigns identity right after the connection opens.
type ConnectedMessage struct {
	Type       string `json:"type"` // "connected"
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// SearchingMessage tells a queued session it is waiting for an opponent.
type SearchingMessage struct {
	Type    string `json:"type"` // "searching"
	Message string `json:"message"`
}

type MatchFoundMessage struct {
	Type     string `json:"type"` // "matchFound"
	Opponent string `json:"opponent"`
}

type CountdownMessage struct {
	Type  string `json:"type"` // "countdown"
	Count int    `json:"count"`
}

// GameStartMessage carries the seed both peers use to lay out obstacles.
type GameStartMessage struct {
	Type string `json:"type"` // "gameStart"
	Seed int64  `json:"seed"`
}

// OpponentMoveMessage is a verbatim relay of the other member's playerMove.
type OpponentMoveMessage struct {
	Type     string  `json:"type"` // "opponentMove"
	BirdY    float64 `json:"birdY"`
	Velocity float64 `json:"velocity"`
	Score    int     `json:"score"`
}

// GameOverMessage resolves a match. FinalScores is keyed by player ID.
type GameOverMessage struct {
	Type        string         `json:"type"` // "gameOver"
	Winner      string         `json:"winner"`
	Loser       string         `json:"loser"`
	FinalScores map[string]int `json:"finalScores"`
}

type RematchVoteMessage struct {
	Type       string `json:"type"` // "rematchVote"
	PlayerName string `json:"playerName"`
}

// SimpleMessage is for notifications without a payload ("opponentDisconnected").
type SimpleMessage struct {
	Type string `json:"type"`
}
