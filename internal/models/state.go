package models

import (
	"encoding/json"
	"time"
)

// Phase is the position of the current round in its lifecycle.
type Phase string

const (
	PhaseNone          Phase = "none"
	PhaseActive        Phase = "active"
	PhaseBuzzingClosed Phase = "buzzing_closed"
	PhaseAnswering     Phase = "answering"
	PhaseCompleted     Phase = "completed"
)

// QuestionTimeSeconds is the advisory round timer length. Clients render
// the countdown; expiry is not a server-side transition.
const QuestionTimeSeconds = 30

type ScoreChange struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Before     int    `json:"before"`
	After      int    `json:"after"`
	Delta      int    `json:"delta"`
}

type FinalStanding struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// CompleteGameState is the denormalized in-memory view of one game,
// assembled by the state cache and mutated only by the lifecycle engine.
type CompleteGameState struct {
	Game            *Game       `json:"game"`
	Players         []*Player   `json:"players"`
	Questions       []*Question `json:"questions"`
	CurrentQuestion *Question   `json:"currentQuestion,omitempty"`
	Buzzes          []*Buzz     `json:"buzzes"`
	Answers         []*Answer   `json:"answers"`
	Phase           Phase       `json:"phase"`
	NextPickerID    string      `json:"nextPickerId,omitempty"`
	AskedAt         *time.Time  `json:"askedAt,omitempty"`

	// Score snapshot captured when a question is selected, consumed by
	// CloseQuestion to build the round summary.
	BeforeScores    map[string]int `json:"-"`
	LastScoreChange []ScoreChange  `json:"lastScoreChange,omitempty"`
}

func (s *CompleteGameState) GetPlayer(playerID string) *Player {
	for _, p := range s.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (s *CompleteGameState) Host() *Player {
	for _, p := range s.Players {
		if p.IsHost {
			return p
		}
	}
	return nil
}

func (s *CompleteGameState) FindQuestion(category string, value int) *Question {
	for _, q := range s.Questions {
		if q.Category == category && q.Value == value {
			return q
		}
	}
	return nil
}

func (s *CompleteGameState) GetQuestion(questionID string) *Question {
	for _, q := range s.Questions {
		if q.ID == questionID {
			return q
		}
	}
	return nil
}

func (s *CompleteGameState) NonHostCount() int {
	n := 0
	for _, p := range s.Players {
		if !p.IsHost {
			n++
		}
	}
	return n
}

func (s *CompleteGameState) HasBuzzed(playerID string) bool {
	for _, b := range s.Buzzes {
		if b.PlayerID == playerID {
			return true
		}
	}
	return false
}

func (s *CompleteGameState) AnswerBy(playerID string) *Answer {
	for _, a := range s.Answers {
		if a.PlayerID == playerID {
			return a
		}
	}
	return nil
}

// ElapsedSeconds reports how long the current question has been up,
// capped at the advisory timer length for RemainingSeconds.
func (s *CompleteGameState) ElapsedSeconds() int {
	if s.AskedAt == nil {
		return 0
	}
	return int(time.Since(*s.AskedAt).Seconds())
}

func (s *CompleteGameState) RemainingSeconds() int {
	if s.AskedAt == nil {
		return 0
	}
	remaining := QuestionTimeSeconds - s.ElapsedSeconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MarshalJSON includes the advisory timer readings alongside the cached
// fields.
func (s *CompleteGameState) MarshalJSON() ([]byte, error) {
	type alias CompleteGameState
	return json.Marshal(struct {
		*alias
		ElapsedSeconds   int `json:"elapsedSeconds"`
		RemainingSeconds int `json:"remainingSeconds"`
	}{(*alias)(s), s.ElapsedSeconds(), s.RemainingSeconds()})
}
