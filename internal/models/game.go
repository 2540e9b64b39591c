package models

import (
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

type GameStatus string

const (
	StatusWaiting   GameStatus = "waiting"
	StatusActive    GameStatus = "active"
	StatusCompleted GameStatus = "completed"
)

type AnswerType string

const (
	SpecificAnswer AnswerType = "specific_answer"
	MultipleChoice AnswerType = "multiple_choice"
	TrueFalse      AnswerType = "true_false"
)

// PointValues is the fixed set of board values per category.
var PointValues = []int{100, 200, 300, 400, 500}

type Game struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	RoomCode            string     `json:"roomCode"`
	HostName            string     `json:"hostName"`
	HostCode            string     `json:"-"`
	Categories          []string   `json:"categories"`
	Status              GameStatus `json:"status"`
	CurrentQuestionID   string     `json:"currentQuestionId,omitempty"`
	LastCorrectPlayerID string     `json:"lastCorrectPlayerId,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
}

type Player struct {
	ID         string `json:"id"`
	GameID     string `json:"gameId"`
	Name       string `json:"name"`
	Score      int    `json:"score"`
	IsHost     bool   `json:"isHost"`
	PlayerCode string `json:"-"`
	Connected  bool   `json:"connected"`
}

type Question struct {
	ID            string     `json:"id"`
	GameID        string     `json:"gameId"`
	Category      string     `json:"category"`
	Value         int        `json:"value"`
	Prompt        string     `json:"prompt"`
	AnswerType    AnswerType `json:"answerType"`
	CorrectAnswer string     `json:"correctAnswer"`
	Options       []string   `json:"options,omitempty"`
	Used          bool       `json:"used"`
}

type Buzz struct {
	ID         string    `json:"id"`
	GameID     string    `json:"gameId"`
	QuestionID string    `json:"questionId"`
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	IsFirst    bool      `json:"isFirst"`
	Order      int       `json:"order"`
}

type Answer struct {
	ID             string `json:"id"`
	GameID         string `json:"gameId"`
	QuestionID     string `json:"questionId"`
	PlayerID       string `json:"playerId"`
	PlayerName     string `json:"playerName,omitempty"`
	Text           string `json:"answer"`
	Order          int    `json:"order"`
	SubmissionTime int64  `json:"submissionTime,omitempty"`
	IsCorrect      *bool  `json:"isCorrect"`
	PointsAwarded  int    `json:"pointsAwarded"`
}

const roomCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func randomCode(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = roomCodeCharset[rand.Intn(len(roomCodeCharset))]
	}
	return string(b)
}

func NewGame(name, hostName string, categories []string) *Game {
	return &Game{
		ID:         uuid.New().String(),
		Name:       name,
		RoomCode:   randomCode(6),
		HostName:   hostName,
		HostCode:   randomCode(8),
		Categories: categories,
		Status:     StatusWaiting,
		CreatedAt:  time.Now(),
	}
}

func NewHostPlayer(gameID, name string) *Player {
	return &Player{
		ID:     uuid.New().String(),
		GameID: gameID,
		Name:   name,
		IsHost: true,
	}
}

func NewPlayer(gameID, name string) *Player {
	return &Player{
		ID:         uuid.New().String(),
		GameID:     gameID,
		Name:       name,
		PlayerCode: randomCode(6),
	}
}

// NewRoomCode generates a fresh public join code, used when a collision
// forces a retry.
func NewRoomCode() string {
	return randomCode(6)
}

// NormalizeRoomCode maps user input onto the stored room-code form.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
