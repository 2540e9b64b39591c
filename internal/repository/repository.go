package repository

import (
	"errors"
	"time"

	"trivia-live/internal/models"
)

// Repository is the persistent store behind the game state cache. The
// lifecycle engine writes through it; nothing else mutates game records.
type Repository interface {
	SaveGame(game *models.Game) error
	GetGame(gameID string) (*models.Game, error)
	GetGameByRoomCode(roomCode string) (*models.Game, error)
	DeleteGame(gameID string) error
	ListGames() ([]*models.Game, error)
	// DeleteCompletedGamesBefore removes completed games whose completion
	// time predates cutoff, returning the IDs of the games it deleted.
	DeleteCompletedGamesBefore(cutoff time.Time) ([]string, error)

	SavePlayer(player *models.Player) error
	GetPlayersByGame(gameID string) ([]*models.Player, error)
	DeletePlayer(playerID string) error

	SaveQuestion(question *models.Question) error
	GetQuestionsByGame(gameID string) ([]*models.Question, error)

	SaveBuzz(buzz *models.Buzz) error
	GetBuzzesByQuestion(questionID string) ([]*models.Buzz, error)
	DeleteBuzzesByGame(gameID string) error

	SaveAnswer(answer *models.Answer) error
	GetAnswersByQuestion(questionID string) ([]*models.Answer, error)
	DeleteAnswersByGame(gameID string) error
}

// ErrNotFound is returned for lookups of records that do not exist.
var ErrNotFound = errors.New("record not found")
