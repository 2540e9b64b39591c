package repository

import (
	"sort"
	"strings"
	"sync"
	"time"

	"trivia-live/internal/models"
)

// InMemoryRepository backs development and tests when no DATABASE_URL is
// configured. It keeps its own copies of records so callers cannot reach
// stored state through aliased pointers.
type InMemoryRepository struct {
	mu        sync.RWMutex
	games     map[string]*models.Game
	players   map[string]*models.Player
	questions map[string]*models.Question
	buzzes    map[string]*models.Buzz
	answers   map[string]*models.Answer
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		games:     make(map[string]*models.Game),
		players:   make(map[string]*models.Player),
		questions: make(map[string]*models.Question),
		buzzes:    make(map[string]*models.Buzz),
		answers:   make(map[string]*models.Answer),
	}
}

func copyGame(g *models.Game) *models.Game {
	c := *g
	c.Categories = append([]string(nil), g.Categories...)
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func copyQuestion(q *models.Question) *models.Question {
	c := *q
	c.Options = append([]string(nil), q.Options...)
	return &c
}

func copyAnswer(a *models.Answer) *models.Answer {
	c := *a
	if a.IsCorrect != nil {
		v := *a.IsCorrect
		c.IsCorrect = &v
	}
	return &c
}

func (r *InMemoryRepository) SaveGame(game *models.Game) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[game.ID] = copyGame(game)
	return nil
}

func (r *InMemoryRepository) GetGame(gameID string) (*models.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	game, ok := r.games[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyGame(game), nil
}

func (r *InMemoryRepository) GetGameByRoomCode(roomCode string) (*models.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code := strings.ToUpper(roomCode)
	for _, game := range r.games {
		if strings.ToUpper(game.RoomCode) == code {
			return copyGame(game), nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepository) DeleteGame(gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteGameLocked(gameID)
	return nil
}

func (r *InMemoryRepository) deleteGameLocked(gameID string) {
	delete(r.games, gameID)
	for id, p := range r.players {
		if p.GameID == gameID {
			delete(r.players, id)
		}
	}
	for id, q := range r.questions {
		if q.GameID == gameID {
			delete(r.questions, id)
		}
	}
	for id, b := range r.buzzes {
		if b.GameID == gameID {
			delete(r.buzzes, id)
		}
	}
	for id, a := range r.answers {
		if a.GameID == gameID {
			delete(r.answers, id)
		}
	}
}

func (r *InMemoryRepository) DeleteCompletedGamesBefore(cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted []string
	for id, g := range r.games {
		if g.Status == models.StatusCompleted && g.CompletedAt != nil && g.CompletedAt.Before(cutoff) {
			deleted = append(deleted, id)
		}
	}
	for _, id := range deleted {
		r.deleteGameLocked(id)
	}
	return deleted, nil
}

func (r *InMemoryRepository) ListGames() ([]*models.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	games := make([]*models.Game, 0, len(r.games))
	for _, game := range r.games {
		games = append(games, copyGame(game))
	}
	sort.Slice(games, func(i, j int) bool {
		return games[i].CreatedAt.After(games[j].CreatedAt)
	})
	return games, nil
}

func (r *InMemoryRepository) SavePlayer(player *models.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *player
	r.players[player.ID] = &c
	return nil
}

func (r *InMemoryRepository) GetPlayersByGame(gameID string) ([]*models.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var players []*models.Player
	for _, p := range r.players {
		if p.GameID == gameID {
			c := *p
			players = append(players, &c)
		}
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].IsHost != players[j].IsHost {
			return players[i].IsHost
		}
		return players[i].Name < players[j].Name
	})
	return players, nil
}

func (r *InMemoryRepository) DeletePlayer(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, playerID)
	return nil
}

func (r *InMemoryRepository) SaveQuestion(question *models.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questions[question.ID] = copyQuestion(question)
	return nil
}

func (r *InMemoryRepository) GetQuestionsByGame(gameID string) ([]*models.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var questions []*models.Question
	for _, q := range r.questions {
		if q.GameID == gameID {
			questions = append(questions, copyQuestion(q))
		}
	}
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].Category != questions[j].Category {
			return questions[i].Category < questions[j].Category
		}
		return questions[i].Value < questions[j].Value
	})
	return questions, nil
}

func (r *InMemoryRepository) SaveBuzz(buzz *models.Buzz) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *buzz
	r.buzzes[buzz.ID] = &c
	return nil
}

func (r *InMemoryRepository) GetBuzzesByQuestion(questionID string) ([]*models.Buzz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var buzzes []*models.Buzz
	for _, b := range r.buzzes {
		if b.QuestionID == questionID {
			c := *b
			buzzes = append(buzzes, &c)
		}
	}
	sort.Slice(buzzes, func(i, j int) bool {
		return buzzes[i].Order < buzzes[j].Order
	})
	return buzzes, nil
}

func (r *InMemoryRepository) DeleteBuzzesByGame(gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, b := range r.buzzes {
		if b.GameID == gameID {
			delete(r.buzzes, id)
		}
	}
	return nil
}

func (r *InMemoryRepository) SaveAnswer(answer *models.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers[answer.ID] = copyAnswer(answer)
	return nil
}

func (r *InMemoryRepository) GetAnswersByQuestion(questionID string) ([]*models.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var answers []*models.Answer
	for _, a := range r.answers {
		if a.QuestionID == questionID {
			answers = append(answers, copyAnswer(a))
		}
	}
	sort.Slice(answers, func(i, j int) bool {
		return answers[i].Order < answers[j].Order
	})
	return answers, nil
}

func (r *InMemoryRepository) DeleteAnswersByGame(gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.answers {
		if a.GameID == gameID {
			delete(r.answers, id)
		}
	}
	return nil
}
