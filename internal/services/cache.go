package services

import (
	"errors"
	"sync"

	"trivia-live/internal/models"
	"trivia-live/internal/repository"
)

// StateCache holds the authoritative in-memory view of each active game,
// lazily hydrated from the repository. Every read-modify-write of one
// game's state runs under that game's entry lock, so operations against
// the same game are strictly serialized while different games proceed
// independently.
type StateCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	repo    repository.Repository
}

type cacheEntry struct {
	mu    sync.Mutex
	state *models.CompleteGameState
}

func NewStateCache(repo repository.Repository) *StateCache {
	return &StateCache{
		entries: make(map[string]*cacheEntry),
		repo:    repo,
	}
}

func (c *StateCache) entryFor(gameID string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[gameID]
	if !ok {
		entry = &cacheEntry{}
		c.entries[gameID] = entry
	}
	return entry
}

// Get returns the cached state for a game, hydrating it from the
// repository on first access. An unknown game yields ErrGameNotFound and
// never a partial object.
func (c *StateCache) Get(gameID string) (*models.CompleteGameState, error) {
	var state *models.CompleteGameState
	err := c.WithGame(gameID, func(s *models.CompleteGameState) error {
		state = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// WithGame runs fn with the game's state under the per-game lock. All
// lifecycle engine operations go through here.
func (c *StateCache) WithGame(gameID string, fn func(*models.CompleteGameState) error) error {
	entry := c.entryFor(gameID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.state == nil {
		state, err := c.hydrate(gameID)
		if err != nil {
			return err
		}
		entry.state = state
	}
	return fn(entry.state)
}

// Invalidate drops the cached entry so the next access re-hydrates from
// the repository. It takes the per-game lock, so it cannot race an
// in-flight mutation.
func (c *StateCache) Invalidate(gameID string) {
	entry := c.entryFor(gameID)
	entry.mu.Lock()
	entry.state = nil
	entry.mu.Unlock()
}

// Remove drops the entry entirely, used when a game is deleted.
func (c *StateCache) Remove(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, gameID)
}

// Seed installs a freshly created game's state without a repository round
// trip. The caller has already persisted every record in it.
func (c *StateCache) Seed(state *models.CompleteGameState) {
	entry := c.entryFor(state.Game.ID)
	entry.mu.Lock()
	entry.state = state
	entry.mu.Unlock()
}

func (c *StateCache) hydrate(gameID string) (*models.CompleteGameState, error) {
	game, err := c.repo.GetGame(gameID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}

	players, err := c.repo.GetPlayersByGame(gameID)
	if err != nil {
		return nil, err
	}
	questions, err := c.repo.GetQuestionsByGame(gameID)
	if err != nil {
		return nil, err
	}

	state := &models.CompleteGameState{
		Game:         game,
		Players:      players,
		Questions:    questions,
		Buzzes:       []*models.Buzz{},
		Answers:      []*models.Answer{},
		Phase:        models.PhaseNone,
		NextPickerID: game.LastCorrectPlayerID,
		BeforeScores: snapshotScores(players),
	}

	if game.CurrentQuestionID == "" {
		return state, nil
	}

	state.CurrentQuestion = state.GetQuestion(game.CurrentQuestionID)
	if state.CurrentQuestion == nil {
		return state, nil
	}

	buzzes, err := c.repo.GetBuzzesByQuestion(game.CurrentQuestionID)
	if err != nil {
		return nil, err
	}
	answers, err := c.repo.GetAnswersByQuestion(game.CurrentQuestionID)
	if err != nil {
		return nil, err
	}
	for _, b := range buzzes {
		if p := state.GetPlayer(b.PlayerID); p != nil {
			b.PlayerName = p.Name
		}
	}
	for _, a := range answers {
		if p := state.GetPlayer(a.PlayerID); p != nil {
			a.PlayerName = p.Name
		}
	}
	state.Buzzes = buzzes
	state.Answers = answers
	state.Phase = derivePhase(buzzes, answers)
	return state, nil
}

func derivePhase(buzzes []*models.Buzz, answers []*models.Answer) models.Phase {
	for _, a := range answers {
		if a.IsCorrect != nil {
			return models.PhaseAnswering
		}
	}
	if len(buzzes) > 0 {
		return models.PhaseBuzzingClosed
	}
	return models.PhaseActive
}

func snapshotScores(players []*models.Player) map[string]int {
	scores := make(map[string]int, len(players))
	for _, p := range players {
		scores[p.ID] = p.Score
	}
	return scores
}
