package services

import (
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"trivia-live/internal/models"
	"trivia-live/internal/repository"
)

// GameService is the question lifecycle engine. It owns every mutation of
// a game's CompleteGameState: each operation runs under the game's cache
// lock, persists through the repository first, and only then updates the
// in-memory snapshot, so a failed write leaves the cached state untouched.
type GameService struct {
	repo       repository.Repository
	cache      *StateCache
	maxPlayers int
}

const (
	cleanupInterval  = 10 * time.Minute
	completedGameTTL = time.Hour
)

func NewGameService(repo repository.Repository, maxPlayers int) *GameService {
	gs := &GameService{
		repo:       repo,
		cache:      NewStateCache(repo),
		maxPlayers: maxPlayers,
	}
	go gs.startCleanupTask()
	return gs
}

func (gs *GameService) startCleanupTask() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		gs.cleanupCompletedGames()
	}
}

// cleanupCompletedGames drops completed games whose TTL has passed,
// evicting their cached state along with the stored records.
func (gs *GameService) cleanupCompletedGames() {
	deleted, err := gs.repo.DeleteCompletedGamesBefore(time.Now().Add(-completedGameTTL))
	if err != nil {
		log.Printf("Error cleaning up completed games: %v", err)
		return
	}
	for _, gameID := range deleted {
		gs.cache.Remove(gameID)
	}
	if len(deleted) > 0 {
		log.Printf("Cleaned up %d completed game(s)", len(deleted))
	}
}

func (gs *GameService) Cache() *StateCache {
	return gs.cache
}

// QuestionSetup is one entry of the optional serialized question set a
// client may supply when creating a game.
type QuestionSetup struct {
	Category      string            `json:"category"`
	Value         int               `json:"value"`
	Prompt        string            `json:"prompt"`
	AnswerType    models.AnswerType `json:"answerType"`
	CorrectAnswer string            `json:"correctAnswer"`
	Options       []string          `json:"options,omitempty"`
}

// MarkResult reports the outcome of grading one participant's answer.
type MarkResult struct {
	PlayerID      string `json:"playerId"`
	IsCorrect     *bool  `json:"isCorrect"`
	PointsAwarded int    `json:"pointsAwarded"`
	NewScore      int    `json:"newScore"`
	CanPickNext   bool   `json:"canPickNext"`
}

func (gs *GameService) CreateGame(name, hostName string, categories []string, setup []QuestionSetup) (*models.CompleteGameState, error) {
	game := models.NewGame(name, hostName, categories)

	// Room codes are short; regenerate on the rare collision.
	assigned := false
	for attempts := 0; attempts < 10; attempts++ {
		_, err := gs.repo.GetGameByRoomCode(game.RoomCode)
		if errors.Is(err, repository.ErrNotFound) {
			assigned = true
			break
		}
		if err != nil {
			return nil, err
		}
		game.RoomCode = models.NewRoomCode()
	}
	if !assigned {
		return nil, ErrRoomCodeUnavailable
	}

	if err := gs.repo.SaveGame(game); err != nil {
		return nil, err
	}

	host := models.NewHostPlayer(game.ID, hostName)
	if err := gs.repo.SavePlayer(host); err != nil {
		return nil, err
	}

	questions := buildQuestions(game, setup)
	for _, q := range questions {
		if err := gs.repo.SaveQuestion(q); err != nil {
			return nil, err
		}
	}

	state := &models.CompleteGameState{
		Game:         game,
		Players:      []*models.Player{host},
		Questions:    questions,
		Buzzes:       []*models.Buzz{},
		Answers:      []*models.Answer{},
		Phase:        models.PhaseNone,
		BeforeScores: map[string]int{host.ID: 0},
	}
	gs.cache.Seed(state)

	log.Printf("Created game %s (%s) with room code %s and %d questions", game.Name, game.ID, game.RoomCode, len(questions))
	return state, nil
}

// ResolveRoomCode maps a public room code to its game ID.
func (gs *GameService) ResolveRoomCode(roomCode string) (string, error) {
	return gs.findGameByRoomCode(roomCode)
}

func (gs *GameService) findGameByRoomCode(roomCode string) (string, error) {
	game, err := gs.repo.GetGameByRoomCode(models.NormalizeRoomCode(roomCode))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrGameNotFound
		}
		return "", err
	}
	return game.ID, nil
}

// JoinGame resolves or creates a player for the room. A player code
// reconnects an existing identity; without one a fresh player is created.
func (gs *GameService) JoinGame(roomCode, playerName, playerCode string) (*models.CompleteGameState, *models.Player, error) {
	gameID, err := gs.findGameByRoomCode(roomCode)
	if err != nil {
		return nil, nil, err
	}

	var state *models.CompleteGameState
	var player *models.Player
	err = gs.cache.WithGame(gameID, func(s *models.CompleteGameState) error {
		if playerCode != "" {
			for _, p := range s.Players {
				if !p.IsHost && strings.EqualFold(p.PlayerCode, playerCode) {
					updated := *p
					updated.Connected = true
					if err := gs.repo.SavePlayer(&updated); err != nil {
						return err
					}
					*p = updated
					state, player = s, p
					return nil
				}
			}
			return ErrInvalidPlayerCode
		}

		if gs.maxPlayers > 0 && s.NonHostCount() >= gs.maxPlayers {
			return ErrGameFull
		}

		p := models.NewPlayer(gameID, playerName)
		p.Connected = true
		if err := gs.repo.SavePlayer(p); err != nil {
			return err
		}
		s.Players = append(s.Players, p)
		s.BeforeScores[p.ID] = 0
		state, player = s, p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return state, player, nil
}

// JoinAsHost re-authenticates the host identity with the game's host code.
func (gs *GameService) JoinAsHost(roomCode, hostCode string) (*models.CompleteGameState, *models.Player, error) {
	gameID, err := gs.findGameByRoomCode(roomCode)
	if err != nil {
		return nil, nil, err
	}

	var state *models.CompleteGameState
	var host *models.Player
	err = gs.cache.WithGame(gameID, func(s *models.CompleteGameState) error {
		if s.Game.HostCode != hostCode {
			return ErrInvalidHostCode
		}
		h := s.Host()
		if h == nil {
			return ErrPlayerNotFound
		}
		updated := *h
		updated.Connected = true
		if err := gs.repo.SavePlayer(&updated); err != nil {
			return err
		}
		*h = updated
		state, host = s, h
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return state, host, nil
}

// CreatePlayer pre-provisions a joinable player slot. Host only.
func (gs *GameService) CreatePlayer(gameID, requesterID, playerName string) (*models.CompleteGameState, *models.Player, error) {
	var state *models.CompleteGameState
	var player *models.Player
	err := gs.cache.WithGame(gameID, func(s *models.CompleteGameState) error {
		requester := s.GetPlayer(requesterID)
		if requester == nil {
			return ErrPlayerNotFound
		}
		if !requester.IsHost {
			return ErrNotHost
		}
		if gs.maxPlayers > 0 && s.NonHostCount() >= gs.maxPlayers {
			return ErrGameFull
		}

		p := models.NewPlayer(gameID, playerName)
		if err := gs.repo.SavePlayer(p); err != nil {
			return err
		}
		s.Players = append(s.Players, p)
		s.BeforeScores[p.ID] = 0
		state, player = s, p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return state, player, nil
}

func (gs *GameService) GetState(gameID string) (*models.CompleteGameState, error) {
	return gs.cache.Get(gameID)
}

func (gs *GameService) ListGames() ([]*models.Game, error) {
	return gs.repo.ListGames()
}

// Refresh evicts the cached state so the next access rebuilds from the
// repository, picking up REST-side edits.
func (gs *GameService) Refresh(gameID string) {
	gs.cache.Invalidate(gameID)
}

func (gs *GameService) DeleteGame(gameID string) error {
	if err := gs.repo.DeleteGame(gameID); err != nil {
		return err
	}
	gs.cache.Remove(gameID)
	return nil
}

// SelectQuestion makes the (category, value) question current, clears the
// previous round's buzzes and answers, and captures the score snapshot
// used for the round summary.
func (gs *GameService) SelectQuestion(gameID, category string, value int) (*models.CompleteGameState, *models.Question, error) {
	var state *models.CompleteGameState
	var question *models.Question
	err := gs.cache.WithGame(gameID, func(s *models.CompleteGameState) error {
		if s.CurrentQuestion != nil {
			return ErrQuestionActive
		}
		q := s.FindQuestion(category, value)
		if q == nil {
			return ErrQuestionNotFound
		}
		if q.Used {
			return ErrQuestionUsed
		}

		if err := gs.repo.DeleteBuzzesByGame(gameID); err != nil {
			return err
		}
		if err := gs.repo.DeleteAnswersByGame(gameID); err != nil {
			return err
		}

		game := *s.Game
		game.CurrentQuestionID = q.ID
		game.Status = models.StatusActive
		if err := gs.repo.SaveGame(&game); err != nil {
			return err
		}

		now := time.Now()
		*s.Game = game
		s.CurrentQuestion = q
		s.Buzzes = []*models.Buzz{}
		s.Answers = []*models.Answer{}
		s.Phase = models.PhaseActive
		s.AskedAt = &now
		s.BeforeScores = snapshotScores(s.Players)
		s.LastScoreChange = nil
		state, question = s, q
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return state, question, nil
}

// BuzzIn records a buzz with the next order index. The first buzz closes
// the buzzing window; later buzzes are recorded for ranking only.
func (gs *GameService) BuzzIn(gameID, playerID, questionID string) (*models.CompleteGameState, *models.Buzz, error) {
	var state *models.CompleteGameState
	var buzz *models.Buzz
	err := gs.cache.WithGame(gameID, func(s *models.CompleteGameState) error {
		if s.CurrentQuestion == nil {
			return ErrNoCurrentQuestion
		}
		if s.CurrentQuestion.ID != questionID {
			return ErrNotCurrentQuestion
		}
		player := s.GetPlayer(playerID)
		if player == nil {
			return ErrPlayerNotFound
		}
		if s.HasBuzzed(playerID) {
			return ErrAlreadyBuzzed
		}

		b := &models.Buzz{
			ID:         uuid.New().String(),
			GameID:     gameID,
			QuestionID: questionID,
			PlayerID:   playerID,
			PlayerName: player.Name,
			Timestamp:  time.Now(),
			Order:      len(s.Buzzes) + 1,
			IsFirst:    len(s.Buzzes) == 0,
		}
		if err := gs.repo.SaveBuzz(b); err != nil {
			return err
		}

		s.Buzzes = append(s.Buzzes, b)
		if b.IsFirst {
			s.Phase = models.PhaseBuzzingClosed
		}
		state, buzz = s, b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return state, buzz, nil
}

// SubmitAnswer appends an ungraded answer for the current question. At
// most one submission per participant per question.
func (gs *GameService) SubmitAnswer(gameID, playerID, questionID, text string, submissionTime int64) (*models.CompleteGameState, *models.Answer, error) {
	var state *models.CompleteGameState
	var answer *models.Answer
	err := gs.cache.WithGame(gameID, func(s *models.CompleteGameState) error {
		if s.CurrentQuestion == nil {
			return ErrNoCurrentQuestion
		}
		if s.CurrentQuestion.ID != questionID {
			return ErrNotCurrentQuestion
		}
		player := s.GetPlayer(playerID)
		if player == nil {
			return ErrPlayerNotFound
		}
		if s.AnswerBy(playerID) != nil {
			return ErrAlreadyAnswered
		}

		a := &models.Answer{
			ID:             uuid.New().String(),
			GameID:         gameID,
			QuestionID:     questionID,
			PlayerID:       playerID,
			PlayerName:     player.Name,
			Text:           text,
			Order:          len(s.Answers) + 1,
			SubmissionTime: submissionTime,
		}
		if err := gs.repo.SaveAnswer(a); err != nil {
			return err
		}

		s.Answers = append(s.Answers, a)
		state, answer = s, a
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return state, answer, nil
}

// MarkAnswer grades one participant for the current question: +value for
// correct, -value for wrong, no change for neutral (nil). A correct
// grading makes the participant the next picker.
func (gs *GameService) MarkAnswer(gameID, playerID string, isCorrect *bool) (*models.CompleteGameState, *MarkResult, error) {
	var state *models.CompleteGameState
	var result *MarkResult
	err := gs.cache.WithGame(gameID, func(s *models.CompleteGameState) error {
		if s.CurrentQuestion == nil {
			return ErrNoCurrentQuestion
		}
		player := s.GetPlayer(playerID)
		if player == nil {
			return ErrPlayerNotFound
		}

		delta := 0
		if isCorrect != nil {
			if *isCorrect {
				delta = s.CurrentQuestion.Value
			} else {
				delta = -s.CurrentQuestion.Value
			}
		}

		updated := *player
		updated.Score += delta
		if err := gs.repo.SavePlayer(&updated); err != nil {
			return err
		}

		// Grade the submitted answer in place when one exists; otherwise
		// append a graded record so the round summary has one.
		var graded models.Answer
		existing := s.AnswerBy(playerID)
		if existing != nil {
			graded = *existing
		} else {
			graded = models.Answer{
				ID:         uuid.New().String(),
				GameID:     gameID,
				QuestionID: s.CurrentQuestion.ID,
				PlayerID:   playerID,
				PlayerName: player.Name,
				Order:      len(s.Answers) + 1,
			}
		}
		graded.IsCorrect = isCorrect
		graded.PointsAwarded = delta
		if err := gs.repo.SaveAnswer(&graded); err != nil {
			return err
		}

		game := *s.Game
		canPickNext := isCorrect != nil && *isCorrect
		if canPickNext {
			game.LastCorrectPlayerID = playerID
			if err := gs.repo.SaveGame(&game); err != nil {
				return err
			}
		}

		*player = updated
		if existing != nil {
			*existing = graded
		} else {
			s.Answers = append(s.Answers, &graded)
		}
		*s.Game = game
		if canPickNext {
			s.NextPickerID = playerID
		}
		s.Phase = models.PhaseAnswering

		state = s
		result = &MarkResult{
			PlayerID:      playerID,
			IsCorrect:     isCorrect,
			PointsAwarded: delta,
			NewScore:      updated.Score,
			CanPickNext:   canPickNext,
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return state, result, nil
}

// CloseQuestion flags the current question used, finalizes the round
// summary, and returns the board to the idle phase. Closing with no
// current question just clears the transient lists.
func (gs *GameService) CloseQuestion(gameID string) (*models.CompleteGameState, error) {
	var state *models.CompleteGameState
	err := gs.cache.WithGame(gameID, func(s *models.CompleteGameState) error {
		if err := gs.repo.DeleteBuzzesByGame(gameID); err != nil {
			return err
		}
		if err := gs.repo.DeleteAnswersByGame(gameID); err != nil {
			return err
		}

		if s.CurrentQuestion == nil {
			s.Buzzes = []*models.Buzz{}
			s.Answers = []*models.Answer{}
			s.Phase = models.PhaseNone
			state = s
			return nil
		}

		question := *s.CurrentQuestion
		question.Used = true
		if err := gs.repo.SaveQuestion(&question); err != nil {
			return err
		}

		game := *s.Game
		game.CurrentQuestionID = ""
		if err := gs.repo.SaveGame(&game); err != nil {
			return err
		}

		var changes []models.ScoreChange
		for _, p := range s.Players {
			before, ok := s.BeforeScores[p.ID]
			if !ok {
				before = p.Score
			}
			changes = append(changes, models.ScoreChange{
				PlayerID:   p.ID,
				PlayerName: p.Name,
				Before:     before,
				After:      p.Score,
				Delta:      p.Score - before,
			})
		}

		*s.CurrentQuestion = question
		*s.Game = game
		s.CurrentQuestion = nil
		s.Buzzes = []*models.Buzz{}
		s.Answers = []*models.Answer{}
		s.Phase = models.PhaseNone
		s.AskedAt = nil
		s.NextPickerID = game.LastCorrectPlayerID
		s.LastScoreChange = changes
		state = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// MarkQuestionUsed flags any question used without making it current,
// letting the host retire a question off-round.
func (gs *GameService) MarkQuestionUsed(gameID, questionID string) (*models.CompleteGameState, error) {
	var state *models.CompleteGameState
	err := gs.cache.WithGame(gameID, func(s *models.CompleteGameState) error {
		q := s.GetQuestion(questionID)
		if q == nil {
			return ErrQuestionNotFound
		}
		updated := *q
		updated.Used = true
		if err := gs.repo.SaveQuestion(&updated); err != nil {
			return err
		}
		*q = updated
		state = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// EndGame completes the game and computes score-sorted final standings.
func (gs *GameService) EndGame(gameID string) (*models.CompleteGameState, []models.FinalStanding, error) {
	var state *models.CompleteGameState
	var standings []models.FinalStanding
	err := gs.cache.WithGame(gameID, func(s *models.CompleteGameState) error {
		game := *s.Game
		game.Status = models.StatusCompleted
		game.CurrentQuestionID = ""
		now := time.Now()
		game.CompletedAt = &now
		if err := gs.repo.SaveGame(&game); err != nil {
			return err
		}

		*s.Game = game
		s.CurrentQuestion = nil
		s.Phase = models.PhaseNone
		s.AskedAt = nil

		ranked := make([]*models.Player, 0, len(s.Players))
		for _, p := range s.Players {
			if !p.IsHost {
				ranked = append(ranked, p)
			}
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Score > ranked[j].Score
		})
		for i, p := range ranked {
			rank := i + 1
			if i > 0 && p.Score == ranked[i-1].Score {
				rank = standings[i-1].Rank
			}
			standings = append(standings, models.FinalStanding{
				Rank:     rank,
				PlayerID: p.ID,
				Name:     p.Name,
				Score:    p.Score,
			})
		}
		state = s
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return state, standings, nil
}

// ResetGame zeroes every score, unflags every question, and returns the
// game to the waiting state. Calling it on an already-reset game is a
// no-op on scores and usage.
func (gs *GameService) ResetGame(gameID string) (*models.CompleteGameState, error) {
	var state *models.CompleteGameState
	err := gs.cache.WithGame(gameID, func(s *models.CompleteGameState) error {
		for _, p := range s.Players {
			if p.Score == 0 {
				continue
			}
			updated := *p
			updated.Score = 0
			if err := gs.repo.SavePlayer(&updated); err != nil {
				return err
			}
			*p = updated
		}
		for _, q := range s.Questions {
			if !q.Used {
				continue
			}
			updated := *q
			updated.Used = false
			if err := gs.repo.SaveQuestion(&updated); err != nil {
				return err
			}
			*q = updated
		}

		game := *s.Game
		game.Status = models.StatusWaiting
		game.CurrentQuestionID = ""
		game.LastCorrectPlayerID = ""
		game.CompletedAt = nil
		if err := gs.repo.SaveGame(&game); err != nil {
			return err
		}
		if err := gs.repo.DeleteBuzzesByGame(gameID); err != nil {
			return err
		}
		if err := gs.repo.DeleteAnswersByGame(gameID); err != nil {
			return err
		}

		*s.Game = game
		s.CurrentQuestion = nil
		s.Buzzes = []*models.Buzz{}
		s.Answers = []*models.Answer{}
		s.Phase = models.PhaseNone
		s.AskedAt = nil
		s.NextPickerID = ""
		s.BeforeScores = snapshotScores(s.Players)
		s.LastScoreChange = nil
		state = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// RemovePlayer deletes a non-host participant from the game.
func (gs *GameService) RemovePlayer(gameID, playerID string) (*models.CompleteGameState, error) {
	var state *models.CompleteGameState
	err := gs.cache.WithGame(gameID, func(s *models.CompleteGameState) error {
		player := s.GetPlayer(playerID)
		if player == nil {
			return ErrPlayerNotFound
		}
		if player.IsHost {
			return ErrCannotRemoveHost
		}
		if err := gs.repo.DeletePlayer(playerID); err != nil {
			return err
		}
		s.Players = removePlayerFrom(s.Players, playerID)
		delete(s.BeforeScores, playerID)
		state = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// ClearPlayers deletes every non-host participant.
func (gs *GameService) ClearPlayers(gameID string) (*models.CompleteGameState, []string, error) {
	var state *models.CompleteGameState
	var removed []string
	err := gs.cache.WithGame(gameID, func(s *models.CompleteGameState) error {
		for _, p := range s.Players {
			if p.IsHost {
				continue
			}
			if err := gs.repo.DeletePlayer(p.ID); err != nil {
				return err
			}
			removed = append(removed, p.ID)
		}
		for _, id := range removed {
			s.Players = removePlayerFrom(s.Players, id)
			delete(s.BeforeScores, id)
		}
		state = s
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return state, removed, nil
}

func removePlayerFrom(players []*models.Player, playerID string) []*models.Player {
	for i, p := range players {
		if p.ID == playerID {
			return append(players[:i], players[i+1:]...)
		}
	}
	return players
}
