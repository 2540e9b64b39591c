package services

import "errors"

var (
	ErrGameNotFound       = errors.New("game not found")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrQuestionUsed       = errors.New("question has already been used")
	ErrQuestionActive     = errors.New("another question is already active")
	ErrNoCurrentQuestion  = errors.New("no active question")
	ErrNotCurrentQuestion = errors.New("question is not the active question")
	ErrAlreadyBuzzed      = errors.New("player has already buzzed for this question")
	ErrAlreadyAnswered    = errors.New("player has already submitted an answer for this question")
	ErrInvalidHostCode    = errors.New("invalid host code")
	ErrInvalidPlayerCode  = errors.New("invalid player code")
	ErrNotHost            = errors.New("only the host can do that")
	ErrGameFull           = errors.New("game is full")
	ErrCannotRemoveHost   = errors.New("the host cannot be removed")

	ErrRoomCodeUnavailable = errors.New("could not allocate a unique room code")
)
