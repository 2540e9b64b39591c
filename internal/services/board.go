package services

import (
	"fmt"

	"github.com/google/uuid"

	"trivia-live/internal/models"
)

// buildQuestions turns the optional serialized setup into question
// records, or generates a placeholder board (one question per category and
// point value) the host can edit before play.
func buildQuestions(game *models.Game, setup []QuestionSetup) []*models.Question {
	if len(setup) > 0 {
		questions := make([]*models.Question, 0, len(setup))
		for _, entry := range setup {
			answerType := entry.AnswerType
			if answerType == "" {
				answerType = models.SpecificAnswer
			}
			questions = append(questions, &models.Question{
				ID:            uuid.New().String(),
				GameID:        game.ID,
				Category:      entry.Category,
				Value:         entry.Value,
				Prompt:        entry.Prompt,
				AnswerType:    answerType,
				CorrectAnswer: entry.CorrectAnswer,
				Options:       entry.Options,
			})
		}
		return questions
	}

	var questions []*models.Question
	for _, category := range game.Categories {
		for _, value := range models.PointValues {
			questions = append(questions, &models.Question{
				ID:            uuid.New().String(),
				GameID:        game.ID,
				Category:      category,
				Value:         value,
				Prompt:        fmt.Sprintf("%s for %d", category, value),
				AnswerType:    models.SpecificAnswer,
				CorrectAnswer: "",
			})
		}
	}
	return questions
}
