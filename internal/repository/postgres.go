package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"trivia-live/internal/models"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(databaseURL string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

func createTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			room_code VARCHAR(16) NOT NULL UNIQUE,
			host_name VARCHAR(255) NOT NULL,
			host_code VARCHAR(16) NOT NULL,
			categories TEXT[] NOT NULL DEFAULT '{}',
			status VARCHAR(50) NOT NULL DEFAULT 'waiting',
			current_question_id VARCHAR(36),
			last_correct_player_id VARCHAR(36),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			completed_at TIMESTAMP WITH TIME ZONE
		);`,
		`CREATE TABLE IF NOT EXISTS players (
			id VARCHAR(36) PRIMARY KEY,
			game_id VARCHAR(36) NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			score INTEGER NOT NULL DEFAULT 0,
			is_host BOOLEAN NOT NULL DEFAULT FALSE,
			player_code VARCHAR(16),
			connected BOOLEAN NOT NULL DEFAULT FALSE
		);`,
		`CREATE TABLE IF NOT EXISTS questions (
			id VARCHAR(36) PRIMARY KEY,
			game_id VARCHAR(36) NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			category VARCHAR(255) NOT NULL,
			value INTEGER NOT NULL,
			prompt TEXT NOT NULL,
			answer_type VARCHAR(50) NOT NULL DEFAULT 'specific_answer',
			correct_answer TEXT NOT NULL,
			options TEXT[],
			used BOOLEAN NOT NULL DEFAULT FALSE
		);`,
		`CREATE TABLE IF NOT EXISTS buzzes (
			id VARCHAR(36) PRIMARY KEY,
			game_id VARCHAR(36) NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			question_id VARCHAR(36) NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			player_id VARCHAR(36) NOT NULL,
			buzzed_at TIMESTAMP WITH TIME ZONE NOT NULL,
			is_first BOOLEAN NOT NULL DEFAULT FALSE,
			buzz_order INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS answers (
			id VARCHAR(36) PRIMARY KEY,
			game_id VARCHAR(36) NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			question_id VARCHAR(36) NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			player_id VARCHAR(36) NOT NULL,
			answer_text TEXT NOT NULL DEFAULT '',
			answer_order INTEGER NOT NULL,
			submission_time BIGINT NOT NULL DEFAULT 0,
			is_correct BOOLEAN,
			points_awarded INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_players_game_id ON players(game_id);`,
		`CREATE INDEX IF NOT EXISTS idx_questions_game_id ON questions(game_id);`,
		`CREATE INDEX IF NOT EXISTS idx_buzzes_question_id ON buzzes(question_id);`,
		`CREATE INDEX IF NOT EXISTS idx_answers_question_id ON answers(question_id);`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) SaveGame(game *models.Game) error {
	query := `
		INSERT INTO games (id, name, room_code, host_name, host_code, categories, status, current_question_id, last_correct_player_id, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			categories = EXCLUDED.categories,
			current_question_id = EXCLUDED.current_question_id,
			last_correct_player_id = EXCLUDED.last_correct_player_id,
			completed_at = EXCLUDED.completed_at
	`
	_, err := r.db.Exec(query,
		game.ID, game.Name, game.RoomCode, game.HostName, game.HostCode,
		pq.Array(game.Categories), game.Status, game.CurrentQuestionID,
		game.LastCorrectPlayerID, game.CreatedAt, game.CompletedAt,
	)
	return err
}

func (r *PostgresRepository) scanGame(row *sql.Row) (*models.Game, error) {
	var game models.Game
	var currentQuestionID, lastCorrectPlayerID sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&game.ID, &game.Name, &game.RoomCode, &game.HostName, &game.HostCode,
		pq.Array(&game.Categories), &game.Status, &currentQuestionID,
		&lastCorrectPlayerID, &game.CreatedAt, &completedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	game.CurrentQuestionID = currentQuestionID.String
	game.LastCorrectPlayerID = lastCorrectPlayerID.String
	if completedAt.Valid {
		t := completedAt.Time
		game.CompletedAt = &t
	}
	return &game, nil
}

const gameColumns = `id, name, room_code, host_name, host_code, categories, status, current_question_id, last_correct_player_id, created_at, completed_at`

func (r *PostgresRepository) GetGame(gameID string) (*models.Game, error) {
	row := r.db.QueryRow(`SELECT `+gameColumns+` FROM games WHERE id = $1`, gameID)
	return r.scanGame(row)
}

func (r *PostgresRepository) GetGameByRoomCode(roomCode string) (*models.Game, error) {
	row := r.db.QueryRow(`SELECT `+gameColumns+` FROM games WHERE UPPER(room_code) = UPPER($1)`, roomCode)
	return r.scanGame(row)
}

func (r *PostgresRepository) DeleteGame(gameID string) error {
	_, err := r.db.Exec(`DELETE FROM games WHERE id = $1`, gameID)
	return err
}

func (r *PostgresRepository) ListGames() ([]*models.Game, error) {
	rows, err := r.db.Query(`SELECT ` + gameColumns + ` FROM games ORDER BY created_at DESC LIMIT 50`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		var game models.Game
		var currentQuestionID, lastCorrectPlayerID sql.NullString
		var completedAt sql.NullTime
		err := rows.Scan(
			&game.ID, &game.Name, &game.RoomCode, &game.HostName, &game.HostCode,
			pq.Array(&game.Categories), &game.Status, &currentQuestionID,
			&lastCorrectPlayerID, &game.CreatedAt, &completedAt,
		)
		if err != nil {
			return nil, err
		}
		game.CurrentQuestionID = currentQuestionID.String
		game.LastCorrectPlayerID = lastCorrectPlayerID.String
		if completedAt.Valid {
			t := completedAt.Time
			game.CompletedAt = &t
		}
		games = append(games, &game)
	}
	return games, rows.Err()
}

func (r *PostgresRepository) DeleteCompletedGamesBefore(cutoff time.Time) ([]string, error) {
	rows, err := r.db.Query(`
		DELETE FROM games
		WHERE status = 'completed' AND completed_at IS NOT NULL AND completed_at < $1
		RETURNING id
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deleted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

func (r *PostgresRepository) SavePlayer(player *models.Player) error {
	query := `
		INSERT INTO players (id, game_id, name, score, is_host, player_code, connected)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			score = EXCLUDED.score,
			connected = EXCLUDED.connected
	`
	_, err := r.db.Exec(query,
		player.ID, player.GameID, player.Name, player.Score,
		player.IsHost, player.PlayerCode, player.Connected,
	)
	return err
}

func (r *PostgresRepository) GetPlayersByGame(gameID string) ([]*models.Player, error) {
	rows, err := r.db.Query(`
		SELECT id, game_id, name, score, is_host, COALESCE(player_code, ''), connected
		FROM players WHERE game_id = $1
		ORDER BY is_host DESC, name
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []*models.Player
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.ID, &p.GameID, &p.Name, &p.Score, &p.IsHost, &p.PlayerCode, &p.Connected); err != nil {
			return nil, err
		}
		players = append(players, &p)
	}
	return players, rows.Err()
}

func (r *PostgresRepository) DeletePlayer(playerID string) error {
	_, err := r.db.Exec(`DELETE FROM players WHERE id = $1`, playerID)
	return err
}

func (r *PostgresRepository) SaveQuestion(question *models.Question) error {
	query := `
		INSERT INTO questions (id, game_id, category, value, prompt, answer_type, correct_answer, options, used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			prompt = EXCLUDED.prompt,
			correct_answer = EXCLUDED.correct_answer,
			options = EXCLUDED.options,
			used = EXCLUDED.used
	`
	_, err := r.db.Exec(query,
		question.ID, question.GameID, question.Category, question.Value,
		question.Prompt, question.AnswerType, question.CorrectAnswer,
		pq.Array(question.Options), question.Used,
	)
	return err
}

func (r *PostgresRepository) GetQuestionsByGame(gameID string) ([]*models.Question, error) {
	rows, err := r.db.Query(`
		SELECT id, game_id, category, value, prompt, answer_type, correct_answer, options, used
		FROM questions WHERE game_id = $1
		ORDER BY category, value
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		var q models.Question
		err := rows.Scan(&q.ID, &q.GameID, &q.Category, &q.Value, &q.Prompt,
			&q.AnswerType, &q.CorrectAnswer, pq.Array(&q.Options), &q.Used)
		if err != nil {
			return nil, err
		}
		questions = append(questions, &q)
	}
	return questions, rows.Err()
}

func (r *PostgresRepository) SaveBuzz(buzz *models.Buzz) error {
	query := `
		INSERT INTO buzzes (id, game_id, question_id, player_id, buzzed_at, is_first, buzz_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.Exec(query,
		buzz.ID, buzz.GameID, buzz.QuestionID, buzz.PlayerID,
		buzz.Timestamp, buzz.IsFirst, buzz.Order,
	)
	return err
}

func (r *PostgresRepository) GetBuzzesByQuestion(questionID string) ([]*models.Buzz, error) {
	rows, err := r.db.Query(`
		SELECT id, game_id, question_id, player_id, buzzed_at, is_first, buzz_order
		FROM buzzes WHERE question_id = $1
		ORDER BY buzz_order
	`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buzzes []*models.Buzz
	for rows.Next() {
		var b models.Buzz
		if err := rows.Scan(&b.ID, &b.GameID, &b.QuestionID, &b.PlayerID, &b.Timestamp, &b.IsFirst, &b.Order); err != nil {
			return nil, err
		}
		buzzes = append(buzzes, &b)
	}
	return buzzes, rows.Err()
}

func (r *PostgresRepository) DeleteBuzzesByGame(gameID string) error {
	_, err := r.db.Exec(`DELETE FROM buzzes WHERE game_id = $1`, gameID)
	return err
}

func (r *PostgresRepository) SaveAnswer(answer *models.Answer) error {
	query := `
		INSERT INTO answers (id, game_id, question_id, player_id, answer_text, answer_order, submission_time, is_correct, points_awarded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			is_correct = EXCLUDED.is_correct,
			points_awarded = EXCLUDED.points_awarded
	`
	_, err := r.db.Exec(query,
		answer.ID, answer.GameID, answer.QuestionID, answer.PlayerID,
		answer.Text, answer.Order, answer.SubmissionTime,
		answer.IsCorrect, answer.PointsAwarded,
	)
	return err
}

func (r *PostgresRepository) GetAnswersByQuestion(questionID string) ([]*models.Answer, error) {
	rows, err := r.db.Query(`
		SELECT id, game_id, question_id, player_id, answer_text, answer_order, submission_time, is_correct, points_awarded
		FROM answers WHERE question_id = $1
		ORDER BY answer_order
	`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []*models.Answer
	for rows.Next() {
		var a models.Answer
		var isCorrect sql.NullBool
		err := rows.Scan(&a.ID, &a.GameID, &a.QuestionID, &a.PlayerID, &a.Text,
			&a.Order, &a.SubmissionTime, &isCorrect, &a.PointsAwarded)
		if err != nil {
			return nil, err
		}
		if isCorrect.Valid {
			v := isCorrect.Bool
			a.IsCorrect = &v
		}
		answers = append(answers, &a)
	}
	return answers, rows.Err()
}

func (r *PostgresRepository) DeleteAnswersByGame(gameID string) error {
	_, err := r.db.Exec(`DELETE FROM answers WHERE game_id = $1`, gameID)
	return err
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
