package server

import (
	"encoding/json"
	"log"

	"trivia-live/internal/hub"
	"trivia-live/internal/services"
)

// Message is the inbound protocol envelope: one JSON object per websocket
// message, `{type, data}`.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outbound struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func encode(eventType string, data interface{}) []byte {
	payload, err := json.Marshal(outbound{Type: eventType, Data: data})
	if err != nil {
		log.Printf("Error marshaling %s event: %v", eventType, err)
		return nil
	}
	return payload
}

func (s *Server) reply(session *hub.Session, eventType string, data interface{}) {
	if payload := encode(eventType, data); payload != nil {
		s.hub.Send(session, payload)
	}
}

func (s *Server) broadcast(gameID, eventType string, data interface{}) {
	if payload := encode(eventType, data); payload != nil {
		s.hub.Broadcast(gameID, payload)
	}
}

func (s *Server) replyError(session *hub.Session, message string) {
	s.reply(session, "error", map[string]string{"message": message})
}

// dispatch routes one decoded envelope. Session-establishing messages bind
// the session; everything state-mutating requires a prior binding and
// reports failures to the sender only.
func (s *Server) dispatch(session *hub.Session, msg *Message) {
	switch msg.Type {
	case "create_game":
		s.handleCreateGame(session, msg.Data)
	case "join_game":
		s.handleJoinGame(session, msg.Data)
	case "join_as_host":
		s.handleJoinAsHost(session, msg.Data)
	case "create_player":
		s.handleCreatePlayer(session, msg.Data)
	case "get_game_state":
		s.handleGetGameState(session, msg.Data)
	case "select_question":
		s.handleSelectQuestion(session, msg.Data)
	case "buzz":
		s.handleBuzz(session, msg.Data)
	case "submit_answer":
		s.handleSubmitAnswer(session, msg.Data)
	case "mark_answer":
		s.handleMarkAnswer(session, msg.Data)
	case "close_question":
		s.handleCloseQuestion(session)
	case "mark_question_used":
		s.handleMarkQuestionUsed(session, msg.Data)
	case "end_game":
		s.handleEndGame(session)
	case "reset_game":
		s.handleResetGame(session)
	case "remove_player":
		s.handleRemovePlayer(session, msg.Data)
	case "clear_players":
		s.handleClearPlayers(session)
	default:
		s.replyError(session, "unknown message type: "+msg.Type)
	}
}

func (s *Server) decode(session *hub.Session, data json.RawMessage, v interface{}) bool {
	if len(data) == 0 {
		s.replyError(session, "missing message data")
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.replyError(session, "invalid message data: "+err.Error())
		return false
	}
	return true
}

// requireBound gates state-mutating messages on completed identity
// resolution for the session.
func (s *Server) requireBound(session *hub.Session) bool {
	if session.PlayerID == "" || session.GameID == "" {
		s.replyError(session, "join a game first")
		return false
	}
	return true
}

func (s *Server) handleCreateGame(session *hub.Session, data json.RawMessage) {
	var req struct {
		GameName   string                   `json:"gameName"`
		HostName   string                   `json:"hostName"`
		Categories []string                 `json:"categories"`
		Questions  []services.QuestionSetup `json:"questions"`
	}
	if !s.decode(session, data, &req) {
		return
	}

	state, err := s.gameService.CreateGame(req.GameName, req.HostName, req.Categories, req.Questions)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}

	host := state.Host()
	s.hub.Bind(session, host.ID, state.Game.ID)
	s.reply(session, "game_created", map[string]interface{}{
		"roomCode": state.Game.RoomCode,
		"gameId":   state.Game.ID,
		"hostCode": state.Game.HostCode,
	})
}

func (s *Server) handleJoinGame(session *hub.Session, data json.RawMessage) {
	var req struct {
		RoomCode   string `json:"roomCode"`
		PlayerName string `json:"playerName"`
		PlayerCode string `json:"playerCode"`
		IsHost     bool   `json:"isHost"`
		HostCode   string `json:"hostCode"`
		HostName   string `json:"hostName"`
	}
	if !s.decode(session, data, &req) {
		return
	}

	if req.IsHost {
		s.joinHost(session, req.RoomCode, req.HostCode)
		return
	}

	gameID, err := s.gameService.ResolveRoomCode(req.RoomCode)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}
	unlock := s.lockGame(gameID)
	defer unlock()

	state, player, err := s.gameService.JoinGame(req.RoomCode, req.PlayerName, req.PlayerCode)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}

	// Existing members hear about the joiner before the session is bound,
	// so the joiner only receives its own game_joined reply.
	s.broadcast(state.Game.ID, "player_joined", map[string]interface{}{
		"player":  player,
		"players": state.Players,
	})
	s.hub.Bind(session, player.ID, state.Game.ID)
	s.reply(session, "game_joined", map[string]interface{}{
		"playerId":   player.ID,
		"gameId":     state.Game.ID,
		"playerCode": player.PlayerCode,
		"players":    state.Players,
		"roomCode":   state.Game.RoomCode,
		"categories": state.Game.Categories,
		"questions":  state.Questions,
	})
}

func (s *Server) handleJoinAsHost(session *hub.Session, data json.RawMessage) {
	var req struct {
		RoomCode string `json:"roomCode"`
		HostCode string `json:"hostCode"`
	}
	if !s.decode(session, data, &req) {
		return
	}
	s.joinHost(session, req.RoomCode, req.HostCode)
}

func (s *Server) joinHost(session *hub.Session, roomCode, hostCode string) {
	gameID, err := s.gameService.ResolveRoomCode(roomCode)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}
	unlock := s.lockGame(gameID)
	defer unlock()

	state, host, err := s.gameService.JoinAsHost(roomCode, hostCode)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}

	s.broadcast(state.Game.ID, "host_joined", map[string]interface{}{
		"player":  host,
		"players": state.Players,
	})
	s.hub.Bind(session, host.ID, state.Game.ID)
	s.reply(session, "game_joined", map[string]interface{}{
		"playerId":   host.ID,
		"gameId":     state.Game.ID,
		"players":    state.Players,
		"roomCode":   state.Game.RoomCode,
		"categories": state.Game.Categories,
		"questions":  state.Questions,
	})
}

func (s *Server) handleCreatePlayer(session *hub.Session, data json.RawMessage) {
	if !s.requireBound(session) {
		return
	}
	var req struct {
		PlayerName string `json:"playerName"`
	}
	if !s.decode(session, data, &req) {
		return
	}
	unlock := s.lockGame(session.GameID)
	defer unlock()

	_, player, err := s.gameService.CreatePlayer(session.GameID, session.PlayerID, req.PlayerName)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}

	s.reply(session, "player_created", map[string]interface{}{
		"player":     player,
		"playerCode": player.PlayerCode,
	})
	s.broadcast(session.GameID, "player_joined", map[string]interface{}{
		"player": player,
	})
}

func (s *Server) handleGetGameState(session *hub.Session, data json.RawMessage) {
	var req struct {
		GameID string `json:"gameId"`
	}
	if len(data) > 0 {
		if !s.decode(session, data, &req) {
			return
		}
	}
	gameID := req.GameID
	if gameID == "" {
		gameID = session.GameID
	}
	if gameID == "" {
		s.replyError(session, "gameId is required")
		return
	}
	unlock := s.lockGame(gameID)
	defer unlock()

	state, err := s.gameService.GetState(gameID)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}

	s.reply(session, "game_state_loaded", map[string]interface{}{
		"game":       state.Game,
		"questions":  state.Questions,
		"categories": state.Game.Categories,
	})
}

func (s *Server) handleSelectQuestion(session *hub.Session, data json.RawMessage) {
	if !s.requireBound(session) {
		return
	}
	var req struct {
		Category   string `json:"category"`
		Value      int    `json:"value"`
		SelectedBy string `json:"selectedBy"`
	}
	if !s.decode(session, data, &req) {
		return
	}
	unlock := s.lockGame(session.GameID)
	defer unlock()

	_, question, err := s.gameService.SelectQuestion(session.GameID, req.Category, req.Value)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}

	s.broadcast(session.GameID, "question_selected", map[string]interface{}{
		"question":   question,
		"selectedBy": req.SelectedBy,
		"timeLeft":   s.config.QuestionTime,
	})
}

func (s *Server) handleBuzz(session *hub.Session, data json.RawMessage) {
	if !s.requireBound(session) {
		return
	}
	var req struct {
		QuestionID string `json:"questionId"`
	}
	if !s.decode(session, data, &req) {
		return
	}
	unlock := s.lockGame(session.GameID)
	defer unlock()

	state, buzz, err := s.gameService.BuzzIn(session.GameID, session.PlayerID, req.QuestionID)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}

	s.broadcast(session.GameID, "buzz_received", buzz)
	s.broadcast(session.GameID, "buzz_order_update", map[string]interface{}{
		"buzzes": state.Buzzes,
	})
}

func (s *Server) handleSubmitAnswer(session *hub.Session, data json.RawMessage) {
	if !s.requireBound(session) {
		return
	}
	var req struct {
		QuestionID     string `json:"questionId"`
		Answer         string `json:"answer"`
		SubmissionTime int64  `json:"submissionTime"`
	}
	if !s.decode(session, data, &req) {
		return
	}
	unlock := s.lockGame(session.GameID)
	defer unlock()

	state, answer, err := s.gameService.SubmitAnswer(session.GameID, session.PlayerID, req.QuestionID, req.Answer, req.SubmissionTime)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}

	s.broadcast(session.GameID, "answer_submitted", map[string]interface{}{
		"playerId":   answer.PlayerID,
		"playerName": answer.PlayerName,
		"order":      answer.Order,
	})

	// Once every non-host participant has submitted, the full answer set
	// goes out for host review.
	if n := state.NonHostCount(); n > 0 && len(state.Answers) >= n {
		s.broadcast(session.GameID, "all_answers_collected", map[string]interface{}{
			"answers": state.Answers,
		})
	}
}

func (s *Server) handleMarkAnswer(session *hub.Session, data json.RawMessage) {
	if !s.requireBound(session) {
		return
	}
	var req struct {
		PlayerID  string `json:"playerId"`
		IsCorrect *bool  `json:"isCorrect"`
	}
	if !s.decode(session, data, &req) {
		return
	}
	unlock := s.lockGame(session.GameID)
	defer unlock()

	state, result, err := s.gameService.MarkAnswer(session.GameID, req.PlayerID, req.IsCorrect)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}

	s.broadcast(session.GameID, "answer_marked", result)
	s.broadcast(session.GameID, "scores_updated", map[string]interface{}{
		"players": state.Players,
	})
}

func (s *Server) handleCloseQuestion(session *hub.Session) {
	if !s.requireBound(session) {
		return
	}
	unlock := s.lockGame(session.GameID)
	defer unlock()

	state, err := s.gameService.CloseQuestion(session.GameID)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}

	payload := map[string]interface{}{
		"scoreChanges": state.LastScoreChange,
	}
	if state.NextPickerID != "" {
		payload["nextPicker"] = state.NextPickerID
	}
	s.broadcast(session.GameID, "question_closed", payload)
}

func (s *Server) handleMarkQuestionUsed(session *hub.Session, data json.RawMessage) {
	if !s.requireBound(session) {
		return
	}
	var req struct {
		QuestionID string `json:"questionId"`
	}
	if !s.decode(session, data, &req) {
		return
	}
	unlock := s.lockGame(session.GameID)
	defer unlock()

	if _, err := s.gameService.MarkQuestionUsed(session.GameID, req.QuestionID); err != nil {
		s.replyError(session, err.Error())
		return
	}

	s.broadcast(session.GameID, "question_marked_used", map[string]interface{}{
		"questionId": req.QuestionID,
	})
}

func (s *Server) handleEndGame(session *hub.Session) {
	if !s.requireBound(session) {
		return
	}
	unlock := s.lockGame(session.GameID)
	defer unlock()

	_, standings, err := s.gameService.EndGame(session.GameID)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}

	s.broadcast(session.GameID, "game_ended", map[string]interface{}{
		"finalStandings": standings,
	})
}

func (s *Server) handleResetGame(session *hub.Session) {
	if !s.requireBound(session) {
		return
	}
	unlock := s.lockGame(session.GameID)
	defer unlock()

	state, err := s.gameService.ResetGame(session.GameID)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}

	s.broadcast(session.GameID, "game_reset", map[string]interface{}{
		"players":   state.Players,
		"questions": state.Questions,
	})
	s.reply(session, "reset_success", map[string]interface{}{})
}

func (s *Server) handleRemovePlayer(session *hub.Session, data json.RawMessage) {
	if !s.requireBound(session) {
		return
	}
	var req struct {
		PlayerID string `json:"playerId"`
	}
	if !s.decode(session, data, &req) {
		return
	}
	unlock := s.lockGame(session.GameID)
	defer unlock()

	if _, err := s.gameService.RemovePlayer(session.GameID, req.PlayerID); err != nil {
		s.replyError(session, err.Error())
		return
	}

	s.broadcast(session.GameID, "player_removed", map[string]interface{}{
		"playerId": req.PlayerID,
	})
	s.hub.CloseSession(req.PlayerID)
}

func (s *Server) handleClearPlayers(session *hub.Session) {
	if !s.requireBound(session) {
		return
	}
	unlock := s.lockGame(session.GameID)
	defer unlock()

	_, removed, err := s.gameService.ClearPlayers(session.GameID)
	if err != nil {
		s.replyError(session, err.Error())
		return
	}

	s.broadcast(session.GameID, "players_cleared", map[string]interface{}{
		"playerIds": removed,
	})
	for _, playerID := range removed {
		s.hub.CloseSession(playerID)
	}
}
