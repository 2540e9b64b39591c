package server

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trivia-live/internal/config"
	"trivia-live/internal/hub"
	"trivia-live/internal/repository"
	"trivia-live/internal/services"
)

func newTestServer() *Server {
	return &Server{
		config:      &config.Config{Port: "0", MaxPlayers: 12, QuestionTime: 30},
		hub:         hub.NewHub(),
		gameService: services.NewGameService(repository.NewInMemoryRepository(), 12),
	}
}

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func send(t *testing.T, s *Server, session *hub.Session, msgType string, data interface{}) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		require.NoError(t, err)
	}
	s.dispatch(session, &Message{Type: msgType, Data: raw})
}

// drainEvents empties the session's send buffer. The hub queues messages
// synchronously, so everything emitted by a dispatch is already there.
func drainEvents(t *testing.T, session *hub.Session) []event {
	t.Helper()
	var events []event
	for {
		select {
		case raw := <-session.Send:
			var ev event
			require.NoError(t, json.Unmarshal(raw, &ev))
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventTypes(events []event) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func findEvent(events []event, eventType string) *event {
	for i := range events {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}

type testGame struct {
	server   *Server
	host     *hub.Session
	players  []*hub.Session
	gameID   string
	roomCode string
	hostCode string
}

func startGame(t *testing.T, playerNames ...string) *testGame {
	t.Helper()
	s := newTestServer()

	host := hub.NewSession("host-session")
	send(t, s, host, "create_game", map[string]interface{}{
		"gameName":   "Test Night",
		"hostName":   "Alex",
		"categories": []string{"History", "Science"},
	})

	events := drainEvents(t, host)
	created := findEvent(events, "game_created")
	require.NotNil(t, created)

	var info struct {
		RoomCode string `json:"roomCode"`
		GameID   string `json:"gameId"`
		HostCode string `json:"hostCode"`
	}
	require.NoError(t, json.Unmarshal(created.Data, &info))

	game := &testGame{
		server:   s,
		host:     host,
		gameID:   info.GameID,
		roomCode: info.RoomCode,
		hostCode: info.HostCode,
	}
	for i, name := range playerNames {
		session := hub.NewSession(fmt.Sprintf("player-session-%d", i))
		send(t, s, session, "join_game", map[string]interface{}{
			"roomCode":   game.roomCode,
			"playerName": name,
		})
		joined := findEvent(drainEvents(t, session), "game_joined")
		require.NotNil(t, joined)
		game.players = append(game.players, session)
	}
	// Discard the join broadcasts accumulated so far.
	drainEvents(t, host)
	for _, p := range game.players {
		drainEvents(t, p)
	}
	return game
}

func (g *testGame) selectQuestion(t *testing.T, category string, value int) string {
	t.Helper()
	send(t, g.server, g.host, "select_question", map[string]interface{}{
		"category": category,
		"value":    value,
	})
	selected := findEvent(drainEvents(t, g.host), "question_selected")
	require.NotNil(t, selected)

	var data struct {
		Question struct {
			ID string `json:"id"`
		} `json:"question"`
	}
	require.NoError(t, json.Unmarshal(selected.Data, &data))
	for _, p := range g.players {
		drainEvents(t, p)
	}
	return data.Question.ID
}

func TestCreateGameBindsAndReplies(t *testing.T) {
	s := newTestServer()
	session := hub.NewSession("s1")

	send(t, s, session, "create_game", map[string]interface{}{
		"gameName":   "Test Night",
		"hostName":   "Alex",
		"categories": []string{"History"},
	})

	events := drainEvents(t, session)
	require.Len(t, events, 1)
	assert.Equal(t, "game_created", events[0].Type)
	assert.NotEmpty(t, session.PlayerID)
	assert.NotEmpty(t, session.GameID)
}

func TestJoinGameBroadcastsToOthersOnly(t *testing.T) {
	g := startGame(t, "Brook")

	joiner := hub.NewSession("s-new")
	send(t, g.server, joiner, "join_game", map[string]interface{}{
		"roomCode":   g.roomCode,
		"playerName": "Casey",
	})

	joinerEvents := drainEvents(t, joiner)
	assert.Equal(t, []string{"game_joined"}, eventTypes(joinerEvents))

	hostEvents := drainEvents(t, g.host)
	require.NotNil(t, findEvent(hostEvents, "player_joined"))
}

func TestJoinGameInvalidPlayerCodeNeverBinds(t *testing.T) {
	g := startGame(t, "Brook")

	intruder := hub.NewSession("s-bad")
	send(t, g.server, intruder, "join_game", map[string]interface{}{
		"roomCode":   g.roomCode,
		"playerCode": "WRONG1",
	})

	events := drainEvents(t, intruder)
	assert.Equal(t, []string{"error"}, eventTypes(events))
	assert.Empty(t, intruder.PlayerID)
	assert.Empty(t, intruder.GameID)

	// Nobody else hears anything.
	assert.Empty(t, drainEvents(t, g.host))
}

func TestJoinAsHostWrongCode(t *testing.T) {
	g := startGame(t)

	session := hub.NewSession("s-host2")
	send(t, g.server, session, "join_as_host", map[string]interface{}{
		"roomCode": g.roomCode,
		"hostCode": "WRONG",
	})
	assert.Equal(t, []string{"error"}, eventTypes(drainEvents(t, session)))
	assert.Empty(t, session.PlayerID)
}

func TestMutationRequiresBoundSession(t *testing.T) {
	s := newTestServer()
	session := hub.NewSession("s1")

	send(t, s, session, "select_question", map[string]interface{}{
		"category": "History",
		"value":    100,
	})
	assert.Equal(t, []string{"error"}, eventTypes(drainEvents(t, session)))
}

func TestSelectQuestionBroadcasts(t *testing.T) {
	g := startGame(t, "Brook")

	send(t, g.server, g.host, "select_question", map[string]interface{}{
		"category":   "History",
		"value":      100,
		"selectedBy": "Brook",
	})

	assert.Equal(t, []string{"question_selected"}, eventTypes(drainEvents(t, g.host)))
	assert.Equal(t, []string{"question_selected"}, eventTypes(drainEvents(t, g.players[0])))
}

func TestSelectUsedQuestionErrorsWithoutBroadcast(t *testing.T) {
	g := startGame(t, "Brook")

	g.selectQuestion(t, "History", 100)
	send(t, g.server, g.host, "close_question", nil)
	drainEvents(t, g.host)
	drainEvents(t, g.players[0])

	send(t, g.server, g.host, "select_question", map[string]interface{}{
		"category": "History",
		"value":    100,
	})

	// The error goes to the initiator only; no broadcast reaches anyone.
	assert.Equal(t, []string{"error"}, eventTypes(drainEvents(t, g.host)))
	assert.Empty(t, drainEvents(t, g.players[0]))
}

func TestBuzzBroadcastsOrderUpdate(t *testing.T) {
	g := startGame(t, "Brook", "Casey")
	questionID := g.selectQuestion(t, "History", 200)

	send(t, g.server, g.players[0], "buzz", map[string]interface{}{
		"questionId": questionID,
	})

	for _, session := range []*hub.Session{g.host, g.players[0], g.players[1]} {
		types := eventTypes(drainEvents(t, session))
		assert.Equal(t, []string{"buzz_received", "buzz_order_update"}, types)
	}
}

func TestAllAnswersCollectedExactlyOnce(t *testing.T) {
	g := startGame(t, "Brook", "Casey")
	questionID := g.selectQuestion(t, "History", 300)

	send(t, g.server, g.players[0], "submit_answer", map[string]interface{}{
		"questionId":     questionID,
		"answer":         "Washington",
		"submissionTime": 1200,
	})
	assert.Equal(t, []string{"answer_submitted"}, eventTypes(drainEvents(t, g.host)))

	send(t, g.server, g.players[1], "submit_answer", map[string]interface{}{
		"questionId":     questionID,
		"answer":         "Lincoln",
		"submissionTime": 1500,
	})

	hostEvents := drainEvents(t, g.host)
	assert.Equal(t, []string{"answer_submitted", "all_answers_collected"}, eventTypes(hostEvents))

	collected := findEvent(hostEvents, "all_answers_collected")
	var data struct {
		Answers []struct {
			IsCorrect *bool `json:"isCorrect"`
		} `json:"answers"`
	}
	require.NoError(t, json.Unmarshal(collected.Data, &data))
	require.Len(t, data.Answers, 2)
	for _, a := range data.Answers {
		assert.Nil(t, a.IsCorrect)
	}
}

func TestMarkAnswerBroadcastsScores(t *testing.T) {
	g := startGame(t, "Brook")
	g.selectQuestion(t, "Science", 400)

	send(t, g.server, g.host, "mark_answer", map[string]interface{}{
		"playerId":  g.players[0].PlayerID,
		"isCorrect": true,
	})

	hostEvents := drainEvents(t, g.host)
	assert.Equal(t, []string{"answer_marked", "scores_updated"}, eventTypes(hostEvents))

	marked := findEvent(hostEvents, "answer_marked")
	var result struct {
		PointsAwarded int  `json:"pointsAwarded"`
		NewScore      int  `json:"newScore"`
		CanPickNext   bool `json:"canPickNext"`
	}
	require.NoError(t, json.Unmarshal(marked.Data, &result))
	assert.Equal(t, 400, result.PointsAwarded)
	assert.Equal(t, 400, result.NewScore)
	assert.True(t, result.CanPickNext)

	assert.Equal(t, []string{"answer_marked", "scores_updated"}, eventTypes(drainEvents(t, g.players[0])))
}

func TestCloseQuestionBroadcastsNextPicker(t *testing.T) {
	g := startGame(t, "Brook")
	g.selectQuestion(t, "Science", 100)

	send(t, g.server, g.host, "mark_answer", map[string]interface{}{
		"playerId":  g.players[0].PlayerID,
		"isCorrect": true,
	})
	drainEvents(t, g.host)
	drainEvents(t, g.players[0])

	send(t, g.server, g.host, "close_question", nil)
	closed := findEvent(drainEvents(t, g.host), "question_closed")
	require.NotNil(t, closed)

	var data struct {
		NextPicker string `json:"nextPicker"`
	}
	require.NoError(t, json.Unmarshal(closed.Data, &data))
	assert.Equal(t, g.players[0].PlayerID, data.NextPicker)
}

func TestResetGameRepliesToInitiator(t *testing.T) {
	g := startGame(t, "Brook")

	send(t, g.server, g.host, "reset_game", nil)

	hostTypes := eventTypes(drainEvents(t, g.host))
	assert.Equal(t, []string{"game_reset", "reset_success"}, hostTypes)

	playerTypes := eventTypes(drainEvents(t, g.players[0]))
	assert.Equal(t, []string{"game_reset"}, playerTypes)
}

func TestEndGameBroadcastsStandings(t *testing.T) {
	g := startGame(t, "Brook", "Casey")

	send(t, g.server, g.host, "end_game", nil)
	ended := findEvent(drainEvents(t, g.host), "game_ended")
	require.NotNil(t, ended)

	var data struct {
		FinalStandings []struct {
			Rank  int    `json:"rank"`
			Name  string `json:"name"`
			Score int    `json:"score"`
		} `json:"finalStandings"`
	}
	require.NoError(t, json.Unmarshal(ended.Data, &data))
	assert.Len(t, data.FinalStandings, 2)
}

func TestRemovePlayerClosesSession(t *testing.T) {
	g := startGame(t, "Brook")
	removedID := g.players[0].PlayerID

	send(t, g.server, g.host, "remove_player", map[string]interface{}{
		"playerId": removedID,
	})

	require.NotNil(t, findEvent(drainEvents(t, g.host), "player_removed"))
	assert.NotContains(t, g.server.hub.GamePlayers(g.gameID), removedID)
}

func TestUnknownMessageType(t *testing.T) {
	s := newTestServer()
	session := hub.NewSession("s1")
	send(t, s, session, "warp_drive", nil)
	assert.Equal(t, []string{"error"}, eventTypes(drainEvents(t, session)))
}

func TestGetGameStateUnicastsToRequester(t *testing.T) {
	g := startGame(t, "Brook")

	send(t, g.server, g.players[0], "get_game_state", map[string]interface{}{
		"gameId": g.gameID,
	})

	playerEvents := drainEvents(t, g.players[0])
	assert.Equal(t, []string{"game_state_loaded"}, eventTypes(playerEvents))
	assert.Empty(t, drainEvents(t, g.host))
}

// Concurrent dispatches against one game must broadcast in the order the
// mutations were accepted, with each payload reflecting the state at that
// point. Marking the same player repeatedly makes any tear or inversion
// visible as a non-monotonic score.
func TestConcurrentMarksBroadcastInAcceptanceOrder(t *testing.T) {
	g := startGame(t, "Brook")
	g.selectQuestion(t, "History", 100)

	payload, err := json.Marshal(map[string]interface{}{
		"playerId":  g.players[0].PlayerID,
		"isCorrect": true,
	})
	require.NoError(t, err)

	const marksPerWorker = 40
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < marksPerWorker; i++ {
				g.server.dispatch(g.host, &Message{Type: "mark_answer", Data: payload})
			}
		}()
	}
	wg.Wait()

	var scores []int
	for _, ev := range drainEvents(t, g.host) {
		if ev.Type != "answer_marked" {
			continue
		}
		var result struct {
			NewScore int `json:"newScore"`
		}
		require.NoError(t, json.Unmarshal(ev.Data, &result))
		scores = append(scores, result.NewScore)
	}

	require.Len(t, scores, 2*marksPerWorker)
	for i, score := range scores {
		assert.Equal(t, (i+1)*100, score)
	}
}

func TestRestGetGameReturnsSnapshot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	g := startGame(t, "Brook")
	g.server.router = gin.New()
	g.server.setupRoutes()

	req := httptest.NewRequest("GET", "/api/v1/games/"+g.gameID, nil)
	w := httptest.NewRecorder()
	g.server.router.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)

	var state struct {
		Game struct {
			ID       string `json:"id"`
			RoomCode string `json:"roomCode"`
		} `json:"game"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, g.gameID, state.Game.ID)
	assert.Equal(t, g.roomCode, state.Game.RoomCode)

	req = httptest.NewRequest("GET", "/api/v1/games/no-such-game", nil)
	w = httptest.NewRecorder()
	g.server.router.ServeHTTP(w, req)
	assert.Equal(t, 404, w.Code)
}
