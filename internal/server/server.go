package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"trivia-live/internal/config"
	"trivia-live/internal/hub"
	"trivia-live/internal/repository"
	"trivia-live/internal/services"
)

type Server struct {
	config      *config.Config
	hub         *hub.Hub
	gameService *services.GameService
	router      *gin.Engine
	upgrader    websocket.Upgrader

	gameMu    sync.Mutex
	gameLocks map[string]*sync.Mutex
}

// lockGame serializes a whole handler body per game: the mutation and the
// marshaling of every outbound payload happen under the same lock, so
// broadcasts leave in the order operations were accepted and no concurrent
// operation can mutate the state mid-marshal. Hub sends never block, so
// holding the lock across them is safe. Returns the unlock.
func (s *Server) lockGame(gameID string) func() {
	s.gameMu.Lock()
	if s.gameLocks == nil {
		s.gameLocks = make(map[string]*sync.Mutex)
	}
	mu, ok := s.gameLocks[gameID]
	if !ok {
		mu = &sync.Mutex{}
		s.gameLocks[gameID] = mu
	}
	s.gameMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (s *Server) dropGameLock(gameID string) {
	s.gameMu.Lock()
	delete(s.gameLocks, gameID)
	s.gameMu.Unlock()
}

func NewServer(cfg *config.Config) *Server {
	var repo repository.Repository
	if cfg.DatabaseURL != "" {
		log.Printf("Using PostgreSQL database")
		pgRepo, err := repository.NewPostgresRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		repo = pgRepo
	} else {
		log.Printf("Using in-memory database (development mode)")
		repo = repository.NewInMemoryRepository()
	}

	server := &Server{
		config:      cfg,
		hub:         hub.NewHub(),
		gameService: services.NewGameService(repo, cfg.MaxPlayers),
		router:      gin.Default(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api/v1")
	{
		api.GET("/games", s.listGames)
		api.GET("/games/:id", s.getGame)
		api.DELETE("/games/:id", s.deleteGame)
		api.POST("/games/:id/refresh", s.refreshGame)
	}

	s.router.GET("/ws", s.handleWebSocket)
}

func (s *Server) listGames(c *gin.Context) {
	games, err := s.gameService.ListGames()
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to list games"})
		return
	}
	c.JSON(200, games)
}

func (s *Server) getGame(c *gin.Context) {
	gameID := c.Param("id")

	// Marshal inside the game's lock; write the response outside it so a
	// slow client cannot hold up the mutation path.
	unlock := s.lockGame(gameID)
	state, err := s.gameService.GetState(gameID)
	if err != nil {
		unlock()
		if errors.Is(err, services.ErrGameNotFound) {
			c.JSON(404, gin.H{"error": "Game not found"})
			return
		}
		c.JSON(500, gin.H{"error": "Failed to load game"})
		return
	}
	data, err := json.Marshal(state)
	unlock()
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to load game"})
		return
	}
	c.Data(200, "application/json; charset=utf-8", data)
}

func (s *Server) deleteGame(c *gin.Context) {
	gameID := c.Param("id")

	unlock := s.lockGame(gameID)
	err := s.gameService.DeleteGame(gameID)
	unlock()
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to delete game"})
		return
	}
	s.hub.DropGame(gameID)
	s.dropGameLock(gameID)
	c.JSON(200, gin.H{"message": "Game deleted"})
}

// refreshGame evicts the cached state so REST-side edits become visible
// on the next read.
func (s *Server) refreshGame(c *gin.Context) {
	s.gameService.Refresh(c.Param("id"))
	c.JSON(200, gin.H{"message": "Game state refreshed"})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	session := hub.NewSession(uuid.New().String())
	go s.writePump(conn, session)
	s.readPump(conn, session)
}

func (s *Server) readPump(conn *websocket.Conn, session *hub.Session) {
	defer func() {
		s.hub.Unbind(session)
		conn.Close()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}
		s.dispatch(session, &msg)
	}
}

func (s *Server) writePump(conn *websocket.Conn, session *hub.Session) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-session.Send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) Start() error {
	return s.router.Run(":" + s.config.Port)
}
