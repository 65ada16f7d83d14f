package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	contractx "github.com/ppec-ai/copilot/agent/contract"
	orchestratorx "github.com/ppec-ai/copilot/agent/orchestrator"
)

type Config struct {
	Addr              string        `envconfig:"ADDR" split_words:"true" default:":8000"`
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" split_words:"true" default:"15s"`
}

// Server exposes the engine over HTTP: one SSE chat entry point and one
// memory-revert entry point.
type Server struct {
	engine    *gin.Engine
	orch      *orchestratorx.Service
	memory    contractx.MemoryGateway
	addr      string
	heartbeat time.Duration
}

type chatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

type revertRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	TurnID    string `json:"turn_id" binding:"required"`
}

func New(orch *orchestratorx.Service, memory contractx.MemoryGateway, cfg Config) (*Server, error) {
	if orch == nil {
		return nil, errors.New("orchestrator service is required")
	}
	if memory == nil {
		return nil, errors.New("memory gateway is required")
	}

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}

	s := &Server{
		engine:    gin.New(),
		orch:      orch,
		memory:    memory,
		addr:      cfg.Addr,
		heartbeat: heartbeat,
	}
	s.engine.Use(gin.Recovery())

	v1 := s.engine.Group("/v1")
	v1.POST("/chat", s.handleChat)
	v1.POST("/revert", s.handleRevert)

	return s, nil
}

func (s *Server) Run() error {
	log.Info().Str("addr", s.addr).Msg("starting http server")
	return s.engine.Run(s.addr)
}

// Handler exposes the underlying router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// handleChat streams the turn's typed events as Server-Sent-Events, with a
// periodic heartbeat to keep long-lived connections alive.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and message are required"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	events := s.orch.StreamTurn(c.Request.Context(), orchestratorx.TurnRequest{
		SessionID: req.SessionID,
		Message:   req.Message,
	})

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if !writeEvent(c, ev) {
				return false
			}
			// an error event terminates the turn
			return ev.Type != contractx.EventError
		case <-ticker.C:
			return writeEvent(c, contractx.NewHeartbeatEvent())
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func writeEvent(c *gin.Context, ev contractx.Event) bool {
	data, err := ev.Data()
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to serialize event")
		return false
	}
	c.SSEvent(string(ev.Type), string(data))
	return true
}

// handleRevert deletes every memory record recorded after the given turn.
func (s *Server) handleRevert(c *gin.Context) {
	var req revertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and turn_id are required"})
		return
	}

	err := s.memory.Revert(c.Request.Context(), req.SessionID, req.TurnID)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, contractx.ErrTurnNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("session_id", req.SessionID).Str("turn_id", req.TurnID).Msg("revert failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revert session memory"})
	}
}
