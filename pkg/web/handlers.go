package web

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voiceloop/pkg/hub"
)

const (
	defaultTurnLimit = 50
	maxTurnLimit     = 500
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Status())
}

// handleTurns returns recent turns, optionally filtered by ?session=.
func (s *Server) handleTurns(c *fiber.Ctx) error {
	if s.cfg.Turns == nil {
		return c.JSON([]any{})
	}

	limit := c.QueryInt("limit", defaultTurnLimit)
	if limit <= 0 || limit > maxTurnLimit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and 500",
		})
	}

	// Query strings point into fasthttp's reused request buffer.
	session := utils.CopyString(c.Query("session"))
	turns := s.cfg.Turns.Recent(session, limit)
	if turns == nil {
		return c.JSON([]any{})
	}
	return c.JSON(turns)
}

func (s *Server) handleTools(c *fiber.Ctx) error {
	if s.cfg.Tools == nil {
		return c.JSON([]any{})
	}
	defs := s.cfg.Tools()
	out := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Wire())
	}
	return c.JSON(out)
}

// handleStatusWS sends the current status, then every published update.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	if data, err := json.Marshal(s.cfg.Status()); err == nil {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	hub.NewClient(s.statusHub, c).Run()
}

func (s *Server) handleTurnsWS(c *websocket.Conn) {
	hub.NewClient(s.turnHub, c).Run()
}
