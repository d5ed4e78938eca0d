package server

import (
	"net/http"
	"strings"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/version"
	"github.com/gin-gonic/gin"
)

// ChatRequest is one user turn. A missing session id starts a new session.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

// ChatResponse is the turn's reply.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Phase     string `json:"phase"`
}

func (s *Server) handleChat(c *gin.Context) {
	req := &ChatRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		respondProblem(c, core.NormalizeProblem(&core.Problem{
			Status: http.StatusBadRequest,
			Detail: "body must be JSON with a non-empty message",
		}))
		return
	}

	sessionID := core.ID(strings.TrimSpace(req.SessionID))
	if sessionID == "" {
		sessionID = core.MustNewID()
	}
	result, err := s.engine.HandleTurn(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		respondProblem(c, core.ProblemFromError(err, c.FullPath()))
		return
	}
	c.JSON(http.StatusOK, ChatResponse{
		SessionID: result.SessionID.String(),
		Reply:     result.Reply,
		Phase:     result.Phase.String(),
	})
}

// handleHealth reports the engine's own health plus platform and session
// store reachability.
func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	body := gin.H{
		"status":  "ok",
		"version": version.Get().Version,
	}

	if err := s.store.HealthCheck(ctx); err != nil {
		body["session_store"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		body["session_store"] = "ok"
	}

	if s.client != nil {
		if info, err := s.client.Health(ctx); err != nil {
			body["upgrade"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			body["upgrade"] = info.Version
		}
	}

	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

func respondProblem(c *gin.Context, problem *core.Problem) {
	c.Header("Content-Type", "application/problem+json")
	c.JSON(problem.Status, core.BuildProblemBody(problem))
}
