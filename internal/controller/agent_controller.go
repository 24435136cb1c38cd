package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"ai-memory-agent-be/internal/dto"
	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/internal/pkg/serverutils"
	"ai-memory-agent-be/internal/service"
	internalWS "ai-memory-agent-be/internal/websocket"
	"ai-memory-agent-be/pkg/agent/orchestrator"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type IAgentController interface {
	RegisterRoutes(r fiber.Router)
	Ask(ctx *fiber.Ctx) error
	AskSync(ctx *fiber.Ctx) error
	ListRuns(ctx *fiber.Ctx) error
	GetRun(ctx *fiber.Ctx) error
	DeleteRun(ctx *fiber.Ctx) error
	DeleteAllRuns(ctx *fiber.Ctx) error
	ServeWs(ctx *fiber.Ctx) error
}

type agentController struct {
	service service.IAgentService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewAgentController(service service.IAgentService, hub *internalWS.Hub, log logger.ILogger) IAgentController {
	return &agentController{
		service: service,
		hub:     hub,
		logger:  log,
	}
}

func (c *agentController) RegisterRoutes(r fiber.Router) {
	// the socket authenticates from the query string, browsers cannot set headers on it
	r.Get("/agent/v1/ws", c.ServeWs)

	h := r.Group("/agent/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("/ask", c.Ask)
	h.Post("/ask/sync", c.AskSync)
	h.Get("/runs", c.ListRuns)
	h.Get("/runs/:id", c.GetRun)
	h.Delete("/runs/:id", c.DeleteRun)
	h.Delete("/runs", c.DeleteAllRuns)
}

// Ask streams the run as server-sent events: reasoning_step, answer_chunk, then complete or error.
func (c *agentController) Ask(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	var req dto.AskRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	ctx.Set("Content-Type", "text/event-stream")
	ctx.Set("Cache-Control", "no-cache")
	ctx.Set("Connection", "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	// fiber recycles ctx once the handler returns; the writer only sees copies
	question := req.Question
	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		c.stream(w, userId, question)
	}))
	return nil
}

func (c *agentController) stream(w *bufio.Writer, userId uuid.UUID, question string) {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan orchestrator.Event)
	go c.service.AskStream(runCtx, userId, question, events)

	gone := false
	for e := range events {
		if gone {
			continue
		}
		if err := writeSSE(w, e); err != nil {
			// client went away; stop the run and let the stream drain
			c.logger.Warn("AGENT", "SSE client disconnected", map[string]interface{}{"user_id": userId.String(), "error": err.Error()})
			gone = true
			cancel()
		}
	}
}

func writeSSE(w *bufio.Writer, e orchestrator.Event) error {
	data, err := json.Marshal(e.Payload())
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data); err != nil {
		return err
	}
	return w.Flush()
}

func (c *agentController) AskSync(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	var req dto.AskRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Ask(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Question answered", res))
}

func (c *agentController) ListRuns(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	req := dto.ListRunsRequest{Page: 1, PageSize: 20}
	if err := ctx.QueryParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.ListRuns(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Runs", res))
}

func (c *agentController) GetRun(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	runId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(fiber.StatusBadRequest, "Invalid run id"))
	}

	res, err := c.service.GetRun(ctx.UserContext(), userId, runId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Run detail", res))
}

func (c *agentController) DeleteRun(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	runId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(fiber.StatusBadRequest, "Invalid run id"))
	}

	if err := c.service.DeleteRun(ctx.UserContext(), userId, runId); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Run deleted", nil))
}

func (c *agentController) DeleteAllRuns(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	res, err := c.service.DeleteAllRuns(ctx.UserContext(), userId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("History cleared", res))
}

// ServeWs upgrades to a socket that mirrors run events and accepts ask messages.
func (c *agentController) ServeWs(ctx *fiber.Ctx) error {
	tokenStr := ctx.Query("token")
	if tokenStr == "" {
		authHeader := ctx.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}
	if tokenStr == "" {
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')"))
	}

	userId, err := serverutils.ParseUserToken(tokenStr)
	if err != nil {
		c.logger.Warn("AGENT", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		c.logger.Info("AGENT", "Starting WebSocket session", map[string]interface{}{"user_id": userId.String()})
		internalWS.ServeWs(c.hub, c.service, conn, userId)
		c.logger.Info("AGENT", "WebSocket session ended", map[string]interface{}{"user_id": userId.String()})
	})(ctx)
}
