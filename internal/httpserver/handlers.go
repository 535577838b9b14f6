package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/voxrelay/voxrelay/internal/gateway"
	"github.com/voxrelay/voxrelay/internal/settings"
)

type handlers struct {
	deps Deps
}

// completeBody mirrors the relay contract: credentials travel per request and
// are forwarded to the gateway, never stored here.
type completeBody struct {
	Prompt    string `json:"prompt"`
	AgentID   string `json:"agentId"`
	Account   string `json:"account"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Warehouse string `json:"warehouse"`
	Database  string `json:"database"`
	Schema    string `json:"schema"`
}

func (h *handlers) complete(c echo.Context) error {
	var body completeBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Prompt == "" || body.AgentID == "" || body.Account == "" || body.Username == "" || body.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "prompt, agentId, account, username and password are required"})
	}

	client := h.deps.Pool.Get(gateway.Credentials{
		Account:  body.Account,
		User:     body.Username,
		Password: body.Password,
	})
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.deps.DispatchTimeout)
	defer cancel()
	text, err := client.Complete(ctx, gateway.Request{
		Prompt:  body.Prompt,
		AgentID: body.AgentID,
		Routing: gateway.Routing{Warehouse: body.Warehouse, Database: body.Database, Schema: body.Schema},
	})
	if err != nil {
		h.deps.Logger.Warn("relay dispatch failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "completion failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"text": text})
}

func (h *handlers) agents(c echo.Context) error {
	creds := gateway.Credentials{
		Account:  c.Request().Header.Get("X-Account"),
		User:     c.Request().Header.Get("X-Username"),
		Password: c.Request().Header.Get("X-Password"),
	}
	if creds.Account == "" || creds.User == "" || creds.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "X-Account, X-Username and X-Password headers are required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.deps.DispatchTimeout)
	defer cancel()
	agents, err := h.deps.Pool.Get(creds).ListAgents(ctx)
	if err != nil {
		h.deps.Logger.Warn("agent listing failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "agent listing failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"agents": agents})
}

func (h *handlers) getSettings(c echo.Context) error {
	s, err := h.deps.Store.Load()
	if err != nil {
		h.deps.Logger.Error("loading settings failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load settings"})
	}
	return c.JSON(http.StatusOK, s)
}

func (h *handlers) putSettings(c echo.Context) error {
	var s settings.Settings
	if err := c.Bind(&s); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid settings body"})
	}
	if err := h.deps.Store.Save(s); err != nil {
		h.deps.Logger.Error("saving settings failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not save settings"})
	}
	return c.NoContent(http.StatusNoContent)
}
