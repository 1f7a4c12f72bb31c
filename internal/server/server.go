// Package server exposes the chat service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/dotcommander/connectchat/internal/agent"
	"github.com/dotcommander/connectchat/internal/errs"
	"github.com/dotcommander/connectchat/internal/proto"
	"github.com/dotcommander/connectchat/internal/storage"
)

// ChatRequest is the body of a chat turn.
type ChatRequest struct {
	ID             string          `json:"id,omitempty"`
	Messages       []proto.Message `json:"messages"`
	Model          string          `json:"model,omitempty"`
	API            string          `json:"api,omitempty"`
	Apps           []string        `json:"apps,omitempty"`
	ExternalUserID string          `json:"external_user_id,omitempty"`
	Title          string          `json:"title,omitempty"`
}

func (r ChatRequest) turn() agent.Turn {
	id := r.ID
	if id == "" {
		id = storage.NewConversationID()
	}
	return agent.Turn{
		ConversationID: id,
		Messages:       r.Messages,
		Model:          r.Model,
		API:            r.API,
		ExternalUserID: r.ExternalUserID,
		Apps:           r.Apps,
		Title:          r.Title,
	}
}

// Handler serves the HTTP API.
type Handler struct {
	svc      *agent.Service
	store    *storage.Store
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a Handler. store may be nil when history is disabled.
func NewHandler(svc *agent.Service, store *storage.Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		svc:    svc,
		store:  store,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers the API routes on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.health)

	api := e.Group("/api")
	api.POST("/chat", h.chat)
	api.GET("/chat/ws", h.chatSocket)
	api.GET("/models", h.models)
	api.GET("/tools", h.tools)
	api.GET("/conversations", h.listConversations)
	api.GET("/conversations/:id", h.getConversation)
	api.DELETE("/conversations/:id", h.deleteConversation)
}

// New builds the echo instance serving h.
func New(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = h.handleError

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			h.logger.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "err", v.Error)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e)
	return e
}

// Serve runs e on addr until ctx is done, then shuts it down.
func Serve(ctx context.Context, e *echo.Echo, addr string) error {
	errc := make(chan error, 1)
	go func() {
		errc <- e.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err //nolint:wrapcheck
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return err //nolint:wrapcheck
		}
		return nil
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, msg := errs.Status(err)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		msg = http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.Path(), "status", status, "err", err)
	}
	if err := c.JSON(status, errorResponse{Error: msg}); err != nil {
		h.logger.Error("write error response", "err", err)
	}
}

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type modelsResponse struct {
	Models  any    `json:"models"`
	Default string `json:"default"`
}

func (h *Handler) models(c echo.Context) error {
	models, def := h.svc.Models()
	return c.JSON(http.StatusOK, modelsResponse{Models: models, Default: def})
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (h *Handler) tools(c echo.Context) error {
	set, err := h.svc.Tools(c.QueryParam("external_user_id"), splitApps(c.QueryParam("apps"))).Tools(c.Request().Context())
	if err != nil {
		return errs.Wrap(err, "Could not list tools.").WithStatus(http.StatusBadGateway)
	}
	out := make([]toolInfo, 0, len(set))
	for _, name := range set.Names() {
		out = append(out, toolInfo{Name: name, Description: set[name].Description})
	}
	return c.JSON(http.StatusOK, map[string][]toolInfo{"tools": out})
}

func splitApps(s string) []string {
	var apps []string
	for app := range strings.SplitSeq(s, ",") {
		if app = strings.TrimSpace(app); app != "" {
			apps = append(apps, app)
		}
	}
	return apps
}

func (h *Handler) listConversations(c echo.Context) error {
	if h.store == nil {
		return c.JSON(http.StatusOK, []storage.Record{})
	}
	var records []storage.Record
	if user := c.QueryParam("external_user_id"); user != "" {
		records = h.store.Index().ListFor(user)
	} else {
		records = h.store.Index().List()
	}
	if records == nil {
		records = []storage.Record{}
	}
	return c.JSON(http.StatusOK, records)
}

type conversationResponse struct {
	Conversation storage.Record  `json:"conversation"`
	Messages     []proto.Message `json:"messages"`
}

func (h *Handler) getConversation(c echo.Context) error {
	rec, msgs, err := h.svc.History(c.Param("id"))
	if err != nil {
		return err //nolint:wrapcheck
	}
	if msgs == nil {
		msgs = []proto.Message{}
	}
	return c.JSON(http.StatusOK, conversationResponse{Conversation: rec, Messages: msgs})
}

func (h *Handler) deleteConversation(c echo.Context) error {
	if h.store == nil {
		return errs.Error{Reason: "Conversation history is disabled."}.WithStatus(http.StatusNotFound)
	}
	id := c.Param("id")
	if _, ok := h.store.Index().Get(id); !ok {
		return errs.Error{Reason: "Conversation not found."}.WithStatus(http.StatusNotFound)
	}
	if err := h.store.Delete(id); err != nil {
		return errs.Wrap(err, "Could not delete the conversation.")
	}
	return c.NoContent(http.StatusNoContent)
}
