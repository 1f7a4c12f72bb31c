package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/dotcommander/connectchat/internal/errs"
	"github.com/dotcommander/connectchat/internal/stream"
)

const (
	shutdownTimeout = 10 * time.Second
	wsReadLimit     = 4 << 20
)

// Frame types sent alongside stream parts.
const (
	FrameStart = "start"
	FrameDone  = "done"
)

// frame is an out-of-band event of a chat stream.
type frame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text,omitempty"`
	Status         int    `json:"status,omitempty"`
}

// sseSink writes parts as server-sent events. Headers are only written with
// the first part, so failures that happen before any output can still be
// answered with a regular error response.
type sseSink struct {
	mu      sync.Mutex
	c       echo.Context
	id      string
	started bool
}

func (s *sseSink) Write(p stream.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.start(); err != nil {
		return err
	}
	return s.send(p)
}

func (s *sseSink) start() error {
	if s.started {
		return nil
	}
	s.started = true

	w := s.c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	return s.send(frame{Type: FrameStart, ConversationID: s.id})
}

func (s *sseSink) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	w := s.c.Response()
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.Flush()
	return nil
}

func (s *sseSink) done(turnErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.start(); err != nil {
		return err
	}
	end := frame{Type: FrameDone, ConversationID: s.id}
	if turnErr != nil {
		end.Status, end.Text = errs.Status(turnErr)
		end.Type = string(stream.PartError)
	}
	if err := s.send(end); err != nil {
		return err
	}
	if _, err := fmt.Fprint(s.c.Response(), "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.c.Response().Flush()
	return nil
}

func (h *Handler) chat(c echo.Context) error {
	var req ChatRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return errs.Wrap(err, "Invalid chat request.").WithStatus(http.StatusBadRequest)
	}
	turn := req.turn()
	sink := &sseSink{c: c, id: turn.ConversationID}

	_, err := h.svc.Chat(c.Request().Context(), turn, sink)
	if err != nil {
		h.logger.Warn("chat turn failed", "conversation", turn.ConversationID, "err", err)
	}
	sink.mu.Lock()
	started := sink.started
	sink.mu.Unlock()
	if err != nil && !started {
		return err //nolint:wrapcheck
	}
	return sink.done(err)
}

// wsSink writes parts as JSON messages on a websocket.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Write(p stream.Part) error {
	return s.writeJSON(p)
}

func (s *wsSink) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// chatSocket runs one chat turn per request message received on the socket.
func (h *Handler) chatSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return nil
	}
	defer conn.Close() //nolint:errcheck
	conn.SetReadLimit(wsReadLimit)

	ctx := c.Request().Context()
	sink := &wsSink{conn: conn}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "err", err)
			}
			return nil
		}
		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if err := sink.writeJSON(frame{Type: string(stream.PartError), Text: "Invalid chat request.", Status: http.StatusBadRequest}); err != nil {
				return nil
			}
			continue
		}

		turn := req.turn()
		end := frame{Type: FrameDone, ConversationID: turn.ConversationID}
		if err := sink.writeJSON(frame{Type: FrameStart, ConversationID: turn.ConversationID}); err != nil {
			return nil
		}
		if _, err := h.svc.Chat(ctx, turn, sink); err != nil {
			h.logger.Warn("chat turn failed", "conversation", turn.ConversationID, "err", err)
			end.Type = string(stream.PartError)
			end.Status, end.Text = errs.Status(err)
		}
		if err := sink.writeJSON(end); err != nil {
			return nil
		}
	}
}
