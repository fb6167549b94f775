package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arclight-ai/arclight/internal/agent"
	"github.com/arclight-ai/arclight/internal/provider"
	"github.com/arclight-ai/arclight/internal/rag"
	"github.com/arclight-ai/arclight/internal/tools"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// turnQueueSize bounds how many inbound messages may wait behind an
	// in-flight turn before the client gets pushback.
	turnQueueSize = 32
)

// session is one live connection. Inbound message envelopes queue onto
// turns and are processed one at a time, so responses for a client are
// delivered in request order. Outbound envelopes funnel through send so
// only the write loop touches the connection.
type session struct {
	hub      *Hub
	clientID string
	conn     *websocket.Conn

	send  chan Envelope
	turns chan Envelope

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(h *Hub, clientID string, conn *websocket.Conn) *session {
	return &session{
		hub:      h,
		clientID: clientID,
		conn:     conn,
		send:     make(chan Envelope, 64),
		turns:    make(chan Envelope, turnQueueSize),
		done:     make(chan struct{}),
	}
}

// run drives the session until the connection drops. It blocks in the
// read loop; the write and turn loops run alongside it.
func (s *session) run() {
	go s.writeLoop()
	go s.turnLoop()
	s.readLoop()
}

// close tears the session down exactly once.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
		s.hub.unregister(s)
	})
}

// enqueueSend queues an envelope for delivery. Returns false when the
// session is gone or the client cannot keep up.
func (s *session) enqueueSend(env Envelope) bool {
	select {
	case <-s.done:
		return false
	case s.send <- env:
		return true
	default:
		s.hub.logger.Warn("send buffer full, dropping session", "client", s.clientID)
		s.close()
		return false
	}
}

func (s *session) readLoop() {
	defer s.close()

	s.conn.SetReadLimit(int64(s.hub.cfg.MaxMessageLen) + 1024)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("read failed", "client", s.clientID, "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.enqueueSend(errorEnvelope("malformed envelope: not valid JSON"))
			continue
		}
		s.dispatch(env)
	}
}

// dispatch routes one inbound envelope. Recoverable problems produce an
// error envelope; the connection stays open.
func (s *session) dispatch(env Envelope) {
	switch env.Type {
	case TypePing:
		s.enqueueSend(Envelope{Type: TypePong})
	case TypeMessage:
		if env.Message == "" {
			s.enqueueSend(errorEnvelope("message envelope has empty message"))
			return
		}
		if len(env.Message) > s.hub.cfg.MaxMessageLen {
			s.enqueueSend(errorEnvelope(fmt.Sprintf("message exceeds %d bytes", s.hub.cfg.MaxMessageLen)))
			return
		}
		select {
		case s.turns <- env:
		default:
			s.enqueueSend(errorEnvelope("too many queued messages, slow down"))
		}
	default:
		s.enqueueSend(errorEnvelope(fmt.Sprintf("unsupported envelope type %q", env.Type)))
	}
}

// turnLoop processes queued messages strictly in order, one at a time.
func (s *session) turnLoop() {
	for {
		select {
		case <-s.done:
			return
		case env := <-s.turns:
			s.runTurn(env)
		}
	}
}

// runTurn executes one chat turn. The turn uses a context detached from
// the connection, so an in-flight provider call finishes and its usage
// is accounted even if the client disconnects; the result is then
// discarded.
func (s *session) runTurn(env Envelope) {
	agentID := env.AgentID
	if agentID == "" {
		agentID = s.hub.cfg.DefaultAgent
	}

	resp, err := s.hub.chatter.Chat(context.Background(), agent.ChatRequest{
		ClientID: s.clientID,
		AgentID:  agentID,
		Message:  env.Message,
	})

	select {
	case <-s.done:
		s.hub.logger.Info("discarding turn result",
			"client", s.clientID, "error", ErrClientDisconnected)
		return
	default:
	}

	if err != nil {
		s.enqueueSend(errorEnvelope(turnErrorMessage(err)))
		return
	}

	payload := mustRaw(resp)
	s.enqueueSend(Envelope{
		Type:    TypeResponse,
		Message: resp.Response,
		AgentID: resp.AgentID,
		Payload: payload,
	})
}

// turnErrorMessage maps turn failures to client-safe text.
func turnErrorMessage(err error) string {
	switch {
	case errors.Is(err, agent.ErrUnknownAgent):
		return "unknown agent"
	case errors.Is(err, agent.ErrEmptyMessage):
		return "message is empty"
	case errors.Is(err, agent.ErrToolNotEnabled):
		return "requested tool is not enabled for this agent"
	case errors.Is(err, agent.ErrToolChainTooLong):
		return "tool call chain exceeded the configured limit"
	case errors.Is(err, provider.ErrAllProvidersUnavailable):
		return "all providers are unavailable, try again later"
	case errors.Is(err, rag.ErrEmbeddingFailure):
		return "embedding provider is unavailable"
	case errors.Is(err, tools.ErrInvalidParameters), errors.Is(err, tools.ErrUnknownTool):
		return err.Error()
	default:
		return "internal error"
	}
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case env := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(env); err != nil {
				s.hub.logger.Warn("write failed", "client", s.clientID, "error", err)
				s.close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		}
	}
}
