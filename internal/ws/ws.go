// Package ws implements the realtime transport: one WebSocket
// connection per client identifier, carrying typed JSON envelopes.
//
// Inbound message envelopes become chat turns against the client's own
// conversation. Turns for one client run strictly in order; turns for
// different clients are independent.
package ws

import (
	"encoding/json"
	"errors"
)

// ErrClientDisconnected is the failure of a turn whose client went away
// before delivery. Partial turn state is discarded; there is no resume.
var ErrClientDisconnected = errors.New("client disconnected")

// Envelope types.
const (
	TypeMessage    = "message"
	TypeResponse   = "response"
	TypeConnection = "connection"
	TypeError      = "error"
	TypePing       = "ping"
	TypePong       = "pong"
)

// Envelope is the wire frame exchanged over a connection.
type Envelope struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	AgentID string          `json:"agent_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// connectionEnvelope is sent once after a successful handshake.
func connectionEnvelope(clientID string) Envelope {
	return Envelope{Type: TypeConnection, Message: "connected", Payload: mustRaw(map[string]string{
		"client_id": clientID,
	})}
}

func errorEnvelope(msg string) Envelope {
	return Envelope{Type: TypeError, Message: msg}
}

func mustRaw(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
