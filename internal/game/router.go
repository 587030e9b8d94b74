package game

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paint-and-guess/internal/domain"
)

// Inbound is a named client event as read off a connection
type Inbound struct {
	ConnID string
	Name   string
	Data   json.RawMessage
}

type joinPayload struct {
	Name string `json:"name"`
}

// route validates an inbound event against the sender and the round state,
// then hands it to the matching handler. Rejected events are dropped.
func (r *Room) route(in Inbound) {
	if in.Name != domain.EventJoin && in.Name != domain.EventJoinAlias && !r.registry.Has(in.ConnID) {
		r.logger.Debug("dropping event from unjoined connection", "event", in.Name, "conn", in.ConnID)
		return
	}

	switch in.Name {
	case domain.EventJoin, domain.EventJoinAlias:
		name, err := decodeName(in.Data)
		if err != nil {
			r.reject(in, err)
			return
		}
		r.handleJoin(in.ConnID, name)

	case domain.EventStart:
		r.handleStart(in.ConnID)

	case domain.EventMessage:
		text, err := decodeText(in.Data)
		if err != nil {
			r.reject(in, err)
			return
		}
		r.handleMessage(in.ConnID, text)

	case domain.EventImage:
		if !r.fromDrawer(in) {
			return
		}
		if len(in.Data) == 0 {
			r.reject(in, domain.ErrInvalidRequest)
			return
		}
		r.emitAll(domain.EventImage, in.Data)

	case domain.EventClearCanvas:
		if !r.fromDrawer(in) {
			return
		}
		r.emitAll(domain.EventClearCanvas, nil)

	default:
		r.logger.Debug("unknown event", "event", in.Name, "conn", in.ConnID)
	}
}

func (r *Room) fromDrawer(in Inbound) bool {
	if !r.state.Running() {
		r.logger.Debug("dropping drawing event", "event", in.Name, "conn", in.ConnID, "error", domain.ErrRoundNotRunning)
		return false
	}
	if in.ConnID != r.state.DrawerID() {
		r.logger.Debug("dropping drawing event", "event", in.Name, "conn", in.ConnID, "error", domain.ErrNotDrawer)
		return false
	}
	return true
}

func (r *Room) reject(in Inbound, err error) {
	r.logger.Debug("rejecting event", "event", in.Name, "conn", in.ConnID, "error", err)
	r.emitTo(in.ConnID, domain.EventError, map[string]string{"event": in.Name, "error": err.Error()})
}

// decodeName accepts either a bare JSON string or {"name": "..."}
func decodeName(data json.RawMessage) (string, error) {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		var p joinPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return "", fmt.Errorf("%w: join payload: %v", domain.ErrInvalidRequest, err)
		}
		name = p.Name
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", domain.ErrInvalidRequest)
	}
	return name, nil
}

// decodeText accepts a chat message object or a bare string. Sender fields
// supplied by the client are ignored.
func decodeText(data json.RawMessage) (string, error) {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		var msg domain.ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return "", fmt.Errorf("%w: message payload: %v", domain.ErrInvalidRequest, err)
		}
		text = msg.Text
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty message", domain.ErrInvalidRequest)
	}
	return text, nil
}
