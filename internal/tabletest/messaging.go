package tabletest

import (
	"strconv"

	"github.com/erilali/rayvtt/internal/message"
	"github.com/google/uuid"
)

// HandleClientMessage applies one decoded client message.
func (s *Server) HandleClientMessage(c *Client, msg map[string]interface{}) {
	msgType, ok := msg["type"].(string)
	if !ok {
		s.Logger.Warn("Message without a type")
		return
	}

	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.history = append(s.history, msgType)

	switch msgType {
	case message.TypeReconnectRequest:
		s.reconnectLocked(c, msg)
	case message.TypeJoinRoom:
		room, _ := msg["roomId"].(string)
		if room == "" {
			s.Logger.Warnf("Invalid join_room data from %s", c.ID)
			return
		}
		if prev := c.Room; prev != "" {
			s.leaveLocked(c)
			s.broadcastLocked(prev, map[string]interface{}{"type": message.TypeUserLeft, "userId": c.ID}, nil)
		}
		s.joinLocked(c, room)
		s.broadcastLocked(room, map[string]interface{}{"type": message.TypeUserJoined, "userId": c.ID}, c)
		s.sendLocked(c, map[string]interface{}{"type": message.TypeRoomJoined, "roomId": room})
	case message.TypeLeaveRoom:
		prev := c.Room
		if prev == "" {
			return
		}
		s.leaveLocked(c)
		s.broadcastLocked(prev, map[string]interface{}{"type": message.TypeUserLeft, "userId": c.ID}, nil)
		s.sendLocked(c, map[string]interface{}{"type": message.TypeRoomLeft})
	case message.TypeMoveToken:
		s.moveLocked(c, msg)
	case message.TypeDiceRoll, message.TypeChatMessage, message.TypeBroadcast:
		text, ok := msg["message"].(string)
		if !ok {
			s.Logger.Warnf("Invalid %s data from %s", msgType, c.ID)
			return
		}
		s.broadcastLocked(c.Room, map[string]interface{}{"type": msgType, "sender_id": c.ID, "message": text}, nil)
	case message.TypePing:
		if s.pongs {
			s.sendLocked(c, map[string]interface{}{"type": message.TypePong})
		}
	default:
		s.Logger.Warnf("Unknown message type received: %s", msgType)
	}
}

// reconnectLocked re-keys the connection to the announced id, or a fresh one,
// and resends the snapshot.
func (s *Server) reconnectLocked(c *Client, msg map[string]interface{}) {
	if id, _ := msg["client_id"].(string); id != "" {
		c.ID = id
	} else {
		c.ID = uuid.NewString()
	}
	if c.Room == "" {
		s.joinLocked(c, DefaultRoom)
	}
	s.sendLocked(c, s.initStateLocked(c))
	s.broadcastLocked(c.Room, map[string]interface{}{"type": message.TypeUserJoined, "userId": c.ID}, c)
}

func (s *Server) moveLocked(c *Client, msg map[string]interface{}) {
	x, okX := msg["x"].(float64)
	y, okY := msg["y"].(float64)
	var key string
	switch id := msg["id"].(type) {
	case float64:
		key = strconv.Itoa(int(id))
	case string:
		key = id
	}
	if key == "" || !okX || !okY {
		s.Logger.Warnf("Invalid move_token data from %s", c.ID)
		return
	}
	if tok, ok := s.Tokens[key]; ok {
		tok.X, tok.Y = x, y
		s.Tokens[key] = tok
	}
	s.broadcastLocked(c.Room, map[string]interface{}{
		"type": message.TypeUpdateToken, "sender_id": c.ID, "id": msg["id"], "x": x, "y": y,
	}, c)
}
