package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

type envelope struct {
	Type json.RawMessage `json:"type"`
}

type initStateFields struct {
	ClientID string               `json:"client_id"`
	Tokens   map[string]wireToken `json:"tokens"`
}

type updateTokenFields struct {
	SenderID string   `json:"sender_id"`
	ID       *tokenID `json:"id"`
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
}

type chatFields struct {
	SenderID string  `json:"sender_id"`
	Message  *string `json:"message"`
}

type roomFields struct {
	RoomID string `json:"roomId"`
}

type userFields struct {
	UserID string `json:"userId"`
}

type wireToken struct {
	ID *tokenID `json:"id"`
	X  *float64 `json:"x"`
	Y  *float64 `json:"y"`
}

// tokenID accepts both 7 and "7"; the server relays whatever the mover sent.
// Values outside the int32 range are rejected.
type tokenID int

func (t *tokenID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return fmt.Errorf("token id %q: %w", s, err)
		}
		*t = tokenID(n)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	if math.IsNaN(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return fmt.Errorf("token id %v out of range", f)
	}
	*t = tokenID(int(f))
	return nil
}

// Decode parses one inbound payload. Unrecognized types return a nil Event and
// a nil error; anything that cannot be interpreted returns an error wrapping
// ErrMalformed. Each type reads only its own fields, so extra keys a newer
// server adds never break an older variant.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(env.Type) == 0 {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	var kind string
	if err := json.Unmarshal(env.Type, &kind); err != nil {
		return nil, fmt.Errorf("%w: type is not a string", ErrMalformed)
	}

	switch kind {
	case TypeInitState:
		var in initStateFields
		if err := decodeFields(kind, data, &in); err != nil {
			return nil, err
		}
		tokens, err := snapshotTokens(in.Tokens)
		if err != nil {
			return nil, err
		}
		return InitState{ClientID: in.ClientID, Tokens: tokens}, nil
	case TypeUpdateToken:
		var in updateTokenFields
		if err := decodeFields(kind, data, &in); err != nil {
			return nil, err
		}
		if in.ID == nil || in.X == nil || in.Y == nil {
			return nil, fmt.Errorf("%w: update_token requires id, x and y", ErrMalformed)
		}
		return TokenUpdate{
			SenderID: orUnknown(in.SenderID),
			Token:    Token{ID: int(*in.ID), X: *in.X, Y: *in.Y},
		}, nil
	case TypeDiceRoll, TypeChatMessage, TypeBroadcast:
		var in chatFields
		if err := decodeFields(kind, data, &in); err != nil {
			return nil, err
		}
		if in.Message == nil {
			return nil, fmt.Errorf("%w: %s requires message", ErrMalformed, kind)
		}
		return Chat{Kind: kind, SenderID: orUnknown(in.SenderID), Message: *in.Message}, nil
	case TypePong:
		return Pong{}, nil
	case TypeRoomJoined:
		var in roomFields
		if err := decodeFields(kind, data, &in); err != nil {
			return nil, err
		}
		return RoomJoined{RoomID: orUnknown(in.RoomID)}, nil
	case TypeRoomLeft:
		return RoomLeft{}, nil
	case TypeUserJoined, TypeUserLeft:
		var in userFields
		if err := decodeFields(kind, data, &in); err != nil {
			return nil, err
		}
		if kind == TypeUserJoined {
			return UserJoined{UserID: orUnknown(in.UserID)}, nil
		}
		return UserLeft{UserID: orUnknown(in.UserID)}, nil
	default:
		return nil, nil
	}
}

func decodeFields(kind string, data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
	}
	return nil
}

func snapshotTokens(raw map[string]wireToken) ([]Token, error) {
	tokens := make([]Token, 0, len(raw))
	for key, wt := range raw {
		var id int
		switch {
		case wt.ID != nil:
			id = int(*wt.ID)
		default:
			n, err := strconv.ParseInt(key, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: init_state token %q has no id", ErrMalformed, key)
			}
			id = int(n)
		}
		if wt.X == nil || wt.Y == nil {
			return nil, fmt.Errorf("%w: init_state token %q missing coordinates", ErrMalformed, key)
		}
		tokens = append(tokens, Token{ID: id, X: *wt.X, Y: *wt.Y})
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID < tokens[j].ID })
	return tokens, nil
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

// Encode renders cmd as canonical wire JSON.
func Encode(cmd Command) ([]byte, error) {
	var v interface{}
	switch c := cmd.(type) {
	case Raw:
		if len(c) == 0 {
			return nil, fmt.Errorf("%w: empty raw payload", ErrMalformed)
		}
		out := make([]byte, len(c))
		copy(out, c)
		return out, nil
	case ReconnectRequest:
		v = struct {
			Type string `json:"type"`
			ReconnectRequest
		}{TypeReconnectRequest, c}
	case JoinRoom:
		if c.RoomID == "" {
			return nil, ErrEmptyRoom
		}
		v = struct {
			Type string `json:"type"`
			JoinRoom
		}{TypeJoinRoom, c}
	case LeaveRoom:
		v = struct {
			Type string `json:"type"`
		}{TypeLeaveRoom}
	case Broadcast:
		v = struct {
			Type string `json:"type"`
			Broadcast
		}{TypeBroadcast, c}
	case Ping:
		v = struct {
			Type string `json:"type"`
		}{TypePing}
	case MoveToken:
		v = struct {
			Type string `json:"type"`
			MoveToken
		}{TypeMoveToken, c}
	case DiceRoll:
		v = struct {
			Type string `json:"type"`
			DiceRoll
		}{TypeDiceRoll, c}
	case ChatMessage:
		v = struct {
			Type string `json:"type"`
			ChatMessage
		}{TypeChatMessage, c}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	return json.Marshal(v)
}
