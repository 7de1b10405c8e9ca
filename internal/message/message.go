// internal/message/message.go
// Wire types exchanged with the tabletop session server.
package message

import (
	"errors"
	"strconv"
)

// Unknown stands in for sender, room and user ids the server omitted.
const Unknown = "unknown"

// Inbound type discriminators.
const (
	TypeInitState   = "init_state"
	TypeUpdateToken = "update_token"
	TypeDiceRoll    = "dice_roll"
	TypeChatMessage = "chat_message"
	TypeBroadcast   = "broadcast"
	TypePong        = "pong"
	TypeRoomJoined  = "room_joined"
	TypeRoomLeft    = "room_left"
	TypeUserJoined  = "user_joined"
	TypeUserLeft    = "user_left"
)

// Outbound-only type discriminators.
const (
	TypeReconnectRequest = "reconnect_request"
	TypeJoinRoom         = "join_room"
	TypeLeaveRoom        = "leave_room"
	TypePing             = "ping"
	TypeMoveToken        = "move_token"
)

var (
	ErrMalformed      = errors.New("message: malformed payload")
	ErrEmptyRoom      = errors.New("message: room id is required")
	ErrUnknownCommand = errors.New("message: unknown command")
)

// Event is one decoded inbound message.
type Event interface {
	EventType() string
}

// Token is one entry of the shared canvas.
type Token struct {
	ID int
	X  float64
	Y  float64
}

type InitState struct {
	// ClientID is empty when the server did not assign one.
	ClientID string
	Tokens   []Token
}

type TokenUpdate struct {
	SenderID string
	Token    Token
}

// Chat covers dice rolls, chat lines and room broadcasts; Kind holds the wire type.
type Chat struct {
	Kind     string
	SenderID string
	Message  string
}

type Pong struct{}

type RoomJoined struct {
	RoomID string
}

type RoomLeft struct{}

type UserJoined struct {
	UserID string
}

type UserLeft struct {
	UserID string
}

func (InitState) EventType() string   { return TypeInitState }
func (TokenUpdate) EventType() string { return TypeUpdateToken }
func (c Chat) EventType() string {
	if c.Kind == "" {
		return TypeChatMessage
	}
	return c.Kind
}
func (Pong) EventType() string       { return TypePong }
func (RoomJoined) EventType() string { return TypeRoomJoined }
func (RoomLeft) EventType() string   { return TypeRoomLeft }
func (UserJoined) EventType() string { return TypeUserJoined }
func (UserLeft) EventType() string   { return TypeUserLeft }

// Command is one outbound message. Encoding a Command has no side effects.
type Command interface {
	CommandType() string
}

type ReconnectRequest struct {
	ClientID string `json:"client_id"`
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
}

type LeaveRoom struct{}

type Broadcast struct {
	Message string `json:"message"`
}

type Ping struct{}

type MoveToken struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type DiceRoll struct {
	SenderID string `json:"sender_id,omitempty"`
	Message  string `json:"message"`
}

type ChatMessage struct {
	Message string `json:"message"`
}

// Raw is an application payload sent verbatim.
type Raw []byte

func (ReconnectRequest) CommandType() string { return TypeReconnectRequest }
func (JoinRoom) CommandType() string         { return TypeJoinRoom }
func (LeaveRoom) CommandType() string        { return TypeLeaveRoom }
func (Broadcast) CommandType() string        { return TypeBroadcast }
func (Ping) CommandType() string             { return TypePing }
func (MoveToken) CommandType() string        { return TypeMoveToken }
func (DiceRoll) CommandType() string         { return TypeDiceRoll }
func (ChatMessage) CommandType() string      { return TypeChatMessage }
func (Raw) CommandType() string              { return "raw" }

func (t Token) String() string {
	return strconv.Itoa(t.ID) + "@(" + strconv.FormatFloat(t.X, 'f', 2, 64) + "," + strconv.FormatFloat(t.Y, 'f', 2, 64) + ")"
}
