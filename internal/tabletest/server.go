// Package tabletest runs an in-process tabletop server with the same room and
// token rules as the production server, for exercising sessions end to end.
package tabletest

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/erilali/rayvtt/internal/logger"
	"github.com/erilali/rayvtt/internal/message"
	"github.com/gorilla/websocket"
)

// DefaultRoom is where every connection starts.
const DefaultRoom = "lobby"

// Client is one connected websocket.
type Client struct {
	ID   string
	Room string
	Conn *websocket.Conn
	Send chan []byte

	closed bool
}

type tokenState struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Server holds rooms and the authoritative token positions.
type Server struct {
	Mu      sync.Mutex
	Clients map[*Client]bool
	Rooms   map[string]map[*Client]bool
	Tokens  map[string]tokenState
	Logger  *logger.Logger

	pongs   bool
	history []string
}

func NewServer(log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		Clients: make(map[*Client]bool),
		Rooms:   make(map[string]map[*Client]bool),
		Tokens: map[string]tokenState{
			"0": {ID: 0, X: 100, Y: 100},
			"1": {ID: 1, X: 200, Y: 150},
			"2": {ID: 2, X: 300, Y: 200},
		},
		Logger: log,
		pongs:  true,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.ServeWs(w, r) }

// SetPongs controls whether ping is answered, to simulate a stalled server.
func (s *Server) SetPongs(on bool) {
	s.Mu.Lock()
	s.pongs = on
	s.Mu.Unlock()
}

// DropAll closes every connection without a close handshake.
func (s *Server) DropAll() {
	s.Mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.Clients))
	for c := range s.Clients {
		conns = append(conns, c.Conn)
	}
	s.Mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Members lists the client ids currently in room.
func (s *Server) Members(room string) []string {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	var ids []string
	for c := range s.Rooms[room] {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}

// Received returns the type of every message the server has accepted, in order.
func (s *Server) Received() []string {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return append([]string(nil), s.history...)
}

// Token returns the server's position for a token.
func (s *Server) Token(id string) (message.Token, bool) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	t, ok := s.Tokens[id]
	return message.Token{ID: t.ID, X: t.X, Y: t.Y}, ok
}

func (s *Server) register(c *Client) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.Clients[c] = true
	s.joinLocked(c, DefaultRoom)
	s.Logger.Infof("Client %s connected. Assigned to room: %s", c.ID, c.Room)
	s.sendLocked(c, s.initStateLocked(c))
	s.broadcastLocked(c.Room, map[string]interface{}{"type": message.TypeUserJoined, "userId": c.ID}, c)
}

func (s *Server) unregister(c *Client) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if _, ok := s.Clients[c]; !ok {
		return
	}
	delete(s.Clients, c)
	room := c.Room
	s.leaveLocked(c)
	if room != "" {
		s.broadcastLocked(room, map[string]interface{}{"type": message.TypeUserLeft, "userId": c.ID}, nil)
	}
	c.closed = true
	close(c.Send)
	s.Logger.Infof("Client %s disconnected", c.ID)
}

func (s *Server) joinLocked(c *Client, room string) {
	members, ok := s.Rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		s.Rooms[room] = members
	}
	members[c] = true
	c.Room = room
}

// leaveLocked removes c from its room and deletes emptied rooms other than the lobby.
func (s *Server) leaveLocked(c *Client) {
	if c.Room == "" {
		return
	}
	if members, ok := s.Rooms[c.Room]; ok {
		delete(members, c)
		if len(members) == 0 && c.Room != DefaultRoom {
			delete(s.Rooms, c.Room)
		}
	}
	c.Room = ""
}

func (s *Server) initStateLocked(c *Client) map[string]interface{} {
	tokens := make(map[string]tokenState, len(s.Tokens))
	for k, v := range s.Tokens {
		tokens[k] = v
	}
	return map[string]interface{}{"type": message.TypeInitState, "client_id": c.ID, "tokens": tokens}
}

// sendLocked queues msg for c. A full queue drops the message.
func (s *Server) sendLocked(c *Client, msg map[string]interface{}) {
	if c.closed {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.Logger.Errorf("Failed to marshal %v: %v", msg["type"], err)
		return
	}
	select {
	case c.Send <- data:
	default:
		s.Logger.Warnf("Send queue full for %s, dropping %v", c.ID, msg["type"])
	}
}

func (s *Server) broadcastLocked(room string, msg map[string]interface{}, exclude *Client) {
	for c := range s.Rooms[room] {
		if c != exclude {
			s.sendLocked(c, msg)
		}
	}
}
