package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/erilali/rayvtt/internal/dispatch"
	"github.com/erilali/rayvtt/internal/logger"
	"github.com/erilali/rayvtt/internal/message"
)

var (
	errNotReady     = errors.New("network not ready")
	errUnknownToken = errors.New("unknown token")
	errUsage        = errors.New("usage")
)

// tokenTable is the local board: a fixed set of tokens whose positions follow
// the server.
type tokenTable struct {
	mu     sync.Mutex
	tokens map[int]message.Token
}

func newTokenTable() *tokenTable {
	t := &tokenTable{tokens: make(map[int]message.Token)}
	for _, tok := range []message.Token{{ID: 0, X: 100, Y: 100}, {ID: 1, X: 200, Y: 150}, {ID: 2, X: 300, Y: 200}} {
		t.tokens[tok.ID] = tok
	}
	return t
}

// apply moves a known token; updates for other ids are rejected.
func (t *tokenTable) apply(tok message.Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tokens[tok.ID]; !ok {
		return false
	}
	t.tokens[tok.ID] = tok
	return true
}

func (t *tokenTable) get(id int) (message.Token, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tok, ok := t.tokens[id]
	return tok, ok
}

func (t *tokenTable) list() []message.Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]message.Token, 0, len(t.tokens))
	for _, tok := range t.tokens {
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// tableSession is the part of *session.Session the console uses.
type tableSession interface {
	SendCommand(cmd message.Command)
	JoinRoom(room string) error
	LeaveRoom()
	Broadcast(text string)
	Ready() bool
	ClientID() string
}

// console turns stdin lines into session calls and logs what comes back.
type console struct {
	sess   tableSession
	table  *tokenTable
	logger *logger.Logger
	roll   func() int
}

func newConsole(table *tokenTable, log *logger.Logger) *console {
	return &console{
		table:  table,
		logger: log,
		roll:   func() int { return rand.IntN(20) + 1 },
	}
}

// handlers are registered with the session before it starts.
func (c *console) handlers() dispatch.Handlers {
	return dispatch.HandlerFuncs{
		TokenUpdate: func(ev message.TokenUpdate) {
			if !c.table.apply(ev.Token) {
				c.logger.Warnf("Token with ID %d not found for update from sender %s", ev.Token.ID, ev.SenderID)
				return
			}
			c.logger.Infof("Updating token %s from sender %s", ev.Token, ev.SenderID)
		},
		Chat: func(ev message.Chat) {
			c.logger.WithFields(map[string]interface{}{"kind": ev.Kind, "sender": ev.SenderID}).Info(ev.Message)
		},
		RoomJoined: func(ev message.RoomJoined) { c.logger.Infof("Joined room %s", ev.RoomID) },
		RoomLeft:   func() { c.logger.Info("Left room") },
		UserJoined: func(ev message.UserJoined) { c.logger.Infof("User %s joined", ev.UserID) },
		UserLeft:   func(ev message.UserLeft) { c.logger.Infof("User %s left", ev.UserID) },
		Ready: func() {
			c.logger.Infof("Network ready, tokens %v", c.table.list())
		},
	}
}

// exec runs one input line. It reports quit=true for /quit.
func (c *console) exec(line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/tokens":
		for _, tok := range c.table.list() {
			c.logger.Infof("Token %s", tok)
		}
		return false, nil
	}

	if !c.sess.Ready() {
		return false, errNotReady
	}
	switch fields[0] {
	case "/join":
		if len(fields) != 2 {
			return false, fmt.Errorf("%w: /join <room>", errUsage)
		}
		return false, c.sess.JoinRoom(fields[1])
	case "/leave":
		c.sess.LeaveRoom()
	case "/roll":
		msg := fmt.Sprintf("Player rolled a d20: %d", c.roll())
		c.sess.SendCommand(message.DiceRoll{SenderID: c.sess.ClientID(), Message: msg})
		c.logger.Info(msg)
	case "/move":
		cmd, err := c.move(fields[1:])
		if err != nil {
			return false, err
		}
		c.sess.SendCommand(cmd)
	case "/say":
		c.sess.SendCommand(message.ChatMessage{Message: strings.TrimSpace(strings.TrimPrefix(line, "/say"))})
	default:
		c.sess.Broadcast(line)
	}
	return false, nil
}

func (c *console) move(args []string) (message.MoveToken, error) {
	if len(args) != 3 {
		return message.MoveToken{}, fmt.Errorf("%w: /move <id> <x> <y>", errUsage)
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return message.MoveToken{}, fmt.Errorf("%w: token id %q", errUsage, args[0])
	}
	x, errX := strconv.ParseFloat(args[1], 64)
	y, errY := strconv.ParseFloat(args[2], 64)
	if errX != nil || errY != nil {
		return message.MoveToken{}, fmt.Errorf("%w: coordinates must be numbers", errUsage)
	}
	if _, ok := c.table.get(id); !ok {
		return message.MoveToken{}, fmt.Errorf("%w %d", errUnknownToken, id)
	}
	tok := message.Token{ID: id, X: x, Y: y}
	c.table.apply(tok)
	return message.MoveToken{ID: id, X: x, Y: y}, nil
}
