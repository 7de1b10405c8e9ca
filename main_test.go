package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/erilali/rayvtt/internal/logger"
	"github.com/erilali/rayvtt/internal/message"
)

type fakeSession struct {
	ready     bool
	commands  []message.Command
	joined    []string
	left      int
	broadcast []string
}

func (f *fakeSession) SendCommand(cmd message.Command) { f.commands = append(f.commands, cmd) }
func (f *fakeSession) JoinRoom(room string) error {
	if room == "" {
		return message.ErrEmptyRoom
	}
	f.joined = append(f.joined, room)
	return nil
}
func (f *fakeSession) LeaveRoom()            { f.left++ }
func (f *fakeSession) Broadcast(text string) { f.broadcast = append(f.broadcast, text) }
func (f *fakeSession) Ready() bool           { return f.ready }
func (f *fakeSession) ClientID() string      { return "me" }

func newTestConsole(ready bool) (*console, *fakeSession) {
	sess := &fakeSession{ready: ready}
	c := newConsole(newTokenTable(), logger.Discard())
	c.sess = sess
	c.roll = func() int { return 17 }
	return c, sess
}

func TestTokenTableUpdatesKnownIDsOnly(t *testing.T) {
	table := newTokenTable()
	if !table.apply(message.Token{ID: 1, X: 5, Y: 6}) {
		t.Fatalf("token 1 is on the board")
	}
	if table.apply(message.Token{ID: 9, X: 1, Y: 1}) {
		t.Fatalf("unknown token must be rejected")
	}
	if got, _ := table.get(1); got != (message.Token{ID: 1, X: 5, Y: 6}) {
		t.Fatalf("token 1 at %s", got)
	}
	if n := len(table.list()); n != 3 {
		t.Fatalf("expected 3 tokens, got %d", n)
	}
}

func TestHandlersApplySnapshotTokens(t *testing.T) {
	c, _ := newTestConsole(true)
	h := c.handlers()
	h.OnTokenUpdate(message.TokenUpdate{SenderID: message.Unknown, Token: message.Token{ID: 2, X: 42, Y: 43}})
	h.OnTokenUpdate(message.TokenUpdate{SenderID: "p1", Token: message.Token{ID: 99}})
	if got, _ := c.table.get(2); got.X != 42 || got.Y != 43 {
		t.Fatalf("token 2 at %s", got)
	}
	if _, ok := c.table.get(99); ok {
		t.Fatalf("unknown ids are not added")
	}
}

func TestCommandsRefusedUntilReady(t *testing.T) {
	c, sess := newTestConsole(false)
	for _, line := range []string{"/join tavern", "/roll", "hello"} {
		if _, err := c.exec(line); !errors.Is(err, errNotReady) {
			t.Fatalf("%q: expected errNotReady, got %v", line, err)
		}
	}
	if len(sess.commands)+len(sess.joined)+len(sess.broadcast) != 0 {
		t.Fatalf("nothing may be sent before ready")
	}
	if quit, err := c.exec("/quit"); !quit || err != nil {
		t.Fatalf("quit works at any time")
	}
}

func TestConsoleCommands(t *testing.T) {
	c, sess := newTestConsole(true)

	if _, err := c.exec("/join tavern"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := c.exec("/join"); !errors.Is(err, errUsage) {
		t.Fatalf("bare /join: %v", err)
	}
	c.exec("/leave")
	c.exec("/roll")
	if _, err := c.exec("/move 1 250 175.5"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := c.exec("/move 7 1 1"); !errors.Is(err, errUnknownToken) {
		t.Fatalf("move unknown: %v", err)
	}
	if _, err := c.exec("/move 1 x 1"); !errors.Is(err, errUsage) {
		t.Fatalf("move bad coords: %v", err)
	}
	c.exec("/say good evening")
	c.exec("  hello table  ")
	c.exec("")

	if len(sess.joined) != 1 || sess.joined[0] != "tavern" || sess.left != 1 {
		t.Fatalf("rooms: joined %v left %d", sess.joined, sess.left)
	}
	want := []message.Command{
		message.DiceRoll{SenderID: "me", Message: "Player rolled a d20: 17"},
		message.MoveToken{ID: 1, X: 250, Y: 175.5},
		message.ChatMessage{Message: "good evening"},
	}
	if len(sess.commands) != len(want) {
		t.Fatalf("commands %v", sess.commands)
	}
	for i := range want {
		if sess.commands[i] != want[i] {
			t.Fatalf("command %d: %#v, want %#v", i, sess.commands[i], want[i])
		}
	}
	if got, _ := c.table.get(1); got.X != 250 {
		t.Fatalf("local move not applied: %s", got)
	}
	if len(sess.broadcast) != 1 || sess.broadcast[0] != "hello table" {
		t.Fatalf("broadcast %v", sess.broadcast)
	}
}

func TestRunStopsOnQuit(t *testing.T) {
	c, sess := newTestConsole(true)
	in := strings.NewReader("first\n/quit\nnever\n")
	if err := c.run(context.Background(), in); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sess.broadcast) != 1 || sess.broadcast[0] != "first" {
		t.Fatalf("broadcast %v", sess.broadcast)
	}
}

func TestRunStopsOnEOF(t *testing.T) {
	c, sess := newTestConsole(true)
	if err := c.run(context.Background(), strings.NewReader("a\nb")); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sess.broadcast) != 2 {
		t.Fatalf("broadcast %v", sess.broadcast)
	}
}
