// Package journal mirrors table events (chat, token moves, room changes) to
// NATS JetStream so other local tools can replay a session.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/erilali/rayvtt/internal/dispatch"
	"github.com/erilali/rayvtt/internal/logger"
	"github.com/erilali/rayvtt/internal/message"
	"github.com/nats-io/nats.go"
)

const (
	DefaultSubjectPrefix = "rayvtt.events"
	streamName           = "RAYVTT_EVENTS"
	streamRetention      = 24 * time.Hour
)

// Publisher is the part of nats.JetStreamContext the journal uses.
type Publisher interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

type Journal struct {
	pub    Publisher
	prefix string
	logger *logger.Logger
}

// New returns a journal writing to pub. A nil pub yields a journal that
// records nothing.
func New(pub Publisher, prefix string, log *logger.Logger) *Journal {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultSubjectPrefix
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Journal{pub: pub, prefix: strings.TrimSuffix(prefix, "."), logger: log}
}

// Connect dials NATS, ensures the event stream exists and returns a journal
// plus a function that drains the connection.
func Connect(url, prefix string, log *logger.Logger) (*Journal, func(), error) {
	if log == nil {
		log = logger.Discard()
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultSubjectPrefix
	}
	log.Infof("Connecting to NATS at %s", url)
	nc, err := nats.Connect(url, nats.Name("rayvtt-session"))
	if err != nil {
		return nil, nil, fmt.Errorf("journal: connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("journal: jetstream context: %w", err)
	}

	streamConfig := &nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{prefix + ".>"},
		Storage:  nats.FileStorage,
		MaxAge:   streamRetention,
	}
	if _, err := js.StreamInfo(streamConfig.Name); err != nil {
		if _, err := js.AddStream(streamConfig); err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("journal: create stream %s: %w", streamName, err)
		}
		log.Infof("Created stream: %s", streamName)
	} else if _, err := js.UpdateStream(streamConfig); err != nil {
		log.Warnf("Error updating stream %s: %v", streamName, err)
	}

	closer := func() {
		if err := nc.Drain(); err != nil {
			log.Warnf("Error draining NATS connection: %v", err)
		}
	}
	return New(js, prefix, log), closer, nil
}

// Subject returns the subject an event type is published on.
func (j *Journal) Subject(eventType string) string {
	return j.prefix + "." + eventType
}

func (j *Journal) record(eventType string, fields map[string]interface{}) {
	if j == nil || j.pub == nil {
		return
	}
	fields["type"] = eventType
	fields["timestamp"] = time.Now().Unix()
	data, err := json.Marshal(fields)
	if err != nil {
		j.logger.Errorf("Failed to marshal %s journal entry: %v", eventType, err)
		return
	}
	if _, err := j.pub.PublishAsync(j.Subject(eventType), data); err != nil {
		j.logger.Errorf("Failed to publish %s to NATS: %v", eventType, err)
	}
}

// Wrap returns handlers that forward to next and then journal the event.
func (j *Journal) Wrap(next dispatch.Handlers) dispatch.Handlers {
	if next == nil {
		next = dispatch.HandlerFuncs{}
	}
	return &tap{j: j, next: next}
}

type tap struct {
	j    *Journal
	next dispatch.Handlers
}

func (t *tap) OnTokenUpdate(ev message.TokenUpdate) {
	t.next.OnTokenUpdate(ev)
	t.j.record(message.TypeUpdateToken, map[string]interface{}{
		"sender_id": ev.SenderID,
		"id":        ev.Token.ID,
		"x":         ev.Token.X,
		"y":         ev.Token.Y,
	})
}

func (t *tap) OnChat(ev message.Chat) {
	t.next.OnChat(ev)
	t.j.record(ev.EventType(), map[string]interface{}{
		"sender_id": ev.SenderID,
		"message":   ev.Message,
	})
}

func (t *tap) OnRoomJoined(ev message.RoomJoined) {
	t.next.OnRoomJoined(ev)
	t.j.record(message.TypeRoomJoined, map[string]interface{}{"roomId": ev.RoomID})
}

func (t *tap) OnRoomLeft() {
	t.next.OnRoomLeft()
	t.j.record(message.TypeRoomLeft, map[string]interface{}{})
}

func (t *tap) OnUserJoined(ev message.UserJoined) {
	t.next.OnUserJoined(ev)
	t.j.record(message.TypeUserJoined, map[string]interface{}{"userId": ev.UserID})
}

func (t *tap) OnUserLeft(ev message.UserLeft) {
	t.next.OnUserLeft(ev)
	t.j.record(message.TypeUserLeft, map[string]interface{}{"userId": ev.UserID})
}

func (t *tap) OnReady() {
	t.next.OnReady()
}
