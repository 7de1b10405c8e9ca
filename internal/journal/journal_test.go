package journal

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/erilali/rayvtt/internal/dispatch"
	"github.com/erilali/rayvtt/internal/message"
	"github.com/nats-io/nats.go"
)

type published struct {
	subject string
	body    map[string]interface{}
}

type fakePublisher struct {
	out []published
	err error
}

func (f *fakePublisher) PublishAsync(subj string, data []byte, _ ...nats.PubOpt) (nats.PubAckFuture, error) {
	if f.err != nil {
		return nil, f.err
	}
	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	f.out = append(f.out, published{subject: subj, body: body})
	return nil, nil
}

func TestTapForwardsThenPublishes(t *testing.T) {
	pub := &fakePublisher{}
	var seen []string
	h := New(pub, "", nil).Wrap(dispatch.HandlerFuncs{
		Chat:       func(ev message.Chat) { seen = append(seen, "chat:"+ev.Message) },
		RoomJoined: func(ev message.RoomJoined) { seen = append(seen, "joined:"+ev.RoomID) },
		Ready:      func() { seen = append(seen, "ready") },
	})

	h.OnChat(message.Chat{Kind: message.TypeDiceRoll, SenderID: "p1", Message: "d20: 12"})
	h.OnRoomJoined(message.RoomJoined{RoomID: "tavern"})
	h.OnTokenUpdate(message.TokenUpdate{SenderID: "p2", Token: message.Token{ID: 3, X: 4, Y: 5}})
	h.OnReady()

	if len(seen) != 3 {
		t.Fatalf("handlers not forwarded: %v", seen)
	}
	if len(pub.out) != 3 {
		t.Fatalf("expected 3 journal entries (ready is not journaled), got %d", len(pub.out))
	}
	if pub.out[0].subject != "rayvtt.events.dice_roll" || pub.out[0].body["message"] != "d20: 12" {
		t.Fatalf("unexpected chat entry %+v", pub.out[0])
	}
	if pub.out[1].subject != "rayvtt.events.room_joined" || pub.out[1].body["roomId"] != "tavern" {
		t.Fatalf("unexpected room entry %+v", pub.out[1])
	}
	if pub.out[2].body["id"] != 3.0 || pub.out[2].body["sender_id"] != "p2" {
		t.Fatalf("unexpected token entry %+v", pub.out[2])
	}
	if _, ok := pub.out[2].body["timestamp"]; !ok {
		t.Fatalf("entries carry a timestamp")
	}
}

func TestPublishErrorsAreSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	called := false
	h := New(pub, "table.one", nil).Wrap(dispatch.HandlerFuncs{
		UserLeft: func(message.UserLeft) { called = true },
	})
	h.OnUserLeft(message.UserLeft{UserID: "u1"})
	if !called {
		t.Fatalf("publish failure must not stop dispatch")
	}
}

func TestNilPublisherRecordsNothing(t *testing.T) {
	j := New(nil, "custom.prefix.", nil)
	if got := j.Subject("room_left"); got != "custom.prefix.room_left" {
		t.Fatalf("subject %q", got)
	}
	h := j.Wrap(nil)
	h.OnRoomLeft()
	h.OnUserJoined(message.UserJoined{UserID: "u"})
}
