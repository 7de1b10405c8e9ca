package dispatch

import (
	"reflect"
	"testing"

	"github.com/erilali/rayvtt/internal/message"
)

// recorder logs every callback as a short string.
type recorder struct {
	calls []string
}

func (r *recorder) OnTokenUpdate(ev message.TokenUpdate) {
	r.calls = append(r.calls, "token:"+ev.SenderID+":"+ev.Token.String())
}
func (r *recorder) OnChat(ev message.Chat) {
	r.calls = append(r.calls, "chat:"+ev.Kind+":"+ev.SenderID+":"+ev.Message)
}
func (r *recorder) OnRoomJoined(ev message.RoomJoined) { r.calls = append(r.calls, "joined:"+ev.RoomID) }
func (r *recorder) OnRoomLeft()                        { r.calls = append(r.calls, "left") }
func (r *recorder) OnUserJoined(ev message.UserJoined) { r.calls = append(r.calls, "user+:"+ev.UserID) }
func (r *recorder) OnUserLeft(ev message.UserLeft)     { r.calls = append(r.calls, "user-:"+ev.UserID) }
func (r *recorder) OnReady()                           { r.calls = append(r.calls, "ready") }

type identityRecorder struct {
	r       *recorder
	adopted string
}

func (i *identityRecorder) Adopt(id string) {
	i.adopted = id
	i.r.calls = append(i.r.calls, "adopt:"+id)
}

func TestDispatchRoutesEachVariant(t *testing.T) {
	cases := []struct {
		ev   message.Event
		want []string
	}{
		{message.TokenUpdate{SenderID: "p1", Token: message.Token{ID: 7, X: 1, Y: 2}}, []string{"token:p1:7@(1.00,2.00)"}},
		{message.Chat{Kind: message.TypeDiceRoll, SenderID: "p1", Message: "d20: 3"}, []string{"chat:dice_roll:p1:d20: 3"}},
		{message.RoomJoined{RoomID: "tavern"}, []string{"joined:tavern"}},
		{message.RoomLeft{}, []string{"left"}},
		{message.UserJoined{UserID: "u2"}, []string{"user+:u2"}},
		{message.UserLeft{UserID: message.Unknown}, []string{"user-:unknown"}},
		{message.Pong{}, nil},
		{nil, nil},
	}
	for _, tc := range cases {
		r := &recorder{}
		New(r, nil, nil).Dispatch(tc.ev)
		if !reflect.DeepEqual(r.calls, tc.want) {
			t.Fatalf("%T: calls %v, want %v", tc.ev, r.calls, tc.want)
		}
	}
}

func TestDispatchDecodedUpdateToken(t *testing.T) {
	ev, err := message.Decode([]byte(`{"type":"update_token","id":7,"x":1,"y":2}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var got []message.TokenUpdate
	other := 0
	d := New(HandlerFuncs{
		TokenUpdate: func(ev message.TokenUpdate) { got = append(got, ev) },
		Chat:        func(message.Chat) { other++ },
		RoomJoined:  func(message.RoomJoined) { other++ },
		Ready:       func() { other++ },
	}, nil, nil)
	d.Dispatch(ev)
	if other != 0 || len(got) != 1 {
		t.Fatalf("expected only the token handler, got tokens=%d other=%d", len(got), other)
	}
	if got[0].Token != (message.Token{ID: 7, X: 1, Y: 2}) {
		t.Fatalf("unexpected token %+v", got[0].Token)
	}
}

func TestDispatchInitStateOrder(t *testing.T) {
	r := &recorder{}
	ident := &identityRecorder{r: r}
	d := New(r, ident, nil)
	d.Dispatch(message.InitState{
		ClientID: "abc",
		Tokens: []message.Token{
			{ID: 0, X: 100, Y: 100},
			{ID: 1, X: 200, Y: 150},
		},
	})
	want := []string{
		"adopt:abc",
		"token:unknown:0@(100.00,100.00)",
		"token:unknown:1@(200.00,150.00)",
		"ready",
	}
	if !reflect.DeepEqual(r.calls, want) {
		t.Fatalf("calls %v, want %v", r.calls, want)
	}
}

func TestDispatchInitStateWithoutClientID(t *testing.T) {
	r := &recorder{}
	ident := &identityRecorder{r: r}
	New(r, ident, nil).Dispatch(message.InitState{})
	if ident.adopted != "" {
		t.Fatalf("identity must not change without client_id")
	}
	if !reflect.DeepEqual(r.calls, []string{"ready"}) {
		t.Fatalf("expected only the ready signal, got %v", r.calls)
	}
}

func TestHandlerFuncsNilFieldsAreNoops(t *testing.T) {
	d := New(HandlerFuncs{}, nil, nil)
	for _, ev := range []message.Event{
		message.InitState{ClientID: "x", Tokens: []message.Token{{ID: 1}}},
		message.TokenUpdate{},
		message.Chat{},
		message.RoomJoined{},
		message.RoomLeft{},
		message.UserJoined{},
		message.UserLeft{},
	} {
		d.Dispatch(ev)
	}
}
