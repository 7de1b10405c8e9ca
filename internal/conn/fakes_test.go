package conn

import (
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"
)

type fakeTimer struct {
	at      time.Time
	delay   time.Duration
	fn      func()
	fired   bool
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	t := &fakeTimer{at: c.now.Add(d), delay: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	end := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.fired || t.stopped || t.at.After(end) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		next.fn()
	}
	c.now = end
}

// pending returns the delays of timers that have neither fired nor been stopped.
func (c *fakeClock) pending() []time.Duration {
	var out []time.Duration
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			out = append(out, t.delay)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type fakeTransport struct {
	listener Listener
	written  [][]byte
	closed   bool
	writeErr error
}

func (f *fakeTransport) Write(data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func (f *fakeTransport) open()              { f.listener.OnOpen() }
func (f *fakeTransport) deliver(raw string) { f.listener.OnMessage([]byte(raw)) }
func (f *fakeTransport) fail(err error)     { f.listener.OnClose(err) }

// types lists the "type" field of every written frame.
func (f *fakeTransport) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, w := range f.written {
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(w, &env); err != nil {
			t.Fatalf("written frame is not json: %s", w)
		}
		out = append(out, env.Type)
	}
	return out
}

type fakeDialer struct {
	dials     []*fakeTransport
	endpoints []string
}

func (d *fakeDialer) Dial(endpoint string, l Listener) Transport {
	t := &fakeTransport{listener: l}
	d.dials = append(d.dials, t)
	d.endpoints = append(d.endpoints, endpoint)
	return t
}

func (d *fakeDialer) last(t *testing.T) *fakeTransport {
	t.Helper()
	if len(d.dials) == 0 {
		t.Fatalf("no dial happened")
	}
	return d.dials[len(d.dials)-1]
}

type staticIdentity struct{ id string }

func (s *staticIdentity) Current() string { return s.id }

var errRefused = errors.New("connection refused")
