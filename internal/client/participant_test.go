package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mossy-p/call-signaling/internal/chat"
	"github.com/mossy-p/call-signaling/internal/logging"
	"github.com/mossy-p/call-signaling/internal/negotiation"
	"github.com/mossy-p/call-signaling/internal/relay"
	"github.com/mossy-p/call-signaling/internal/rooms"
	"github.com/mossy-p/call-signaling/internal/transport"
)

type testRelay struct {
	url      string
	registry *rooms.Registry
}

func startRelay(t *testing.T) *testRelay {
	t.Helper()
	srv := transport.NewServer(transport.WithLogger(logging.Discard()))
	registry := rooms.NewRegistry()
	relay.New(srv, registry, relay.WithLogger(logging.Discard()))

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &testRelay{url: "ws" + strings.TrimPrefix(ts.URL, "http"), registry: registry}
}

func (r *testRelay) join(t *testing.T, roomID string, media bool) *Participant {
	t.Helper()
	return r.joinWith(t, roomID, media, Options{})
}

func (r *testRelay) joinWith(t *testing.T, roomID string, media bool, opts Options) *Participant {
	t.Helper()
	api, err := negotiation.NewAPI(logging.Discard())
	if err != nil {
		t.Fatalf("NewAPI: %v", err)
	}
	opts.URL, opts.RoomID, opts.API, opts.Logger = r.url, roomID, api, logging.Discard()
	if media {
		if opts.Media, err = negotiation.NewSyntheticMedia("test"); err != nil {
			t.Fatalf("NewSyntheticMedia: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := Join(ctx, opts)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	waitFor(t, func() bool {
		for _, id := range r.registry.MembersExcept(roomID, "") {
			if id == p.ID() {
				return true
			}
		}
		return false
	})
	return p
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestTwoParticipantsReachStable(t *testing.T) {
	r := startRelay(t)
	a := r.join(t, "call", true)
	b := r.join(t, "call", false)

	waitFor(t, func() bool {
		return a.Negotiator().State() == negotiation.Stable && b.Negotiator().State() == negotiation.Stable
	})

	sa, sb := a.Negotiator().Stats(), b.Negotiator().Stats()
	if sa.OffersSent != 1 || sa.AnswersSent != 0 {
		t.Fatalf("offerer stats=%+v", sa)
	}
	if sb.OffersSent != 0 || sb.AnswersSent != 1 {
		t.Fatalf("answerer stats=%+v", sb)
	}
	if a.Negotiator().RemotePeer() != b.ID() || b.Negotiator().RemotePeer() != a.ID() {
		t.Fatalf("remote peers a=%q b=%q", a.Negotiator().RemotePeer(), b.Negotiator().RemotePeer())
	}
}

func TestParticipantsWithoutMediaStayIdle(t *testing.T) {
	r := startRelay(t)
	a := r.join(t, "quiet", false)
	b := r.join(t, "quiet", false)

	time.Sleep(200 * time.Millisecond)
	if a.Negotiator().State() != negotiation.Idle || b.Negotiator().State() != negotiation.Idle {
		t.Fatalf("states a=%s b=%s, want idle", a.Negotiator().State(), b.Negotiator().State())
	}
}

func TestChatRoundTrip(t *testing.T) {
	r := startRelay(t)
	a := r.join(t, "chat", false)
	b := r.join(t, "chat", false)

	if err := a.Chat().Send(" hello "); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, func() bool { return b.Chat().Log().Len() == 1 })
	got := b.Chat().Log().Entries()[0]
	if got.Self || got.SenderID != a.ID() || got.Content != "hello" {
		t.Fatalf("b saw %+v", got)
	}

	time.Sleep(100 * time.Millisecond)
	mine := a.Chat().Log().Entries()
	if len(mine) != 1 || !mine[0].Self {
		t.Fatalf("a's log=%+v, want exactly its own message", mine)
	}
}

func TestCloseLeavesRoom(t *testing.T) {
	r := startRelay(t)
	a := r.join(t, "bye", false)
	b := r.join(t, "bye", false)

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("Done not closed")
	}
	waitFor(t, func() bool {
		members := r.registry.MembersExcept("bye", "")
		return len(members) == 1 && members[0] == b.ID()
	})

	// Tearing down the connection releases the peer connection too
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	waitFor(t, func() bool {
		return errors.Is(a.Negotiator().HandleSignal(b.ID(), offer), negotiation.ErrClosed)
	})
	if err := a.Negotiator().PeerJoined(b.ID()); !errors.Is(err, negotiation.ErrClosed) {
		t.Fatalf("PeerJoined after close err=%v, want ErrClosed", err)
	}
}

type stateLog struct {
	mu     sync.Mutex
	states []negotiation.State
}

func (l *stateLog) record(s negotiation.State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) get() []negotiation.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]negotiation.State(nil), l.states...)
}

func TestBothWithMediaOnlyFirstJoinerOffers(t *testing.T) {
	r := startRelay(t)
	var first, second stateLog
	a := r.joinWith(t, "pair", true, Options{OnStateChange: first.record})
	b := r.joinWith(t, "pair", true, Options{OnStateChange: second.record})

	waitFor(t, func() bool {
		return a.Negotiator().State() == negotiation.Stable && b.Negotiator().State() == negotiation.Stable
	})

	sa, sb := a.Negotiator().Stats(), b.Negotiator().Stats()
	if sa.OffersSent != 1 || sa.AnswersSent != 0 {
		t.Fatalf("first joiner stats=%+v, want one offer", sa)
	}
	if sb.OffersSent != 0 || sb.AnswersSent != 1 {
		t.Fatalf("second joiner stats=%+v, want one answer", sb)
	}

	want := []negotiation.State{negotiation.HaveLocalOffer, negotiation.Stable}
	if got := first.get(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("first joiner history=%v, want %v", got, want)
	}
	want = []negotiation.State{negotiation.HaveRemoteOffer, negotiation.Stable}
	if got := second.get(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("second joiner history=%v, want %v", got, want)
	}
}

func TestOnChatSeesEveryEntry(t *testing.T) {
	r := startRelay(t)
	got := make(chan chat.Entry, 4)
	a := r.join(t, "hooks", false)
	b := r.joinWith(t, "hooks", false, Options{OnChat: func(e chat.Entry) { got <- e }})

	steps := []struct {
		from    *Participant
		content string
		self    bool
	}{{a, "first", false}, {b, "reply", true}}

	for _, step := range steps {
		if err := step.from.Chat().Send(step.content); err != nil {
			t.Fatalf("Send: %v", err)
		}
		select {
		case e := <-got:
			if e.Content != step.content || e.Self != step.self {
				t.Fatalf("entry=%+v, want %q self=%v", e, step.content, step.self)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("OnChat never saw %q", step.content)
		}
	}
}

func TestJoinRequiresRoom(t *testing.T) {
	if _, err := Join(context.Background(), Options{URL: "ws://127.0.0.1:1"}); !errors.Is(err, ErrNoRoom) {
		t.Fatalf("err=%v, want ErrNoRoom", err)
	}
}
