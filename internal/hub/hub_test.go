package hub

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"queueline/internal/auth"
	"queueline/internal/store"
)

func newClient(id string, buffer int, sub Subscription) *Client {
	return &Client{ID: id, Send: make(chan []byte, buffer), Subscription: sub}
}

func TestBroadcastMatchesSubscriptions(t *testing.T) {
	h := New()
	entryWatcher := newClient("entry", 4, Subscription{SubjectID: "entry-1"})
	board := newClient("board", 4, Subscription{BusinessID: "biz-1"})
	reservationsOnly := newClient("res", 4, Subscription{BusinessID: "biz-1", Kind: store.KindReservation})
	other := newClient("other", 4, Subscription{BusinessID: "biz-2"})
	idle := newClient("idle", 4, Subscription{})
	for _, c := range []*Client{entryWatcher, board, reservationsOnly, other, idle} {
		h.Register(c)
	}

	h.Broadcast(store.Change{Kind: store.KindEntry, BusinessID: "biz-1", SubjectID: "entry-1"})

	if len(entryWatcher.Send) != 1 || len(board.Send) != 1 {
		t.Fatalf("expected entry watcher and board to receive the change")
	}
	if len(reservationsOnly.Send) != 0 || len(other.Send) != 0 || len(idle.Send) != 0 {
		t.Fatalf("unexpected delivery res=%d other=%d idle=%d", len(reservationsOnly.Send), len(other.Send), len(idle.Send))
	}

	var msg ChangedMessage
	if err := json.Unmarshal(<-entryWatcher.Send, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "changed" || msg.SubjectID != "entry-1" || msg.Kind != store.KindEntry {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestBroadcastDropsForSlowClient(t *testing.T) {
	h := New()
	slow := newClient("slow", 1, Subscription{BusinessID: "biz-1"})
	h.Register(slow)

	change := store.Change{Kind: store.KindEntry, BusinessID: "biz-1", SubjectID: "entry-1"}
	h.Broadcast(change)
	h.Broadcast(change)

	if len(slow.Send) != 1 {
		t.Fatalf("expected one buffered message, got %d", len(slow.Send))
	}
	if h.Dropped() != 1 {
		t.Fatalf("expected one dropped message, got %d", h.Dropped())
	}
}

func TestUnregisterClosesOnce(t *testing.T) {
	h := New()
	c := newClient("c", 1, Subscription{})
	h.Register(c)
	h.Unregister(c)
	h.Unregister(c)

	if _, ok := <-c.Send; ok {
		t.Fatalf("expected closed channel")
	}
	if h.Clients() != 0 {
		t.Fatalf("expected no clients")
	}
}

func TestParseSubscribe(t *testing.T) {
	msg, ok := ParseSubscribe([]byte(`{"action":"subscribe","subject_id":" entry-1 "}`))
	if !ok || msg.SubjectID != "entry-1" {
		t.Fatalf("unexpected parse result: %+v %v", msg, ok)
	}
	if _, ok := ParseSubscribe([]byte(`{"action":"publish"}`)); ok {
		t.Fatalf("expected unknown action to be rejected")
	}
	if _, ok := ParseSubscribe([]byte(`not json`)); ok {
		t.Fatalf("expected invalid json to be rejected")
	}
}

func TestResolve(t *testing.T) {
	issuer := auth.NewIssuer("hub-secret", time.Hour)
	operator, err := issuer.Issue(auth.Claims{Role: auth.RoleOperator, BusinessID: "biz-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	sub, err := Resolve(SubscribeMessage{Action: "subscribe", SubjectID: "entry-1", Kind: store.KindEntry}, issuer)
	if err != nil || sub.SubjectID != "entry-1" {
		t.Fatalf("expected anonymous subject subscription, got %+v %v", sub, err)
	}

	if _, err := Resolve(SubscribeMessage{Action: "subscribe", BusinessID: "biz-1"}, issuer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized without token, got %v", err)
	}
	if _, err := Resolve(SubscribeMessage{Action: "subscribe", BusinessID: "biz-2", Token: operator}, issuer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for other business, got %v", err)
	}
	sub, err = Resolve(SubscribeMessage{Action: "subscribe", BusinessID: "biz-1", Token: operator}, issuer)
	if err != nil || sub.BusinessID != "biz-1" {
		t.Fatalf("expected business subscription, got %+v %v", sub, err)
	}
	if _, err := Resolve(SubscribeMessage{Action: "subscribe"}, issuer); !errors.Is(err, ErrInvalidTopic) {
		t.Fatalf("expected invalid topic, got %v", err)
	}
}
