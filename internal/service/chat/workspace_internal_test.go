package chat

import (
	"context"
	"testing"

	"github.com/zhouzirui/support-desk/client/internal/model/support"
	"github.com/zhouzirui/support-desk/client/internal/service/conversation"
	"github.com/zhouzirui/support-desk/client/internal/service/history"
)

type quietBackend struct{}

func (quietBackend) Chat(_ context.Context, _ support.ChatRequest) (support.ChatResponse, error) {
	return support.ChatResponse{Response: "ok", SessionID: "s-1"}, nil
}

func (quietBackend) ListSessions(_ context.Context, _ support.Contact) ([]support.SessionRecord, error) {
	return nil, nil
}

func (quietBackend) History(_ context.Context, _ string) ([]support.HistoryEntry, error) {
	return nil, nil
}

func TestPublishDropsSnapshotOlderThanLastDelivered(t *testing.T) {
	backend := quietBackend{}
	ws := newWorkspace("w", backend, history.NewLoader(backend), settings{})
	if _, err := ws.SetContact(context.Background(), "a@b.co"); err != nil {
		t.Fatalf("SetContact: %v", err)
	}

	var views []View
	ws.Subscribe(func(v View) { views = append(views, v) })

	machine := ws.machine
	ex, err := machine.Submit("hello")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := machine.OnReplyReceived(ex, conversation.Reply{SessionID: "s-1", Prose: "hi"}); err != nil {
		t.Fatalf("OnReplyReceived: %v", err)
	}
	reply := machine.Snapshot()
	ws.Reset()

	delivered := len(views)
	// The reply's snapshot arriving after the reset's must not win.
	ws.publish(machine, reply)

	if len(views) != delivered {
		t.Fatalf("stale snapshot delivered: %d views, want %d", len(views), delivered)
	}
	last := views[len(views)-1]
	if len(last.Turns) != 0 || last.SessionID != "" {
		t.Fatalf("latest view should be the cleared conversation, got %+v", last)
	}
	if got := ws.View(); len(got.Turns) != 0 {
		t.Fatalf("workspace view regressed: %+v", got)
	}
}
