package conversation_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/zhouzirui/support-desk/client/internal/model/support"
	"github.com/zhouzirui/support-desk/client/internal/service/conversation"
)

func newTestMachine() *conversation.Machine {
	var n int
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return conversation.New(
		conversation.WithClock(func() time.Time { return fixed }),
		conversation.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("turn-%d", n)
		}),
	)
}

func intPtr(v int) *int { return &v }

func TestSubmitAppendsUserTurnAndAwaitsReply(t *testing.T) {
	m := newTestMachine()

	exchange, err := m.Submit("  hello  ")
	if err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if exchange.Turn.Text != "hello" || exchange.Turn.Role != support.RoleUser {
		t.Fatalf("unexpected user turn: %+v", exchange.Turn)
	}
	if m.State() != conversation.AwaitingReply {
		t.Fatalf("expected AwaitingReply, got %s", m.State())
	}
	if got := len(m.Snapshot().Turns); got != 1 {
		t.Fatalf("expected 1 turn, got %d", got)
	}
}

func TestSubmitRejectsEmptyText(t *testing.T) {
	m := newTestMachine()

	if _, err := m.Submit(" \n\t"); !errors.Is(err, conversation.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if m.State() != conversation.Idle || len(m.Snapshot().Turns) != 0 {
		t.Fatal("empty submit must not change state")
	}
}

func TestSubmitWhileAwaitingIsNoop(t *testing.T) {
	m := newTestMachine()

	first, err := m.Submit("first")
	if err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if _, err := m.Submit("second"); !errors.Is(err, conversation.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if got := len(m.Snapshot().Turns); got != 1 {
		t.Fatalf("expected exactly one user turn while awaiting, got %d", got)
	}

	if _, err := m.OnReplyReceived(first, conversation.Reply{SessionID: "s1", Prose: "answer"}); err != nil {
		t.Fatalf("OnReplyReceived err: %v", err)
	}
	if _, err := m.Submit("second"); err != nil {
		t.Fatalf("Submit after reply err: %v", err)
	}
	if got := len(m.Snapshot().Turns); got != 3 {
		t.Fatalf("expected 3 turns, got %d", got)
	}
}

func TestReplyAssignsSessionIDOnce(t *testing.T) {
	m := newTestMachine()

	ex, _ := m.Submit("one")
	if ex.SessionID != "" {
		t.Fatalf("first exchange must not carry a session id, got %q", ex.SessionID)
	}
	if _, err := m.OnReplyReceived(ex, conversation.Reply{SessionID: "s1", Prose: "a"}); err != nil {
		t.Fatalf("OnReplyReceived err: %v", err)
	}

	ex, _ = m.Submit("two")
	if ex.SessionID != "s1" {
		t.Fatalf("expected session s1 on second exchange, got %q", ex.SessionID)
	}
	if _, err := m.OnReplyReceived(ex, conversation.Reply{SessionID: "other", Prose: "b"}); err != nil {
		t.Fatalf("OnReplyReceived err: %v", err)
	}
	if got := m.SessionID(); got != "s1" {
		t.Fatalf("session id must be immutable once assigned, got %q", got)
	}
}

func TestTicketCreationIsTerminal(t *testing.T) {
	m := newTestMachine()

	ex, _ := m.Submit("I need a human")
	turn, err := m.OnReplyReceived(ex, conversation.Reply{
		SessionID:     "s1",
		Prose:         "A support ticket #42 has been created.",
		TicketCreated: true,
		TicketID:      intPtr(42),
		Directives:    []support.ChoiceDirective{{Action: "cancel", Label: "Cancel"}},
	})
	if err != nil {
		t.Fatalf("OnReplyReceived err: %v", err)
	}
	if !turn.TicketCreated || turn.TicketID == nil || *turn.TicketID != 42 {
		t.Fatalf("expected ticket 42 on turn, got %+v", turn)
	}
	if !m.Terminal() {
		t.Fatal("expected terminal conversation")
	}
	if len(m.Offer()) != 0 {
		t.Fatal("terminal conversation must not offer directives")
	}

	before := len(m.Snapshot().Turns)
	if _, err := m.Submit("hello?"); !errors.Is(err, conversation.ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if got := len(m.Snapshot().Turns); got != before {
		t.Fatalf("terminal submit appended a turn: %d -> %d", before, got)
	}
}

func TestChatEndedIsTerminal(t *testing.T) {
	m := newTestMachine()

	ex, _ := m.Submit("end_chat")
	if _, err := m.OnReplyReceived(ex, conversation.Reply{SessionID: "s1", Prose: "Goodbye", ChatEnded: true}); err != nil {
		t.Fatalf("OnReplyReceived err: %v", err)
	}
	if !m.Terminal() {
		t.Fatal("expected ended chat to be terminal")
	}
}

func TestReplyFailedAppendsGenericNotice(t *testing.T) {
	m := newTestMachine()

	ex, _ := m.Submit("hello")
	turn, err := m.OnReplyFailed(ex, support.KindNotReachable)
	if err != nil {
		t.Fatalf("OnReplyFailed err: %v", err)
	}
	if turn.Role != support.RoleAssistant || turn.Text != support.FailureNotice {
		t.Fatalf("unexpected failure turn: %+v", turn)
	}
	if m.Terminal() || m.State() != conversation.Idle {
		t.Fatal("failure must return to Idle without ending the conversation")
	}
}

func TestReplyWithoutExchangeIsRejected(t *testing.T) {
	m := newTestMachine()

	if _, err := m.OnReplyReceived(conversation.Exchange{}, conversation.Reply{Prose: "x"}); !errors.Is(err, conversation.ErrNotAwaiting) {
		t.Fatalf("expected ErrNotAwaiting, got %v", err)
	}
	if _, err := m.OnReplyFailed(conversation.Exchange{}, support.KindNotReachable); !errors.Is(err, conversation.ErrNotAwaiting) {
		t.Fatalf("expected ErrNotAwaiting, got %v", err)
	}
}

func TestResetClearsEverythingAndDropsLateReply(t *testing.T) {
	m := newTestMachine()

	ex, _ := m.Submit("one")
	_, _ = m.OnReplyReceived(ex, conversation.Reply{SessionID: "s1", Prose: "a", TicketCreated: true, TicketID: intPtr(7)})

	m.Reset()
	snap := m.Snapshot()
	if snap.SessionID != "" || snap.Terminal || len(snap.Turns) != 0 || snap.State != conversation.Idle {
		t.Fatalf("reset left state behind: %+v", snap)
	}

	pending, err := m.Submit("two")
	if err != nil {
		t.Fatalf("Submit after reset err: %v", err)
	}
	m.Reset()
	if _, err := m.OnReplyReceived(pending, conversation.Reply{SessionID: "s2", Prose: "late"}); !errors.Is(err, conversation.ErrStaleExchange) {
		t.Fatalf("expected ErrStaleExchange, got %v", err)
	}
	if len(m.Snapshot().Turns) != 0 {
		t.Fatal("late reply must not be recorded after reset")
	}
}

func TestDirectivesAreSingleUse(t *testing.T) {
	m := newTestMachine()

	ex, _ := m.Submit("help")
	_, _ = m.OnReplyReceived(ex, conversation.Reply{
		SessionID: "s1",
		Prose:     "Choose",
		Directives: []support.ChoiceDirective{
			{Action: "create_ticket", Label: "Create Ticket"},
			{Action: "cancel", Label: "Cancel"},
		},
	})

	if got := len(m.Offer()); got != 2 {
		t.Fatalf("expected 2 offered directives, got %d", got)
	}
	if _, ok := m.TakeDirective("unknown"); ok {
		t.Fatal("unknown action must not be taken")
	}
	if d, ok := m.TakeDirective("cancel"); !ok || d.Label != "Cancel" {
		t.Fatalf("expected cancel directive, got %+v ok=%v", d, ok)
	}
	if _, ok := m.TakeDirective("create_ticket"); ok {
		t.Fatal("offer must be consumed after one activation")
	}
}

func TestSubmitClearsOffer(t *testing.T) {
	m := newTestMachine()

	ex, _ := m.Submit("help")
	_, _ = m.OnReplyReceived(ex, conversation.Reply{SessionID: "s1", Directives: []support.ChoiceDirective{{Action: "cancel"}}})
	if _, err := m.Submit("typed instead"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if len(m.Offer()) != 0 {
		t.Fatal("typing a message must discard offered directives")
	}
}

func TestResumeSeedsTranscript(t *testing.T) {
	turns := []support.Turn{
		{ID: "u1", Role: support.RoleUser, Text: "q"},
		{ID: "a1", Role: support.RoleAssistant, Text: "a"},
	}
	m := conversation.Resume("s9", turns)

	snap := m.Snapshot()
	if snap.SessionID != "s9" || len(snap.Turns) != 2 || snap.Terminal {
		t.Fatalf("unexpected resumed snapshot: %+v", snap)
	}

	turns[0].Text = "mutated"
	if m.Snapshot().Turns[0].Text != "q" {
		t.Fatal("resume must copy the supplied turns")
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	m := newTestMachine()

	var got []conversation.Snapshot
	unsubscribe := m.Subscribe(func(s conversation.Snapshot) {
		got = append(got, s)
	})

	ex, _ := m.Submit("hello")
	_, _ = m.OnReplyReceived(ex, conversation.Reply{SessionID: "s1", Prose: "hi"})
	unsubscribe()
	m.Reset()

	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].State != conversation.AwaitingReply || got[1].State != conversation.Idle {
		t.Fatalf("unexpected notification states: %s, %s", got[0].State, got[1].State)
	}
}

func TestStateTextRoundTrip(t *testing.T) {
	for _, want := range []conversation.State{conversation.Idle, conversation.AwaitingReply} {
		text, err := want.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText: %v", err)
		}
		var got conversation.State
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if got != want {
			t.Fatalf("round trip %v -> %q -> %v", want, text, got)
		}
	}

	var s conversation.State
	if err := s.UnmarshalText([]byte("dozing")); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestSnapshotVersionIncreasesWithEveryChange(t *testing.T) {
	m := newTestMachine()
	var seen []uint64
	m.Subscribe(func(s conversation.Snapshot) { seen = append(seen, s.Version) })

	ex, err := m.Submit("hello")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := m.OnReplyReceived(ex, conversation.Reply{SessionID: "s-1", Prose: "hi"}); err != nil {
		t.Fatalf("OnReplyReceived: %v", err)
	}
	m.Reset()

	if len(seen) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("versions not increasing: %v", seen)
		}
	}
	if got := m.Snapshot().Version; got != seen[len(seen)-1] {
		t.Fatalf("reading a snapshot must not change the version: got %d want %d", got, seen[len(seen)-1])
	}
}
