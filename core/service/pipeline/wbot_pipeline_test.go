package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
)

// fakeMessageLog remembers inserted ids so a second insert reports duplicate.
type fakeMessageLog struct {
	mu      sync.Mutex
	seen    map[string]bool
	handled map[string]string
	err     error
}

func newFakeMessageLog() *fakeMessageLog {
	return &fakeMessageLog{seen: make(map[string]bool), handled: make(map[string]string)}
}

func (l *fakeMessageLog) Insert(ctx context.Context, messageID string, businessID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.seen[messageID] {
		return false, nil
	}
	l.seen[messageID] = true
	return true, nil
}

func (l *fakeMessageLog) MarkHandled(ctx context.Context, messageID, handlerName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handled[messageID] = handlerName
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []*domain.OutboundMessage
	err  error
}

func (s *fakeSender) SendText(ctx context.Context, businessID string, msg *domain.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeArchive struct {
	stored int
	err    error
}

func (a *fakeArchive) Store(ctx context.Context, messageID string, payload []byte) error {
	if a.err != nil {
		return a.err
	}
	a.stored++
	return nil
}

// stubHandler is scripted per test.
type stubHandler struct {
	name  string
	reply *domain.Reply
	err   error
	panic bool
	calls int
}

func (h *stubHandler) Name() string { return h.name }

func (h *stubHandler) Handle(ctx context.Context, business *domain.Business, msg *domain.InboundMessage) (*domain.Reply, error) {
	h.calls++
	if h.panic {
		panic("boom")
	}
	return h.reply, h.err
}

func testBusiness() *domain.Business {
	return &domain.Business{ID: uuid.New(), Name: "Testco", PhoneNumberID: "pn-1"}
}

func testMessage(id string) *domain.InboundMessage {
	return &domain.InboundMessage{
		MessageID:  id,
		From:       "+15550001111",
		Text:       "hello",
		ReceivedAt: time.Now(),
	}
}

func TestHandleInboundSendsFirstHandlerReply(t *testing.T) {
	log := newFakeMessageLog()
	sender := &fakeSender{}
	first := &stubHandler{name: "first", reply: &domain.Reply{Text: "hi there"}}
	second := &stubHandler{name: "second", reply: &domain.Reply{Text: "should not run"}}
	p := New(log, nil, sender, []Handler{first, second})

	p.HandleInbound(context.Background(), testBusiness(), testMessage("m1"), nil)

	if sender.sentCount() != 1 {
		t.Fatalf("sent = %d, want 1", sender.sentCount())
	}
	if sender.sent[0].Text != "hi there" {
		t.Errorf("sent %q", sender.sent[0].Text)
	}
	if second.calls != 0 {
		t.Error("chain should stop at the first terminal reply")
	}
	if log.handled["m1"] != "first" {
		t.Errorf("handled by %q, want first", log.handled["m1"])
	}
}

func TestHandleInboundDuplicateSendsNothing(t *testing.T) {
	log := newFakeMessageLog()
	sender := &fakeSender{}
	handler := &stubHandler{name: "h", reply: &domain.Reply{Text: "reply"}}
	p := New(log, nil, sender, []Handler{handler})
	business := testBusiness()

	p.HandleInbound(context.Background(), business, testMessage("m1"), nil)
	p.HandleInbound(context.Background(), business, testMessage("m1"), nil)

	if sender.sentCount() != 1 {
		t.Errorf("sent = %d, want exactly 1 for a redelivered message", sender.sentCount())
	}
	if handler.calls != 1 {
		t.Errorf("handler calls = %d, want 1", handler.calls)
	}
}

func TestHandleInboundDegradesPastFailingHandlers(t *testing.T) {
	log := newFakeMessageLog()
	sender := &fakeSender{}
	failing := &stubHandler{name: "failing", err: errors.New("upstream down")}
	panicking := &stubHandler{name: "panicking", panic: true}
	working := &stubHandler{name: "working", reply: &domain.Reply{Text: "recovered"}}
	p := New(log, nil, sender, []Handler{failing, panicking, working})

	p.HandleInbound(context.Background(), testBusiness(), testMessage("m1"), nil)

	if sender.sentCount() != 1 {
		t.Fatalf("sent = %d, want 1", sender.sentCount())
	}
	if sender.sent[0].Text != "recovered" {
		t.Errorf("sent %q, want the surviving handler's reply", sender.sent[0].Text)
	}
}

func TestHandleInboundAllHandlersFailSendsApology(t *testing.T) {
	log := newFakeMessageLog()
	sender := &fakeSender{}
	p := New(log, nil, sender, []Handler{
		&stubHandler{name: "a", err: errors.New("down")},
		&stubHandler{name: "b", err: errors.New("also down")},
	})

	p.HandleInbound(context.Background(), testBusiness(), testMessage("m1"), nil)

	if sender.sentCount() != 1 {
		t.Fatalf("sent = %d, want 1", sender.sentCount())
	}
	if sender.sent[0].Text != ApologyText {
		t.Errorf("sent %q, want the static apology", sender.sent[0].Text)
	}
	if log.handled["m1"] != "apology" {
		t.Errorf("handled by %q, want apology", log.handled["m1"])
	}
}

func TestHandleInboundAllHandlersDeclineSendsApology(t *testing.T) {
	log := newFakeMessageLog()
	sender := &fakeSender{}
	p := New(log, nil, sender, []Handler{&stubHandler{name: "a"}})

	p.HandleInbound(context.Background(), testBusiness(), testMessage("m1"), nil)

	if sender.sentCount() != 1 || sender.sent[0].Text != ApologyText {
		t.Error("an unanswered customer should get the apology")
	}
}

func TestHandleInboundSilentReplySkipsSend(t *testing.T) {
	log := newFakeMessageLog()
	sender := &fakeSender{}
	silent := &stubHandler{name: "silent", reply: &domain.Reply{Silent: true}}
	p := New(log, nil, sender, []Handler{silent})

	p.HandleInbound(context.Background(), testBusiness(), testMessage("m1"), nil)

	if sender.sentCount() != 0 {
		t.Errorf("sent = %d, want 0 for a silent reply", sender.sentCount())
	}
	if log.handled["m1"] != "silent" {
		t.Error("silent replies still mark the message handled")
	}
}

func TestHandleInboundSendFailureStillMarksHandled(t *testing.T) {
	log := newFakeMessageLog()
	sender := &fakeSender{err: errors.New("transport down")}
	handler := &stubHandler{name: "h", reply: &domain.Reply{Text: "reply"}}
	p := New(log, nil, sender, []Handler{handler})

	p.HandleInbound(context.Background(), testBusiness(), testMessage("m1"), nil)

	if log.handled["m1"] != "h" {
		t.Error("a send failure must not leave the message unmarked (provider would retry-storm)")
	}
}

func TestHandleInboundDedupErrorDropsDelivery(t *testing.T) {
	log := newFakeMessageLog()
	log.err = errors.New("db down")
	sender := &fakeSender{}
	handler := &stubHandler{name: "h", reply: &domain.Reply{Text: "reply"}}
	p := New(log, nil, sender, []Handler{handler})

	p.HandleInbound(context.Background(), testBusiness(), testMessage("m1"), nil)

	if handler.calls != 0 || sender.sentCount() != 0 {
		t.Error("when dedup cannot be verified the delivery must not produce side effects")
	}
}

func TestHandleInboundArchivesPayload(t *testing.T) {
	log := newFakeMessageLog()
	sender := &fakeSender{}
	archive := &fakeArchive{}
	p := New(log, archive, sender, []Handler{&stubHandler{name: "h", reply: &domain.Reply{Text: "r"}}})

	p.HandleInbound(context.Background(), testBusiness(), testMessage("m1"), []byte(`{"raw":true}`))

	if archive.stored != 1 {
		t.Errorf("archived = %d, want 1", archive.stored)
	}
}

func TestHandleInboundArchiveFailureDoesNotBlock(t *testing.T) {
	log := newFakeMessageLog()
	sender := &fakeSender{}
	archive := &fakeArchive{err: errors.New("mongo down")}
	p := New(log, archive, sender, []Handler{&stubHandler{name: "h", reply: &domain.Reply{Text: "r"}}})

	p.HandleInbound(context.Background(), testBusiness(), testMessage("m1"), []byte(`{}`))

	if sender.sentCount() != 1 {
		t.Error("archive failure must not stop message handling")
	}
}
