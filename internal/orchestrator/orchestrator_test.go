package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/questmaster/internal/ai"
	"github.com/louisbranch/questmaster/internal/game/domain"
	bboltstore "github.com/louisbranch/questmaster/internal/game/storage/bbolt"
	"github.com/louisbranch/questmaster/internal/hitl/detector"
	hitldomain "github.com/louisbranch/questmaster/internal/hitl/domain"
	hitlstorage "github.com/louisbranch/questmaster/internal/hitl/storage"
)

type fakeGenerator struct {
	mu       sync.Mutex
	requests []ai.Request
	text     string
	err      error
}

func (g *fakeGenerator) Generate(ctx context.Context, request ai.Request) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, request)
	text, err := g.text, g.err
	g.mu.Unlock()
	if err != nil {
		return "", err
	}
	return text, nil
}

func (g *fakeGenerator) set(text string, err error) {
	g.mu.Lock()
	g.text, g.err = text, err
	g.mu.Unlock()
}

func (g *fakeGenerator) calls() []ai.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ai.Request(nil), g.requests...)
}

type fakeSender struct {
	events chan domain.OutboundEvent
}

func newFakeSender() *fakeSender {
	return &fakeSender{events: make(chan domain.OutboundEvent, 32)}
}

func (s *fakeSender) Send(ctx context.Context, event domain.OutboundEvent) error {
	s.events <- event
	return nil
}

type captureAlerts struct {
	mu     sync.Mutex
	alerts []hitldomain.Alert
}

func (c *captureAlerts) PutAlert(ctx context.Context, alert hitldomain.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *captureAlerts) GetAlert(ctx context.Context, id string) (hitldomain.Alert, error) {
	return hitldomain.Alert{}, hitlstorage.ErrNotFound
}

func (c *captureAlerts) ListAlerts(ctx context.Context, filter hitlstorage.ListAlertsFilter) ([]hitldomain.Alert, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]hitldomain.Alert(nil), c.alerts...), nil
}

func (c *captureAlerts) byReason(reason hitldomain.Reason) []hitldomain.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []hitldomain.Alert
	for _, alert := range c.alerts {
		if alert.Reason == reason {
			matched = append(matched, alert)
		}
	}
	return matched
}

type harness struct {
	orc    *Orchestrator
	store  *bboltstore.Store
	alerts *captureAlerts
	sender *fakeSender
	gen    *fakeGenerator
}

func startHarness(t *testing.T, gen *fakeGenerator) *harness {
	t.Helper()

	store, err := bboltstore.Open(filepath.Join(t.TempDir(), "game.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})

	alerts := &captureAlerts{}
	sender := newFakeSender()

	orc, err := New(Config{
		Store:     store,
		Alerts:    alerts,
		Generator: gen,
		Detector:  detector.New(hitldomain.DefaultRules()),
		Sender:    sender,
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("run: %v", err)
		}
	})

	return &harness{orc: orc, store: store, alerts: alerts, sender: sender, gen: gen}
}

// submit retries until the run loop is accepting events.
func (h *harness) submit(t *testing.T, event domain.InboundEvent) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := h.orc.Submit(context.Background(), event)
		if err == nil {
			return
		}
		if !errors.Is(err, ErrNotRunning) || time.Now().After(deadline) {
			t.Fatalf("submit: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) waitEvent(t *testing.T) domain.OutboundEvent {
	t.Helper()
	select {
	case event := <-h.sender.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound event")
		return domain.OutboundEvent{}
	}
}

func (h *harness) waitState(t *testing.T, sessionID string, want domain.SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		session, err := h.store.GetSession(context.Background(), sessionID)
		if err == nil && session.State == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("session %s state = %v, want %v (err %v)", sessionID, session.State, want, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func inbound(eventID, text string) domain.InboundEvent {
	return domain.InboundEvent{
		EventID:   eventID,
		SessionID: "sess-1",
		PlayerID:  "p1",
		Text:      text,
	}
}

func TestOrchestratorNarratesFreeText(t *testing.T) {
	gen := &fakeGenerator{text: "The door creaks open onto a dark hallway."}
	h := startHarness(t, gen)

	h.submit(t, inbound("evt-1", "I open the door"))

	narration := h.waitEvent(t)
	if narration.Text != gen.text {
		t.Fatalf("narration = %q, want %q", narration.Text, gen.text)
	}
	if len(narration.Recipients) != 1 || narration.Recipients[0] != "p1" {
		t.Errorf("recipients = %v, want [p1]", narration.Recipients)
	}
	h.waitState(t, "sess-1", domain.SessionStateAwaitingPlayerInput)

	calls := gen.calls()
	if len(calls) != 1 {
		t.Fatalf("generator calls = %d, want 1", len(calls))
	}
	if calls[0].Category != ai.CategoryNarration {
		t.Errorf("category = %q, want %q", calls[0].Category, ai.CategoryNarration)
	}
	if !strings.Contains(calls[0].Prompt, "I open the door") {
		t.Errorf("prompt %q does not include the player action", calls[0].Prompt)
	}
}

func TestOrchestratorRollEchoPrecedesNarration(t *testing.T) {
	gen := &fakeGenerator{text: "The dice clatter across the table."}
	h := startHarness(t, gen)

	h.submit(t, inbound("evt-1", "/roll 2d6+3"))

	echo := h.waitEvent(t)
	if !strings.HasPrefix(echo.Text, "🎲 2d6+3: ") {
		t.Fatalf("first outbound = %q, want roll echo", echo.Text)
	}
	narration := h.waitEvent(t)
	if narration.Text != gen.text {
		t.Fatalf("second outbound = %q, want narration", narration.Text)
	}
	h.waitState(t, "sess-1", domain.SessionStateAwaitingPlayerInput)

	rolls, err := h.store.ListRolls(context.Background(), "sess-1", 10)
	if err != nil {
		t.Fatalf("list rolls: %v", err)
	}
	if len(rolls) != 1 {
		t.Fatalf("stored rolls = %d, want 1", len(rolls))
	}
	if rolls[0].Expression != "2d6+3" {
		t.Errorf("stored expression = %q, want 2d6+3", rolls[0].Expression)
	}
}

func TestOrchestratorDuplicateEventIgnored(t *testing.T) {
	gen := &fakeGenerator{text: "Something stirs in the dark."}
	h := startHarness(t, gen)

	h.submit(t, inbound("evt-1", "I listen at the wall"))
	first := h.waitEvent(t)
	if first.Text != gen.text {
		t.Fatalf("first outbound = %q, want narration", first.Text)
	}
	h.waitState(t, "sess-1", domain.SessionStateAwaitingPlayerInput)

	// Redelivery of the same event must produce nothing; the help
	// request behind it should be the next outbound.
	h.submit(t, inbound("evt-1", "I listen at the wall"))
	h.submit(t, inbound("evt-2", "/help"))

	next := h.waitEvent(t)
	if next.Text != helpText {
		t.Fatalf("outbound after redelivery = %q, want help text", next.Text)
	}
	if calls := gen.calls(); len(calls) != 1 {
		t.Errorf("generator calls = %d, want 1", len(calls))
	}
}

func TestOrchestratorSensitiveTextHoldsForReview(t *testing.T) {
	gen := &fakeGenerator{text: "unused"}
	h := startHarness(t, gen)

	h.submit(t, inbound("evt-1", "this is offensive and I want it gone"))

	notice := h.waitEvent(t)
	if !strings.Contains(notice.Text, "game master is stepping in") {
		t.Fatalf("outbound = %q, want review notice", notice.Text)
	}
	h.waitState(t, "sess-1", domain.SessionStateAwaitingHumanReview)

	if calls := gen.calls(); len(calls) != 0 {
		t.Errorf("generator calls = %d, want 0", len(calls))
	}
	if alerts := h.alerts.byReason(hitldomain.ReasonInappropriateContent); len(alerts) != 1 {
		t.Fatalf("inappropriate content alerts = %d, want 1", len(alerts))
	}
	session, err := h.store.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.PendingDraft != "" {
		t.Errorf("pending draft = %q, want empty", session.PendingDraft)
	}
}

func TestOrchestratorFlaggedDraftHeldForReview(t *testing.T) {
	gen := &fakeGenerator{text: "The jester says something deeply offensive."}
	h := startHarness(t, gen)

	h.submit(t, inbound("evt-1", "I talk to the jester"))

	notice := h.waitEvent(t)
	if !strings.Contains(notice.Text, "game master is stepping in") {
		t.Fatalf("outbound = %q, want review notice", notice.Text)
	}
	h.waitState(t, "sess-1", domain.SessionStateAwaitingHumanReview)

	session, err := h.store.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.PendingDraft != gen.text {
		t.Errorf("pending draft = %q, want held narration", session.PendingDraft)
	}
}

func TestOrchestratorAIFailureHoldsForReview(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("every provider is down")}
	h := startHarness(t, gen)

	h.submit(t, inbound("evt-1", "I search the room"))

	notice := h.waitEvent(t)
	if !strings.Contains(notice.Text, "game master is stepping in") {
		t.Fatalf("outbound = %q, want review notice", notice.Text)
	}
	h.waitState(t, "sess-1", domain.SessionStateAwaitingHumanReview)

	alerts := h.alerts.byReason(hitldomain.ReasonAIUnavailable)
	if len(alerts) != 1 {
		t.Fatalf("ai unavailable alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != hitldomain.SeverityCritical {
		t.Errorf("severity = %v, want critical", alerts[0].Severity)
	}
}

func TestOrchestratorReplaysEventsHeldDuringReview(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("every provider is down")}
	h := startHarness(t, gen)

	h.submit(t, inbound("evt-1", "I search the room"))
	h.waitEvent(t)
	h.waitState(t, "sess-1", domain.SessionStateAwaitingHumanReview)

	h.submit(t, inbound("evt-2", "I open the chest"))
	hold := h.waitEvent(t)
	if !strings.Contains(hold.Text, "reviewing the last turn") {
		t.Fatalf("outbound = %q, want hold notice", hold.Text)
	}

	gen.set("Inside the chest a lantern still burns.", nil)
	ctx := context.Background()
	if _, err := h.store.TransitionSession(ctx, "sess-1", domain.SessionStateAwaitingHumanReview, domain.SessionStateResponding, time.Now()); err != nil {
		t.Fatalf("release session: %v", err)
	}
	if _, err := h.store.TransitionSession(ctx, "sess-1", domain.SessionStateResponding, domain.SessionStateAwaitingPlayerInput, time.Now()); err != nil {
		t.Fatalf("release session: %v", err)
	}

	// The held event was never marked processed, so the gateway's
	// redelivery runs the full turn.
	h.submit(t, inbound("evt-2", "I open the chest"))
	narration := h.waitEvent(t)
	if narration.Text != "Inside the chest a lantern still burns." {
		t.Fatalf("outbound = %q, want narration for the redelivered event", narration.Text)
	}
	h.waitState(t, "sess-1", domain.SessionStateAwaitingPlayerInput)

	if calls := gen.calls(); len(calls) != 2 {
		t.Errorf("generator calls = %d, want 2", len(calls))
	}
}

func TestOrchestratorCreateCharacterAndStatus(t *testing.T) {
	gen := &fakeGenerator{text: "Mira strides into the tavern."}
	h := startHarness(t, gen)

	h.submit(t, inbound("evt-1", "/create-character Mira"))

	sheet := h.waitEvent(t)
	if !strings.Contains(sheet.Text, "Mira (level 1)") {
		t.Fatalf("first outbound = %q, want character sheet", sheet.Text)
	}
	if !strings.Contains(sheet.Text, "STR 15") {
		t.Errorf("sheet %q missing standard array strength", sheet.Text)
	}
	narration := h.waitEvent(t)
	if narration.Text != gen.text {
		t.Fatalf("second outbound = %q, want narration", narration.Text)
	}
	h.waitState(t, "sess-1", domain.SessionStateAwaitingPlayerInput)

	character, err := h.store.GetCharacterByPlayer(context.Background(), "sess-1", "p1")
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if character.HPCurrent != 10 || character.HPMax != 10 {
		t.Errorf("hp = %d/%d, want 10/10", character.HPCurrent, character.HPMax)
	}

	h.submit(t, inbound("evt-2", "/status"))
	status := h.waitEvent(t)
	if !strings.Contains(status.Text, "HP 10/10") {
		t.Errorf("status = %q, want hit points line", status.Text)
	}

	if calls := gen.calls(); calls[0].Category != ai.CategoryCharacterDescription {
		t.Errorf("category = %q, want %q", calls[0].Category, ai.CategoryCharacterDescription)
	}
}

func TestOrchestratorRestRestoresHitPoints(t *testing.T) {
	gen := &fakeGenerator{text: "The party wakes refreshed."}
	h := startHarness(t, gen)

	h.submit(t, inbound("evt-1", "/create-character Mira"))
	h.waitEvent(t)
	h.waitEvent(t)
	h.waitState(t, "sess-1", domain.SessionStateAwaitingPlayerInput)

	character, err := h.store.GetCharacterByPlayer(context.Background(), "sess-1", "p1")
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if _, err := h.store.UpdateCharacterHP(context.Background(), character.ID, -6, time.Now()); err != nil {
		t.Fatalf("damage character: %v", err)
	}

	h.submit(t, inbound("evt-2", "/rest"))
	notice := h.waitEvent(t)
	if !strings.Contains(notice.Text, "recovers to 10/10 HP") {
		t.Fatalf("rest notice = %q, want recovery line", notice.Text)
	}
	narration := h.waitEvent(t)
	if narration.Text != gen.text {
		t.Fatalf("second outbound = %q, want narration", narration.Text)
	}
}

func TestOrchestratorPauseAndResume(t *testing.T) {
	gen := &fakeGenerator{text: "unused"}
	h := startHarness(t, gen)

	h.submit(t, inbound("evt-1", "/pause"))
	paused := h.waitEvent(t)
	if !strings.Contains(paused.Text, "paused") {
		t.Fatalf("outbound = %q, want pause notice", paused.Text)
	}
	h.waitState(t, "sess-1", domain.SessionStatePaused)

	h.submit(t, inbound("evt-2", "I keep walking"))
	blocked := h.waitEvent(t)
	if !strings.Contains(blocked.Text, "/resume") {
		t.Fatalf("outbound = %q, want paused guidance", blocked.Text)
	}
	if calls := gen.calls(); len(calls) != 0 {
		t.Errorf("generator calls = %d, want 0 while paused", len(calls))
	}

	h.submit(t, inbound("evt-3", "/resume"))
	resumed := h.waitEvent(t)
	if !strings.Contains(resumed.Text, "resumes") {
		t.Fatalf("outbound = %q, want resume notice", resumed.Text)
	}
	h.waitState(t, "sess-1", domain.SessionStateAwaitingPlayerInput)
}

func TestOrchestratorEndArchivesSession(t *testing.T) {
	gen := &fakeGenerator{text: "unused"}
	h := startHarness(t, gen)

	h.submit(t, inbound("evt-1", "/end"))
	farewell := h.waitEvent(t)
	if !strings.Contains(farewell.Text, "archived") {
		t.Fatalf("outbound = %q, want archive notice", farewell.Text)
	}
	h.waitState(t, "sess-1", domain.SessionStateArchived)

	h.submit(t, inbound("evt-2", "hello?"))
	ended := h.waitEvent(t)
	if ended.Text != "This session has ended." {
		t.Fatalf("outbound = %q, want ended notice", ended.Text)
	}
}

func TestOrchestratorBadRollRepliesWithoutTransition(t *testing.T) {
	gen := &fakeGenerator{text: "unused"}
	h := startHarness(t, gen)

	h.submit(t, inbound("evt-1", "/roll banana"))
	usage := h.waitEvent(t)
	if !strings.Contains(usage.Text, "could not read that dice expression") {
		t.Fatalf("outbound = %q, want usage notice", usage.Text)
	}
	h.waitState(t, "sess-1", domain.SessionStateAwaitingPlayerInput)

	if calls := gen.calls(); len(calls) != 0 {
		t.Errorf("generator calls = %d, want 0", len(calls))
	}
	rolls, err := h.store.ListRolls(context.Background(), "sess-1", 10)
	if err != nil {
		t.Fatalf("list rolls: %v", err)
	}
	if len(rolls) != 0 {
		t.Errorf("stored rolls = %d, want 0", len(rolls))
	}
}

func TestSubmitValidation(t *testing.T) {
	gen := &fakeGenerator{}
	h := startHarness(t, gen)

	err := h.orc.Submit(context.Background(), domain.InboundEvent{SessionID: "s", PlayerID: "p", Text: "hi"})
	if !errors.Is(err, domain.ErrEmptyEventID) {
		t.Errorf("err = %v, want ErrEmptyEventID", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.orc.Submit(ctx, inbound("evt-1", "hi")); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSubmitBeforeRun(t *testing.T) {
	store, err := bboltstore.Open(filepath.Join(t.TempDir(), "game.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	orc, err := New(Config{
		Store:     store,
		Alerts:    &captureAlerts{},
		Generator: &fakeGenerator{},
		Detector:  detector.New(hitldomain.DefaultRules()),
		Sender:    newFakeSender(),
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	if err := orc.Submit(context.Background(), inbound("evt-1", "hi")); !errors.Is(err, ErrNotRunning) {
		t.Errorf("err = %v, want ErrNotRunning", err)
	}
}
