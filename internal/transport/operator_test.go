package transport

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	gamedomain "github.com/louisbranch/questmaster/internal/game/domain"
	bboltstore "github.com/louisbranch/questmaster/internal/game/storage/bbolt"
	"github.com/louisbranch/questmaster/internal/hitl/domain"
	"github.com/louisbranch/questmaster/internal/hitl/review"
	sqlitestore "github.com/louisbranch/questmaster/internal/hitl/storage/sqlite"
)

type recordSender struct {
	mu     sync.Mutex
	events []gamedomain.OutboundEvent
}

func (r *recordSender) Send(ctx context.Context, event gamedomain.OutboundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type operatorFixture struct {
	mux      *http.ServeMux
	priv     ed25519.PrivateKey
	now      time.Time
	alerts   *sqlitestore.Store
	sessions *bboltstore.Store
	sender   *recordSender
}

func newOperatorFixture(t *testing.T) *operatorFixture {
	t.Helper()

	alerts, err := sqlitestore.Open(filepath.Join(t.TempDir(), "hitl.db"))
	if err != nil {
		t.Fatalf("open alert store: %v", err)
	}
	t.Cleanup(func() { alerts.Close() })

	sessions, err := bboltstore.Open(filepath.Join(t.TempDir(), "game.db"))
	if err != nil {
		t.Fatalf("open session store: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })

	sender := &recordSender{}
	service, err := review.New(alerts, sessions, sender, time.Now)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub, priv := newGrantKeys(t)
	handler, err := NewOperatorHandler(service, grantConfig(pub, now))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	mux := http.NewServeMux()
	handler.Register(mux)
	return &operatorFixture{mux: mux, priv: priv, now: now, alerts: alerts, sessions: sessions, sender: sender}
}

func (f *operatorFixture) seedHeldSession(t *testing.T, draft string) domain.Alert {
	t.Helper()
	ctx := context.Background()

	session := gamedomain.Session{
		ID:           "sess-1",
		Players:      []string{"p1"},
		State:        gamedomain.SessionStateAwaitingHumanReview,
		PendingDraft: draft,
		CreatedAt:    f.now,
		UpdatedAt:    f.now,
	}
	if err := f.sessions.PutSession(ctx, session); err != nil {
		t.Fatalf("put session: %v", err)
	}

	alert, err := domain.CreateAlert(domain.CreateAlertInput{
		SessionID: session.ID,
		Source:    domain.SourceAI,
		Reason:    domain.ReasonInappropriateContent,
		Severity:  domain.SeverityCritical,
	}, nil, nil)
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	if err := f.alerts.PutAlert(ctx, alert); err != nil {
		t.Fatalf("put alert: %v", err)
	}
	return alert
}

func (f *operatorFixture) request(t *testing.T, method, path, body string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authorized {
		req.Header.Set("Authorization", "Bearer "+signGrant(t, f.priv, baseClaims(f.now)))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestOperatorAPIRequiresGrant(t *testing.T) {
	f := newOperatorFixture(t)
	rec := f.request(t, http.MethodGet, "/operator/alerts", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestOperatorAPIListAlerts(t *testing.T) {
	f := newOperatorFixture(t)
	alert := f.seedHeldSession(t, "")

	rec := f.request(t, http.MethodGet, "/operator/alerts?session_id=sess-1", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Alerts []alertView `json:"alerts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Alerts) != 1 || body.Alerts[0].ID != alert.ID {
		t.Fatalf("alerts = %+v, want the seeded alert", body.Alerts)
	}
	if body.Alerts[0].Status != "open" {
		t.Errorf("status = %q, want open", body.Alerts[0].Status)
	}
}

func TestOperatorAPIAcknowledge(t *testing.T) {
	f := newOperatorFixture(t)
	alert := f.seedHeldSession(t, "")

	rec := f.request(t, http.MethodPost, "/operator/alerts/"+alert.ID+"/ack", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var view alertView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if view.Status != "acknowledged" {
		t.Errorf("status = %q, want acknowledged", view.Status)
	}
}

func TestOperatorAPIRespond(t *testing.T) {
	f := newOperatorFixture(t)
	alert := f.seedHeldSession(t, "held draft")

	rec := f.request(t, http.MethodPost, "/operator/alerts/"+alert.ID+"/response", `{"text":"The storm passes."}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	f.sender.mu.Lock()
	sent := len(f.sender.events)
	f.sender.mu.Unlock()
	if sent != 1 {
		t.Fatalf("sent = %d events, want 1", sent)
	}

	session, err := f.sessions.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.State != gamedomain.SessionStateAwaitingPlayerInput {
		t.Errorf("state = %v, want awaiting_player_input", session.State)
	}
}

func TestOperatorAPIRespondEmptyText(t *testing.T) {
	f := newOperatorFixture(t)
	alert := f.seedHeldSession(t, "")

	rec := f.request(t, http.MethodPost, "/operator/alerts/"+alert.ID+"/response", `{"text":"  "}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestOperatorAPIApprove(t *testing.T) {
	f := newOperatorFixture(t)
	alert := f.seedHeldSession(t, "The jester bows.")

	rec := f.request(t, http.MethodPost, "/operator/alerts/"+alert.ID+"/approve", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var view alertView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if view.Response != "The jester bows." {
		t.Errorf("response = %q, want the draft", view.Response)
	}
}

func TestOperatorAPIApproveWithoutDraft(t *testing.T) {
	f := newOperatorFixture(t)
	alert := f.seedHeldSession(t, "")

	rec := f.request(t, http.MethodPost, "/operator/alerts/"+alert.ID+"/approve", "", true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestOperatorAPIAlertNotFound(t *testing.T) {
	f := newOperatorFixture(t)
	rec := f.request(t, http.MethodPost, "/operator/alerts/missing/ack", "", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}
