// Package review implements the operator workflow over alerts: listing
// what needs attention, acknowledging it, and releasing or replacing the
// narration a session is holding for approval.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gamedomain "github.com/louisbranch/questmaster/internal/game/domain"
	gamestorage "github.com/louisbranch/questmaster/internal/game/storage"
	"github.com/louisbranch/questmaster/internal/hitl/domain"
	"github.com/louisbranch/questmaster/internal/hitl/storage"
)

var (
	// ErrEmptyResponse indicates a manual response needs text.
	ErrEmptyResponse = errors.New("response text is required")
	// ErrNoPendingDraft indicates the session holds no draft to approve.
	ErrNoPendingDraft = errors.New("session has no pending draft")
	// ErrSessionNotHeld indicates the session is not waiting on review.
	ErrSessionNotHeld = errors.New("session is not awaiting human review")
)

// Sender delivers operator-approved text to players.
type Sender interface {
	Send(ctx context.Context, event gamedomain.OutboundEvent) error
}

// Service drives alerts through their lifecycle and resumes the sessions
// they held up.
type Service struct {
	alerts   storage.AlertStore
	sessions gamestorage.SessionStore
	sender   Sender
	now      func() time.Time
}

// New constructs the review service. now may be nil.
func New(alerts storage.AlertStore, sessions gamestorage.SessionStore, sender Sender, now func() time.Time) (*Service, error) {
	if alerts == nil {
		return nil, errors.New("alert store is required")
	}
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Service{alerts: alerts, sessions: sessions, sender: sender, now: now}, nil
}

// ListActiveAlerts returns open and acknowledged alerts, optionally
// scoped to one session, newest first.
func (s *Service) ListActiveAlerts(ctx context.Context, sessionID string) ([]domain.Alert, error) {
	return s.alerts.ListAlerts(ctx, storage.ListAlertsFilter{
		SessionID:  sessionID,
		ActiveOnly: true,
	})
}

// AcknowledgeAlert marks an open alert as being worked on. Acknowledging
// an already acknowledged alert is a no-op.
func (s *Service) AcknowledgeAlert(ctx context.Context, alertID string) (domain.Alert, error) {
	alert, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return domain.Alert{}, err
	}
	if alert.Status == domain.StatusAcknowledged {
		return alert, nil
	}
	if alert.Status != domain.StatusOpen {
		return domain.Alert{}, fmt.Errorf("acknowledge alert %s: %w", alertID, domain.ErrAlertNotOpen)
	}

	alert.Status = domain.StatusAcknowledged
	alert.UpdatedAt = s.now().UTC()
	if err := s.alerts.PutAlert(ctx, alert); err != nil {
		return domain.Alert{}, fmt.Errorf("store acknowledgement: %w", err)
	}
	return alert, nil
}

// SubmitResponse resolves an alert with the operator's own narration and
// sends it to the session's players. A session parked in human review is
// returned to awaiting player input; alerts on sessions that are not
// held, such as paused-session faults, resolve without touching the
// state machine.
func (s *Service) SubmitResponse(ctx context.Context, alertID, text string) (domain.Alert, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Alert{}, ErrEmptyResponse
	}

	alert, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return domain.Alert{}, err
	}
	if !alert.Active() {
		return domain.Alert{}, fmt.Errorf("respond to alert %s: %w", alertID, domain.ErrAlertNotOpen)
	}

	session, err := s.sessions.GetSession(ctx, alert.SessionID)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("load session: %w", err)
	}

	if err := s.deliver(ctx, session, text); err != nil {
		return domain.Alert{}, err
	}
	if session.State == gamedomain.SessionStateAwaitingHumanReview {
		if err := s.release(ctx, session); err != nil {
			return domain.Alert{}, err
		}
	}

	return s.resolve(ctx, alert, text)
}

// ApproveDraft releases the session's held AI narration unchanged and
// resolves the alert.
func (s *Service) ApproveDraft(ctx context.Context, alertID string) (domain.Alert, error) {
	alert, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return domain.Alert{}, err
	}
	if !alert.Active() {
		return domain.Alert{}, fmt.Errorf("approve draft for alert %s: %w", alertID, domain.ErrAlertNotOpen)
	}

	session, err := s.sessions.GetSession(ctx, alert.SessionID)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("load session: %w", err)
	}
	if session.State != gamedomain.SessionStateAwaitingHumanReview {
		return domain.Alert{}, fmt.Errorf("session %s: %w", session.ID, ErrSessionNotHeld)
	}
	if session.PendingDraft == "" {
		return domain.Alert{}, fmt.Errorf("session %s: %w", session.ID, ErrNoPendingDraft)
	}

	draft := session.PendingDraft
	if err := s.deliver(ctx, session, draft); err != nil {
		return domain.Alert{}, err
	}
	if err := s.release(ctx, session); err != nil {
		return domain.Alert{}, err
	}
	return s.resolve(ctx, alert, draft)
}

// deliver broadcasts text to the session's players.
func (s *Service) deliver(ctx context.Context, session gamedomain.Session, text string) error {
	err := s.sender.Send(ctx, gamedomain.OutboundEvent{
		SessionID:  session.ID,
		Recipients: session.Players,
		Text:       text,
	})
	if err != nil {
		return fmt.Errorf("deliver response: %w", err)
	}
	return nil
}

// release walks the held session back to awaiting player input and
// clears the pending draft.
func (s *Service) release(ctx context.Context, session gamedomain.Session) error {
	now := s.now()
	updated, err := s.sessions.TransitionSession(ctx, session.ID, gamedomain.SessionStateAwaitingHumanReview, gamedomain.SessionStateResponding, now)
	if err != nil {
		return fmt.Errorf("release session: %w", err)
	}
	if updated.PendingDraft != "" {
		updated.PendingDraft = ""
		updated.UpdatedAt = now.UTC()
		if err := s.sessions.PutSession(ctx, updated); err != nil {
			return fmt.Errorf("clear pending draft: %w", err)
		}
	}
	if _, err := s.sessions.TransitionSession(ctx, session.ID, gamedomain.SessionStateResponding, gamedomain.SessionStateAwaitingPlayerInput, now); err != nil {
		return fmt.Errorf("reopen session: %w", err)
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, alert domain.Alert, response string) (domain.Alert, error) {
	alert.Status = domain.StatusResolved
	alert.Response = response
	alert.UpdatedAt = s.now().UTC()
	if err := s.alerts.PutAlert(ctx, alert); err != nil {
		return domain.Alert{}, fmt.Errorf("store resolution: %w", err)
	}
	return alert, nil
}
