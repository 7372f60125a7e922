// Package orchestrator serializes inbound player events per session and
// drives each session's turn through mechanics resolution, AI narration,
// and human review gates.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/questmaster/internal/ai"
	"github.com/louisbranch/questmaster/internal/ai/prompt"
	"github.com/louisbranch/questmaster/internal/core/dice"
	"github.com/louisbranch/questmaster/internal/game/domain"
	gamestorage "github.com/louisbranch/questmaster/internal/game/storage"
	"github.com/louisbranch/questmaster/internal/hitl/detector"
	hitldomain "github.com/louisbranch/questmaster/internal/hitl/domain"
	hitlstorage "github.com/louisbranch/questmaster/internal/hitl/storage"
	"github.com/louisbranch/questmaster/internal/random"
)

// Generator produces narration text for a dispatch request. It is
// satisfied by the AI coordinator.
type Generator interface {
	Generate(ctx context.Context, request ai.Request) (string, error)
}

// Sender delivers outbound events to players. It is satisfied by the
// transport gateway client.
type Sender interface {
	Send(ctx context.Context, event domain.OutboundEvent) error
}

var (
	// ErrNotRunning indicates Submit was called before Run or after
	// shutdown began.
	ErrNotRunning = errors.New("orchestrator is not running")
)

// Config carries the orchestrator's collaborators.
type Config struct {
	Store     gamestorage.Store
	Alerts    hitlstorage.AlertStore
	Generator Generator
	Detector  *detector.Detector
	Sender    Sender
	// RollRetention caps stored roll history per session. Zero uses the
	// default.
	RollRetention int
	// Now is the clock. Nil uses time.Now.
	Now func() time.Time
}

// Orchestrator owns the per-session state machines. One worker goroutine
// per active session drains that session's mailbox, so events within a
// session are processed strictly in arrival order.
type Orchestrator struct {
	store         gamestorage.Store
	alerts        hitlstorage.AlertStore
	generator     Generator
	detector      *detector.Detector
	sender        Sender
	rollRetention int
	now           func() time.Time

	mu        sync.Mutex
	mailboxes map[string]*mailbox
	group     *errgroup.Group
	runCtx    context.Context
	running   bool
}

// New validates the configuration and constructs an orchestrator. Run
// must be called before Submit.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Alerts == nil {
		return nil, errors.New("alert store is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if cfg.Detector == nil {
		return nil, errors.New("detector is required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("sender is required")
	}
	if cfg.RollRetention <= 0 {
		cfg.RollRetention = domain.DefaultRollRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		store:         cfg.Store,
		alerts:        cfg.Alerts,
		generator:     cfg.Generator,
		detector:      cfg.Detector,
		sender:        cfg.Sender,
		rollRetention: cfg.RollRetention,
		now:           cfg.Now,
		mailboxes:     make(map[string]*mailbox),
	}, nil
}

// Run accepts submissions until ctx is canceled, then waits for every
// session worker to finish its in-flight event.
func (o *Orchestrator) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	o.mu.Lock()
	o.group = group
	o.runCtx = groupCtx
	o.running = true
	o.mu.Unlock()

	<-ctx.Done()

	o.mu.Lock()
	o.running = false
	for _, mb := range o.mailboxes {
		close(mb.events)
	}
	o.mu.Unlock()

	return group.Wait()
}

// Submit validates and enqueues an inbound event on its session's
// mailbox, starting a worker for the session if none is running. A full
// mailbox rejects the event so the transport can retry.
func (o *Orchestrator) Submit(ctx context.Context, event domain.InboundEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := domain.NormalizeInboundEvent(event)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return ErrNotRunning
	}
	mb, ok := o.mailboxes[normalized.SessionID]
	if !ok {
		mb = newMailbox(normalized.SessionID)
		o.mailboxes[normalized.SessionID] = mb
		o.group.Go(func() error {
			o.runWorker(mb)
			return nil
		})
	}
	// Holding the lock here keeps the enqueue ordered against shutdown,
	// which closes mailboxes under the same lock. enqueue never blocks.
	return mb.enqueue(normalized)
}

// runWorker drains one session's mailbox. Worker failures never
// propagate to the errgroup: a faulted session is paused and flagged for
// an operator while other sessions keep running.
func (o *Orchestrator) runWorker(mb *mailbox) {
	for event := range mb.events {
		if o.runCtx.Err() != nil {
			continue
		}
		if err := o.handle(o.runCtx, mb, event); err != nil {
			log.Printf("orchestrator: session %s: %v", mb.sessionID, err)
			o.faultSession(mb.sessionID, err)
		}
	}
}

// faultSession pauses a session after an unrecoverable handling error and
// raises a critical alert. Best effort on a fresh context so shutdown
// does not mask the pause.
func (o *Orchestrator) faultSession(sessionID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := o.store.GetSession(ctx, sessionID)
	if err == nil && !session.State.Terminal() && session.State != domain.SessionStatePaused {
		if _, err := o.store.TransitionSession(ctx, sessionID, session.State, domain.SessionStatePaused, o.now()); err != nil {
			log.Printf("orchestrator: pause faulted session %s: %v", sessionID, err)
		}
	}

	o.raiseAlert(ctx, hitldomain.CreateAlertInput{
		SessionID: sessionID,
		Source:    hitldomain.SourceSystem,
		Reason:    hitldomain.ReasonSessionFault,
		Severity:  hitldomain.SeverityCritical,
		Note:      cause.Error(),
	})
}

// handle processes one inbound event end to end. The event is marked
// processed only after handling succeeds, so a transport redelivery can
// recover a turn that failed partway through.
func (o *Orchestrator) handle(ctx context.Context, mb *mailbox, event domain.InboundEvent) error {
	already, err := o.store.EventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("dedupe event: %w", err)
	}
	if already {
		return nil
	}

	session, err := o.ensureSession(ctx, event)
	if err != nil {
		return err
	}

	cmd := ParseCommand(event.Text)

	switch {
	case session.State == domain.SessionStateArchived:
		err = o.reply(ctx, event, "This session has ended.")
	case session.State == domain.SessionStatePaused:
		err = o.handlePaused(ctx, session, event, cmd)
	case session.State == domain.SessionStateAwaitingHumanReview && !immediate(cmd.Kind):
		// Left unmarked so a redelivery after the operator releases
		// the session replays the turn instead of being deduplicated.
		return o.reply(ctx, event, "A game master is reviewing the last turn. Hold on.")
	case immediate(cmd.Kind):
		err = o.handleImmediate(ctx, session, event, cmd)
	default:
		err = o.processTurn(ctx, mb, session, event, cmd)
	}
	if err != nil {
		return err
	}

	if _, err := o.store.MarkEventProcessed(ctx, event.EventID); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

// immediate reports whether the command answers directly without moving
// the session through the turn pipeline.
func immediate(kind CommandKind) bool {
	switch kind {
	case CommandStatus, CommandInventory, CommandHelp, CommandPause, CommandResume, CommandEnd:
		return true
	default:
		return false
	}
}

// ensureSession loads the session, creating it on first contact. The
// transport-supplied session ID is kept as the session's identity, and
// the sender is enrolled as a player if new.
func (o *Orchestrator) ensureSession(ctx context.Context, event domain.InboundEvent) (domain.Session, error) {
	session, err := o.store.GetSession(ctx, event.SessionID)
	if errors.Is(err, gamestorage.ErrNotFound) {
		session, err = domain.CreateSession(domain.CreateSessionInput{}, o.now, func() (string, error) {
			return event.SessionID, nil
		})
		if err != nil {
			return domain.Session{}, fmt.Errorf("create session: %w", err)
		}
		session.Players = []string{event.PlayerID}
		if err := o.store.PutSession(ctx, session); err != nil {
			return domain.Session{}, fmt.Errorf("store session: %w", err)
		}
	} else if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}

	if !session.HasPlayer(event.PlayerID) && !session.State.Terminal() {
		session.Players = append(session.Players, event.PlayerID)
		session.UpdatedAt = o.now().UTC()
		if err := o.store.PutSession(ctx, session); err != nil {
			return domain.Session{}, fmt.Errorf("enroll player: %w", err)
		}
	}

	if session.State == domain.SessionStateCreated {
		session, err = o.store.TransitionSession(ctx, session.ID, domain.SessionStateCreated, domain.SessionStateAwaitingPlayerInput, o.now())
		if err != nil {
			return domain.Session{}, fmt.Errorf("activate session: %w", err)
		}
	}
	return session, nil
}

func (o *Orchestrator) handlePaused(ctx context.Context, session domain.Session, event domain.InboundEvent, cmd Command) error {
	switch cmd.Kind {
	case CommandResume:
		if _, err := o.store.TransitionSession(ctx, session.ID, domain.SessionStatePaused, domain.SessionStateAwaitingPlayerInput, o.now()); err != nil {
			return fmt.Errorf("resume session: %w", err)
		}
		return o.broadcast(ctx, session, "The session resumes. What do you do?")
	case CommandEnd:
		return o.archive(ctx, session)
	default:
		return o.reply(ctx, event, "The session is paused. Use /resume to continue or /end to finish.")
	}
}

func (o *Orchestrator) handleImmediate(ctx context.Context, session domain.Session, event domain.InboundEvent, cmd Command) error {
	if err := o.store.TouchSession(ctx, session.ID, o.now()); err != nil {
		log.Printf("orchestrator: touch session %s: %v", session.ID, err)
	}

	switch cmd.Kind {
	case CommandHelp:
		return o.reply(ctx, event, helpText)
	case CommandStatus:
		character, err := o.store.GetCharacterByPlayer(ctx, session.ID, event.PlayerID)
		if errors.Is(err, gamestorage.ErrNotFound) {
			return o.reply(ctx, event, "You have no character yet. Use /create-character <name>.")
		}
		if err != nil {
			return fmt.Errorf("load character: %w", err)
		}
		return o.reply(ctx, event, formatStatus(character))
	case CommandInventory:
		character, err := o.store.GetCharacterByPlayer(ctx, session.ID, event.PlayerID)
		if errors.Is(err, gamestorage.ErrNotFound) {
			return o.reply(ctx, event, "You have no character yet. Use /create-character <name>.")
		}
		if err != nil {
			return fmt.Errorf("load character: %w", err)
		}
		return o.reply(ctx, event, formatInventory(character))
	case CommandPause:
		if _, err := o.store.TransitionSession(ctx, session.ID, session.State, domain.SessionStatePaused, o.now()); err != nil {
			return fmt.Errorf("pause session: %w", err)
		}
		return o.broadcast(ctx, session, "The session is paused. Use /resume when you are ready.")
	case CommandResume:
		return o.reply(ctx, event, "The session is not paused.")
	case CommandEnd:
		return o.archive(ctx, session)
	default:
		return o.reply(ctx, event, helpText)
	}
}

func (o *Orchestrator) archive(ctx context.Context, session domain.Session) error {
	if _, err := o.store.TransitionSession(ctx, session.ID, session.State, domain.SessionStateArchived, o.now()); err != nil {
		return fmt.Errorf("archive session: %w", err)
	}

	o.mu.Lock()
	if mb, ok := o.mailboxes[session.ID]; ok {
		mb.drain()
	}
	o.mu.Unlock()

	return o.broadcast(ctx, session, "The adventure ends here. The session is archived.")
}

// turn carries the mutable outcome of one pipeline pass.
type turn struct {
	session  domain.Session
	cmd      Command
	event    domain.InboundEvent
	roll     *dice.Roll
	category ai.Category
	prompt   string
	notices  []string
}

// processTurn runs a pipeline command through the session state machine:
// mechanics resolution when dice or hit points are involved, AI
// narration, and the intervention gate on both the player's text and the
// AI draft.
func (o *Orchestrator) processTurn(ctx context.Context, mb *mailbox, session domain.Session, event domain.InboundEvent, cmd Command) error {
	inbound := o.detector.Evaluate(detector.Signal{
		SessionID:    session.ID,
		PlayerID:     event.PlayerID,
		Source:       hitldomain.SourcePlayer,
		Text:         event.Text,
		CombatRounds: session.World.CombatRounds,
	})
	o.raiseFindings(ctx, session.ID, event.PlayerID, inbound)

	t := &turn{session: session, cmd: cmd, event: event}
	mechanics, err := o.prepareMechanics(ctx, t)
	if err != nil {
		return err
	}
	if t.prompt == "" {
		// The command failed validation; the usage notice already went
		// out and the session never left awaiting_player_input.
		return o.store.TouchSession(ctx, session.ID, o.now())
	}

	if mechanics {
		if t.session, err = o.transitionWithRetry(ctx, t.session.ID, t.session.State, domain.SessionStateResolvingMechanics); err != nil {
			return err
		}
		if err := o.applyMechanics(ctx, t); err != nil {
			return err
		}
		if t.session, err = o.transitionWithRetry(ctx, t.session.ID, domain.SessionStateResolvingMechanics, domain.SessionStateAwaitingAI); err != nil {
			return err
		}
	} else {
		if t.session, err = o.transitionWithRetry(ctx, t.session.ID, t.session.State, domain.SessionStateAwaitingAI); err != nil {
			return err
		}
	}

	if hasCritical(inbound) {
		return o.holdForReview(ctx, t, "")
	}

	narration, err := o.generator.Generate(ctx, ai.Request{
		SessionID: t.session.ID,
		Category:  t.category,
		Prompt:    t.prompt,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		mb.aiFailures++
		o.raiseAlert(ctx, hitldomain.CreateAlertInput{
			SessionID: t.session.ID,
			Source:    hitldomain.SourceSystem,
			Reason:    hitldomain.ReasonAIUnavailable,
			Severity:  hitldomain.SeverityCritical,
			Note:      err.Error(),
		})
		streak := o.detector.Evaluate(detector.Signal{
			SessionID:             t.session.ID,
			Source:                hitldomain.SourceSystem,
			ConsecutiveAIFailures: mb.aiFailures,
		})
		o.raiseFindings(ctx, t.session.ID, "", streak)
		return o.holdForReview(ctx, t, "")
	}
	mb.aiFailures = 0

	draft := o.detector.Evaluate(detector.Signal{
		SessionID: t.session.ID,
		Source:    hitldomain.SourceAI,
		Text:      narration,
	})
	o.raiseFindings(ctx, t.session.ID, "", draft)
	if hasCritical(draft) {
		return o.holdForReview(ctx, t, narration)
	}

	return o.respond(ctx, t, narration)
}

// prepareMechanics validates command arguments before any state
// transition and reports whether the turn needs a mechanics phase. A
// validation failure replies with usage, leaves t.prompt empty, and
// keeps the session where it was.
func (o *Orchestrator) prepareMechanics(ctx context.Context, t *turn) (bool, error) {
	pc := o.promptContext(ctx, t)

	switch t.cmd.Kind {
	case CommandStart:
		scene := t.session.Scene
		if scene == "" {
			scene = "a new adventure"
		}
		t.category = ai.CategorySceneIntroduction
		t.prompt = prompt.SceneIntroduction(scene, pc)
		return false, nil

	case CommandAction:
		t.category = ai.CategoryNarration
		t.prompt = prompt.Narration(t.event.Text, pc)
		return false, nil

	case CommandRoll:
		roll, err := dice.Evaluate(t.cmd.Expression, t.cmd.Mode)
		var parseErr *dice.ParseError
		if errors.As(err, &parseErr) {
			return false, o.reply(ctx, t.event, "I could not read that dice expression. Try /roll 2d6+3.")
		}
		if err != nil {
			return false, fmt.Errorf("evaluate roll: %w", err)
		}
		t.roll = &roll
		t.category = ai.CategoryNarration
		t.prompt = prompt.Narration(fmt.Sprintf("The player rolled %s for a total of %d.", roll.Expression, roll.Total), pc)
		return true, nil

	case CommandAttack:
		if t.cmd.Target == "" {
			return false, o.reply(ctx, t.event, "Attack what? Try /attack goblin.")
		}
		roll, err := dice.Evaluate("1d20", dice.ModeNormal)
		if err != nil {
			return false, fmt.Errorf("evaluate attack roll: %w", err)
		}
		t.roll = &roll
		t.category = ai.CategoryNarration
		t.prompt = prompt.Narration(fmt.Sprintf("The player attacks %s and rolled %d on a d20.", t.cmd.Target, roll.Total), pc)
		return true, nil

	case CommandRest:
		t.category = ai.CategoryNarration
		t.prompt = prompt.Narration("The party takes a long rest and recovers.", pc)
		return true, nil

	case CommandCreateCharacter:
		if t.cmd.Name == "" {
			return false, o.reply(ctx, t.event, "Name your character: /create-character <name> [auto].")
		}
		if _, err := o.store.GetCharacterByPlayer(ctx, t.session.ID, t.event.PlayerID); err == nil {
			return false, o.reply(ctx, t.event, "You already have a character in this session.")
		} else if !errors.Is(err, gamestorage.ErrNotFound) {
			return false, fmt.Errorf("check character: %w", err)
		}
		t.category = ai.CategoryCharacterDescription
		t.prompt = prompt.CharacterDescription(t.cmd.Name, 1, pc)
		return true, nil

	default:
		t.category = ai.CategoryNarration
		t.prompt = prompt.Narration(t.event.Text, pc)
		return false, nil
	}
}

// promptContext assembles the fiction snapshot passed to prompt builders.
// Character lookup is best effort.
func (o *Orchestrator) promptContext(ctx context.Context, t *turn) prompt.Context {
	pc := prompt.Context{
		Scene:        t.session.Scene,
		Location:     t.session.World.Location,
		SessionState: t.session.State.String(),
	}
	if character, err := o.store.GetCharacterByPlayer(ctx, t.session.ID, t.event.PlayerID); err == nil {
		pc.CharacterName = character.Name
	}
	return pc
}

// applyMechanics mutates game state for the resolving phase: roll
// history, hit points, character creation, combat round tracking.
func (o *Orchestrator) applyMechanics(ctx context.Context, t *turn) error {
	characterID := ""
	if character, err := o.store.GetCharacterByPlayer(ctx, t.session.ID, t.event.PlayerID); err == nil {
		characterID = character.ID
	}

	switch t.cmd.Kind {
	case CommandRoll:
		record := domain.NewRoll(t.session.ID, characterID, *t.roll, o.now)
		if err := o.store.AppendRoll(ctx, record, o.rollRetention); err != nil {
			return fmt.Errorf("append roll: %w", err)
		}

	case CommandAttack:
		record := domain.NewRoll(t.session.ID, characterID, *t.roll, o.now)
		if err := o.store.AppendRoll(ctx, record, o.rollRetention); err != nil {
			return fmt.Errorf("append attack roll: %w", err)
		}
		t.session.World.CombatRounds++
		t.session.UpdatedAt = o.now().UTC()
		if err := o.store.PutSession(ctx, t.session); err != nil {
			return fmt.Errorf("advance combat round: %w", err)
		}

	case CommandRest:
		if characterID != "" {
			character, err := o.store.GetCharacterByPlayer(ctx, t.session.ID, t.event.PlayerID)
			if err != nil {
				return fmt.Errorf("load character: %w", err)
			}
			healed, err := o.store.UpdateCharacterHP(ctx, character.ID, character.HPMax, o.now())
			if err != nil {
				return fmt.Errorf("restore hit points: %w", err)
			}
			t.notices = append(t.notices, fmt.Sprintf("%s recovers to %d/%d HP.", healed.Name, healed.HPCurrent, healed.HPMax))
		}
		if t.session.World.CombatRounds != 0 {
			t.session.World.CombatRounds = 0
			t.session.UpdatedAt = o.now().UTC()
			if err := o.store.PutSession(ctx, t.session); err != nil {
				return fmt.Errorf("reset combat rounds: %w", err)
			}
		}

	case CommandCreateCharacter:
		abilities, err := o.abilityScores(t.cmd.Auto)
		if err != nil {
			return err
		}
		character, err := domain.CreateCharacter(domain.CreateCharacterInput{
			PlayerID:   t.event.PlayerID,
			SessionID:  t.session.ID,
			Name:       t.cmd.Name,
			Level:      1,
			HPMax:      10,
			ArmorClass: 10 + modifier(abilities.Dexterity),
			Abilities:  abilities,
			Inventory:  []string{"torch", "rations", "rope"},
		}, o.now, nil)
		if err != nil {
			return fmt.Errorf("create character: %w", err)
		}
		if err := o.store.PutCharacter(ctx, character); err != nil {
			return fmt.Errorf("store character: %w", err)
		}
		t.notices = append(t.notices, formatStatus(character))
	}
	return nil
}

// abilityScores returns rolled scores when auto is requested, otherwise
// the standard array in conventional order.
func (o *Orchestrator) abilityScores(auto bool) (domain.AbilityScores, error) {
	scores := []int{15, 14, 13, 12, 10, 8}
	if auto {
		seed, err := random.NewSeed()
		if err != nil {
			return domain.AbilityScores{}, fmt.Errorf("seed ability rolls: %w", err)
		}
		scores = dice.RollAbilityScores(rand.New(rand.NewSource(seed)))
	}
	return domain.AbilityScores{
		Strength:     scores[0],
		Dexterity:    scores[1],
		Constitution: scores[2],
		Intelligence: scores[3],
		Wisdom:       scores[4],
		Charisma:     scores[5],
	}, nil
}

func modifier(score int) int {
	if score < 10 && score%2 != 0 {
		return (score - 11) / 2
	}
	return (score - 10) / 2
}

// holdForReview parks the session for an operator. A non-empty draft is
// stored for later approval; the pending draft is cleared otherwise.
func (o *Orchestrator) holdForReview(ctx context.Context, t *turn, draft string) error {
	t.session.PendingDraft = draft
	t.session.UpdatedAt = o.now().UTC()
	if err := o.store.PutSession(ctx, t.session); err != nil {
		return fmt.Errorf("store pending draft: %w", err)
	}
	if _, err := o.transitionWithRetry(ctx, t.session.ID, domain.SessionStateAwaitingAI, domain.SessionStateAwaitingHumanReview); err != nil {
		return err
	}
	return o.broadcast(ctx, t.session, "A game master is stepping in to review this turn. One moment.")
}

// respond emits the turn's outbound events in order: mechanics results
// first, then narration, then returns the session to awaiting input.
func (o *Orchestrator) respond(ctx context.Context, t *turn, narration string) error {
	session, err := o.transitionWithRetry(ctx, t.session.ID, domain.SessionStateAwaitingAI, domain.SessionStateResponding)
	if err != nil {
		return err
	}
	t.session = session

	if t.roll != nil {
		if err := o.broadcast(ctx, t.session, formatRoll(*t.roll)); err != nil {
			return err
		}
	}
	for _, notice := range t.notices {
		if err := o.broadcast(ctx, t.session, notice); err != nil {
			return err
		}
	}
	if err := o.broadcast(ctx, t.session, narration); err != nil {
		return err
	}

	if _, err := o.transitionWithRetry(ctx, t.session.ID, domain.SessionStateResponding, domain.SessionStateAwaitingPlayerInput); err != nil {
		return err
	}
	return o.store.TouchSession(ctx, t.session.ID, o.now())
}

// transitionWithRetry retries a compare-and-set transition a few times,
// refreshing the expected state on conflict. Conflicts are rare since the
// mailbox serializes a session's events, but operator actions race.
func (o *Orchestrator) transitionWithRetry(ctx context.Context, id string, from, to domain.SessionState) (domain.Session, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		session, err := o.store.TransitionSession(ctx, id, from, to, o.now())
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, gamestorage.ErrStateConflict) {
			return domain.Session{}, err
		}
		lastErr = err
		current, gerr := o.store.GetSession(ctx, id)
		if gerr != nil {
			return domain.Session{}, fmt.Errorf("reload session after conflict: %w", gerr)
		}
		if current.State == to {
			return current, nil
		}
		from = current.State
	}
	return domain.Session{}, fmt.Errorf("transition %s to %s: %w", id, to, lastErr)
}

func hasCritical(findings []detector.Finding) bool {
	for _, finding := range findings {
		if finding.Severity == hitldomain.SeverityCritical {
			return true
		}
	}
	return false
}

// raiseFindings persists one alert per finding. Alert storage failures
// are logged, not fatal: losing an alert must not stall the session.
func (o *Orchestrator) raiseFindings(ctx context.Context, sessionID, playerID string, findings []detector.Finding) {
	for _, finding := range findings {
		source := hitldomain.SourceSystem
		if playerID != "" {
			source = hitldomain.SourcePlayer
		}
		o.raiseAlert(ctx, hitldomain.CreateAlertInput{
			SessionID: sessionID,
			PlayerID:  playerID,
			Source:    source,
			Reason:    finding.Reason,
			Severity:  finding.Severity,
			Excerpt:   finding.Excerpt,
			Note:      finding.Note,
		})
	}
}

func (o *Orchestrator) raiseAlert(ctx context.Context, input hitldomain.CreateAlertInput) {
	alert, err := hitldomain.CreateAlert(input, o.now, nil)
	if err != nil {
		log.Printf("orchestrator: build alert for session %s: %v", input.SessionID, err)
		return
	}
	if err := o.alerts.PutAlert(ctx, alert); err != nil {
		log.Printf("orchestrator: store alert for session %s: %v", input.SessionID, err)
	}
}

// reply sends text to the submitting player only.
func (o *Orchestrator) reply(ctx context.Context, event domain.InboundEvent, text string) error {
	return o.sender.Send(ctx, domain.OutboundEvent{
		SessionID:  event.SessionID,
		Recipients: []string{event.PlayerID},
		Text:       text,
	})
}

// broadcast sends text to every player in the session.
func (o *Orchestrator) broadcast(ctx context.Context, session domain.Session, text string) error {
	return o.sender.Send(ctx, domain.OutboundEvent{
		SessionID:  session.ID,
		Recipients: session.Players,
		Text:       text,
	})
}

func formatRoll(roll dice.Roll) string {
	text := fmt.Sprintf("🎲 %s: %d", roll.Expression, roll.Total)
	switch {
	case roll.Critical:
		text += " (critical!)"
	case roll.Fumble:
		text += " (fumble)"
	}
	return text
}

func formatStatus(c domain.Character) string {
	return fmt.Sprintf("%s (level %d)\nHP %d/%d  AC %d\nSTR %d DEX %d CON %d INT %d WIS %d CHA %d",
		c.Name, c.Level, c.HPCurrent, c.HPMax, c.ArmorClass,
		c.Abilities.Strength, c.Abilities.Dexterity, c.Abilities.Constitution,
		c.Abilities.Intelligence, c.Abilities.Wisdom, c.Abilities.Charisma)
}

func formatInventory(c domain.Character) string {
	if len(c.Inventory) == 0 {
		return c.Name + " carries nothing."
	}
	text := c.Name + " carries:"
	for _, item := range c.Inventory {
		text += "\n- " + item
	}
	return text
}
