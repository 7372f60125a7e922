package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/questmaster/internal/platform/timeouts"
)

// Category tags what kind of game-master text a request wants. It selects
// the prompt framing and is recorded in the dispatch audit trail.
type Category string

const (
	CategoryNarration            Category = "narration"
	CategorySceneIntroduction    Category = "scene_introduction"
	CategoryCharacterDescription Category = "character_description"
	CategoryNPC                  Category = "npc"
	CategoryEncounter            Category = "encounter"
)

// Request is one completion request to the coordinator.
type Request struct {
	SessionID string
	Category  Category
	Prompt    string
	// Preference names the provider to try first. Empty uses the
	// configured order.
	Preference string
	Params     Params
}

// Attempt records one failed provider try for the terminal error.
type Attempt struct {
	Provider string
	Class    ErrorClass
	Err      error
}

// DispatchError is returned when every provider in the order failed. It
// enumerates each attempt so callers and operators can see the full
// fallback history.
type DispatchError struct {
	Attempts []Attempt
}

func (e *DispatchError) Error() string {
	if len(e.Attempts) == 0 {
		return "ai dispatch failed: no providers configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s (%s)", attempt.Provider, attempt.Class))
	}
	return "ai dispatch failed: " + strings.Join(parts, ", ")
}

// DispatchAudit is one audit observation handed to the recorder.
type DispatchAudit struct {
	SessionID string
	Provider  string
	Category  string
	Outcome   string
	Detail    string
	Latency   time.Duration
}

// Recorder receives dispatch audit observations. Implementations must not
// block the dispatch path on failure.
type Recorder interface {
	RecordDispatch(ctx context.Context, audit DispatchAudit)
}

// Coordinator dispatches completions across providers in order, moving to
// the next provider on failure. A provider is tried at most once per
// request.
type Coordinator struct {
	providers []Provider
	timeout   time.Duration
	recorder  Recorder
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout overrides the per-provider completion timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRecorder attaches a dispatch audit recorder.
func WithRecorder(recorder Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = recorder
	}
}

// NewCoordinator builds a coordinator over providers in fallback order.
func NewCoordinator(providers []Provider, opts ...Option) *Coordinator {
	c := &Coordinator{
		providers: providers,
		timeout:   timeouts.AIComplete,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate runs the request against the provider order and returns the
// first successful completion. When every provider fails it returns a
// DispatchError listing each attempt.
func (c *Coordinator) Generate(ctx context.Context, request Request) (string, error) {
	if strings.TrimSpace(request.Prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}

	dispatchErr := &DispatchError{}
	for _, provider := range c.order(request.Preference) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		started := time.Now()
		text, err := c.complete(ctx, provider, request)
		latency := time.Since(started)

		if err != nil {
			class := Classify(err)
			c.record(ctx, DispatchAudit{
				SessionID: request.SessionID,
				Provider:  provider.Name(),
				Category:  string(request.Category),
				Outcome:   string(class),
				Detail:    err.Error(),
				Latency:   latency,
			})
			dispatchErr.Attempts = append(dispatchErr.Attempts, Attempt{
				Provider: provider.Name(),
				Class:    class,
				Err:      err,
			})
			continue
		}

		c.record(ctx, DispatchAudit{
			SessionID: request.SessionID,
			Provider:  provider.Name(),
			Category:  string(request.Category),
			Outcome:   "ok",
			Latency:   latency,
		})
		return text, nil
	}

	return "", dispatchErr
}

func (c *Coordinator) complete(ctx context.Context, provider Provider, request Request) (string, error) {
	completeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return provider.Complete(completeCtx, request.Prompt, request.Params)
}

// order returns providers with the preferred one first. Each provider
// appears at most once.
func (c *Coordinator) order(preference string) []Provider {
	preference = strings.TrimSpace(preference)
	if preference == "" {
		return c.providers
	}

	ordered := make([]Provider, 0, len(c.providers))
	for _, provider := range c.providers {
		if provider.Name() == preference {
			ordered = append(ordered, provider)
			break
		}
	}
	for _, provider := range c.providers {
		if provider.Name() != preference {
			ordered = append(ordered, provider)
		}
	}
	return ordered
}

func (c *Coordinator) record(ctx context.Context, audit DispatchAudit) {
	if c.recorder == nil {
		return
	}
	c.recorder.RecordDispatch(ctx, audit)
}
