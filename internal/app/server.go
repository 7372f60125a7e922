// Package app wires the orchestrator service: stores, AI providers, the
// HTTP surface, and background maintenance.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/questmaster/internal/ai"
	"github.com/louisbranch/questmaster/internal/game/domain"
	gamebbolt "github.com/louisbranch/questmaster/internal/game/storage/bbolt"
	"github.com/louisbranch/questmaster/internal/hitl/detector"
	hitldomain "github.com/louisbranch/questmaster/internal/hitl/domain"
	"github.com/louisbranch/questmaster/internal/hitl/review"
	hitlsqlite "github.com/louisbranch/questmaster/internal/hitl/storage/sqlite"
	"github.com/louisbranch/questmaster/internal/orchestrator"
	"github.com/louisbranch/questmaster/internal/platform/config"
	"github.com/louisbranch/questmaster/internal/platform/timeouts"
	"github.com/louisbranch/questmaster/internal/telemetry"
	"github.com/louisbranch/questmaster/internal/transport"
)

// serverEnv holds env-parsed configuration for the orchestrator server.
type serverEnv struct {
	GameDBPath string `env:"QUESTMASTER_GAME_DB_PATH"`
	HITLDBPath string `env:"QUESTMASTER_HITL_DB_PATH"`

	GatewayURL    string `env:"QUESTMASTER_GATEWAY_URL"`
	GatewayToken  string `env:"QUESTMASTER_GATEWAY_TOKEN"`
	WebhookSecret string `env:"QUESTMASTER_WEBHOOK_SECRET"`

	OpenAIAPIKey    string `env:"QUESTMASTER_OPENAI_API_KEY"`
	OpenAIModel     string `env:"QUESTMASTER_OPENAI_MODEL"`
	AnthropicAPIKey string `env:"QUESTMASTER_ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"QUESTMASTER_ANTHROPIC_MODEL"`
	OllamaBaseURL   string `env:"QUESTMASTER_OLLAMA_BASE_URL"`
	OllamaModel     string `env:"QUESTMASTER_OLLAMA_MODEL"`
	ProviderOrder   string `env:"QUESTMASTER_AI_PROVIDER_ORDER" envDefault:"openai,anthropic,ollama"`

	RollRetention  int           `env:"QUESTMASTER_ROLL_RETENTION"`
	SessionIdleTTL time.Duration `env:"QUESTMASTER_SESSION_IDLE_TTL" envDefault:"24h"`
	SweepInterval  time.Duration `env:"QUESTMASTER_SESSION_SWEEP_INTERVAL" envDefault:"1h"`
}

func loadServerEnv() (serverEnv, error) {
	var cfg serverEnv
	if err := config.ParseEnv(&cfg); err != nil {
		return serverEnv{}, err
	}
	if cfg.GameDBPath == "" {
		cfg.GameDBPath = filepath.Join("data", "game.db")
	}
	if cfg.HITLDBPath == "" {
		cfg.HITLDBPath = filepath.Join("data", "hitl.db")
	}
	return cfg, nil
}

// buildProviders assembles the provider fallback chain from the
// environment. Providers without credentials are skipped; Ollama needs
// none and is always available as the local fallback.
func buildProviders(env serverEnv) []ai.Provider {
	available := map[string]ai.Provider{}
	if env.OpenAIAPIKey != "" {
		available["openai"] = ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:       env.OpenAIAPIKey,
			DefaultModel: env.OpenAIModel,
		})
	}
	if env.AnthropicAPIKey != "" {
		available["anthropic"] = ai.NewAnthropicProvider(ai.AnthropicConfig{
			APIKey:       env.AnthropicAPIKey,
			DefaultModel: env.AnthropicModel,
		})
	}
	available["ollama"] = ai.NewOllamaProvider(ai.OllamaConfig{
		BaseURL:      env.OllamaBaseURL,
		DefaultModel: env.OllamaModel,
	})

	var providers []ai.Provider
	for _, name := range strings.Split(env.ProviderOrder, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if provider, ok := available[name]; ok {
			providers = append(providers, provider)
			delete(available, name)
		}
	}
	return providers
}

// Run starts the orchestrator service and blocks until ctx is canceled.
func Run(ctx context.Context, port int) error {
	env, err := loadServerEnv()
	if err != nil {
		return err
	}
	if env.GatewayURL == "" {
		return errors.New("QUESTMASTER_GATEWAY_URL is required")
	}

	gameStore, err := gamebbolt.Open(env.GameDBPath)
	if err != nil {
		return fmt.Errorf("open game store: %w", err)
	}
	defer func() {
		if err := gameStore.Close(); err != nil {
			log.Printf("close game store: %v", err)
		}
	}()

	hitlStore, err := hitlsqlite.Open(env.HITLDBPath)
	if err != nil {
		return fmt.Errorf("open hitl store: %w", err)
	}
	defer func() {
		if err := hitlStore.Close(); err != nil {
			log.Printf("close hitl store: %v", err)
		}
	}()

	sender, err := transport.NewGatewaySender(transport.GatewayConfig{
		URL:   env.GatewayURL,
		Token: env.GatewayToken,
	})
	if err != nil {
		return err
	}

	providers := buildProviders(env)
	log.Printf("ai providers: %d configured", len(providers))
	coordinator := ai.NewCoordinator(providers, ai.WithRecorder(telemetry.NewEmitter(hitlStore)))

	orc, err := orchestrator.New(orchestrator.Config{
		Store:         gameStore,
		Alerts:        hitlStore,
		Generator:     coordinator,
		Detector:      detector.New(hitldomain.DefaultRules()),
		Sender:        sender,
		RollRetention: env.RollRetention,
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	reviewService, err := review.New(hitlStore, gameStore, sender, nil)
	if err != nil {
		return fmt.Errorf("build review service: %w", err)
	}

	webhook, err := transport.NewWebhookHandler(orc, env.WebhookSecret)
	if err != nil {
		return fmt.Errorf("build webhook: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("POST /webhook", webhook)

	grants, err := transport.LoadOperatorGrantConfigFromEnv(nil)
	if err != nil {
		// The operator API stays offline without grant config; the game
		// loop does not depend on it.
		log.Printf("operator api disabled: %v", err)
	} else {
		operatorAPI, err := transport.NewOperatorHandler(reviewService, grants)
		if err != nil {
			return fmt.Errorf("build operator api: %w", err)
		}
		operatorAPI.Register(mux)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return orc.Run(groupCtx)
	})
	group.Go(func() error {
		return serveHTTP(groupCtx, httpServer)
	})
	group.Go(func() error {
		return sweepIdleSessions(groupCtx, gameStore, env.SessionIdleTTL, env.SweepInterval)
	})
	return group.Wait()
}

// serveHTTP runs the server until the context ends, then drains in-flight
// requests within the shutdown budget.
func serveHTTP(ctx context.Context, server *http.Server) error {
	serveErr := make(chan error, 1)
	log.Printf("orchestrator listening on %s", server.Addr)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := server.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// sessionSweeper is the store subset the idle sweep needs.
type sessionSweeper interface {
	ListSessions(ctx context.Context) ([]domain.Session, error)
	TransitionSession(ctx context.Context, id string, from, to domain.SessionState, now time.Time) (domain.Session, error)
}

// sweepIdleSessions archives sessions with no activity past the TTL.
// Paused sessions are swept too; a table that walked away should not
// hold storage forever.
func sweepIdleSessions(ctx context.Context, store sessionSweeper, ttl, interval time.Duration) error {
	if ttl <= 0 || interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sweepOnce(ctx, store, ttl, time.Now()); err != nil {
				log.Printf("session sweep: %v", err)
			}
		}
	}
}

func sweepOnce(ctx context.Context, store sessionSweeper, ttl time.Duration, now time.Time) error {
	sessions, err := store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	cutoff := now.Add(-ttl)
	for _, session := range sessions {
		if session.State.Terminal() || session.LastActivity.After(cutoff) {
			continue
		}
		if _, err := store.TransitionSession(ctx, session.ID, session.State, domain.SessionStateArchived, now); err != nil {
			log.Printf("archive idle session %s: %v", session.ID, err)
			continue
		}
		log.Printf("archived idle session %s (last activity %s)", session.ID, session.LastActivity.UTC().Format(time.RFC3339))
	}
	return nil
}
