// Package orchestrator parses command flags and launches the session
// orchestration service.
package orchestrator

import (
	"context"
	"flag"

	"github.com/louisbranch/questmaster/internal/app"
	"github.com/louisbranch/questmaster/internal/platform/cmd"
	"github.com/louisbranch/questmaster/internal/platform/config"
)

// Config holds orchestrator command configuration.
type Config struct {
	Port int `env:"QUESTMASTER_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The orchestrator HTTP port")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the orchestration service with telemetry configured.
func Run(ctx context.Context, cfg Config) error {
	return cmd.RunWithTelemetry(ctx, cmd.ServiceOrchestrator, func(ctx context.Context) error {
		return app.Run(ctx, cfg.Port)
	})
}
