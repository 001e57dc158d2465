// Package ledger parses ledger service flags and launches the service.
package ledger

import (
	"context"
	"flag"
	"strings"

	server "github.com/quantfold/marginledger/internal/ledger/app"
	"github.com/quantfold/marginledger/internal/ledger/domain"
	entrypoint "github.com/quantfold/marginledger/internal/platform/cmd"
)

// Config holds ledger command configuration.
type Config struct {
	Port int `env:"MARGINLEDGER_PORT" envDefault:"8090"`
	// Managers and Assets name the passthrough capabilities registered at
	// startup. Deployments with external risk or asset engines wire their
	// own implementations through the app package instead.
	Managers []string `env:"MARGINLEDGER_MANAGERS" envDefault:"default"`
	Assets   []string `env:"MARGINLEDGER_ASSETS"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The ledger gRPC server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the ledger service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLedger, func(context.Context) error {
		var managers []domain.Manager
		for _, id := range cfg.Managers {
			if id = strings.TrimSpace(id); id != "" {
				managers = append(managers, domain.NewPassthroughManager(id))
			}
		}
		var assets []domain.Asset
		for _, id := range cfg.Assets {
			if id = strings.TrimSpace(id); id != "" {
				assets = append(assets, domain.NewPassthroughAsset(id))
			}
		}
		return server.Run(ctx, cfg.Port, managers, assets)
	})
}
